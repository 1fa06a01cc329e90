// Package firestoretest starts a Firestore emulator for integration tests.
package firestoretest

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	pconfig "github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/config"
	pfirestore "github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/firestore"
)

const (
	emulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
	emulatorPort  = "8080/tcp"
)

// StartEmulator runs the emulator in a container and returns its host:port.
// The test is skipped when no container runtime is reachable.
func StartEmulator(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.Run(ctx, emulatorImage,
		testcontainers.WithExposedPorts(emulatorPort),
		testcontainers.WithCmd("gcloud", "beta", "emulators", "firestore", "start", "--host-port=0.0.0.0:8080", "--quiet"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort(emulatorPort).WithStartupTimeout(90*time.Second)),
	)
	if err != nil {
		t.Skipf("firestore emulator unavailable: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	endpoint, err := container.PortEndpoint(ctx, emulatorPort, "")
	if err != nil {
		t.Fatalf("emulator endpoint: %v", err)
	}
	return endpoint
}

// NewProvider returns a provider bound to a fresh emulator and closed on cleanup.
func NewProvider(t testing.TB, cfg pconfig.FirestoreConfig) *pfirestore.Provider {
	t.Helper()
	cfg.EmulatorHost = StartEmulator(t)
	if cfg.ProjectID == "" {
		cfg.ProjectID = "storefront-test"
	}
	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	return provider
}
