package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/payments"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/config"
	pfirestore "github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/firestore"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/idempotency"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/jobs"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/metrics"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/observability"
	predis "github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/redis"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories"
	firestorerepo "github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories/firestore"
	gcsrepo "github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories/gcs"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories/memory"
	redisrepo "github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories/redis"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/services"
)

// Container wires persistence, pricing, payments and checkout for runtime use.
type Container struct {
	Config  config.Config
	Logger  *zap.Logger
	Metrics *metrics.Checkout

	Slots       repositories.SlotStore
	Sequences   repositories.SequenceStore
	Idempotency idempotency.Store

	Rates         *services.RateConfigStore
	Pricing       *services.PricingEngine
	Payments      *payments.Manager
	Confirmations services.ConfirmationSink
	Carts         services.CartService
	Checkout      services.CheckoutService
	Orders        *services.OrderRecorder
	Health        repositories.HealthRepository

	probes  []repositories.Probe
	closers []func(context.Context) error
}

// Option customises container construction, mainly for tests.
type Option func(*options)

type options struct {
	clock         func() time.Time
	slots         repositories.SlotStore
	sequences     repositories.SequenceStore
	payments      map[string]payments.Provider
	confirmations services.ConfirmationSink
	metrics       *metrics.Checkout
}

// WithClock overrides the clock shared by every service.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithStores bypasses backend selection and uses the supplied stores.
func WithStores(slots repositories.SlotStore, sequences repositories.SequenceStore) Option {
	return func(o *options) {
		o.slots = slots
		o.sequences = sequences
	}
}

// WithPaymentProviders replaces the configured payment providers.
func WithPaymentProviders(providers map[string]payments.Provider) Option {
	return func(o *options) {
		o.payments = providers
	}
}

// WithConfirmationSink replaces the configured order confirmation sink.
func WithConfirmationSink(sink services.ConfirmationSink) Option {
	return func(o *options) {
		o.confirmations = sink
	}
}

// WithMetrics shares an existing metrics registry.
func WithMetrics(m *metrics.Checkout) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// NewContainer constructs the runtime dependencies. Anything opened before a
// failure is closed again before the error is returned.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (container *Container, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	c := &Container{Config: cfg, Logger: logger, Metrics: o.metrics}
	if c.Metrics == nil {
		c.Metrics = metrics.NewCheckout()
	}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = c.Close(closeCtx)
		}
	}()

	if o.slots != nil {
		c.Slots = o.slots
		c.Sequences = o.sequences
		c.Idempotency = idempotency.NewMemoryStore()
		c.addProbe("slots", pingOf(o.slots))
	} else if err = c.buildPersistence(ctx, cfg); err != nil {
		return nil, err
	}

	events := observability.EventLogger(logger)

	c.Rates = services.NewRateConfigStore(services.RateConfigStoreDeps{
		Sources:  rateSources(cfg.Rates, c.Slots),
		CacheTTL: cfg.Rates.CacheTTL,
		Clock:    o.clock,
		Logger:   events,
	})
	if c.Pricing, err = services.NewPricingEngine(c.Rates); err != nil {
		return nil, fmt.Errorf("build pricing engine: %w", err)
	}

	providers := o.payments
	if providers == nil {
		if providers, err = paymentProviders(cfg.Payments, events, o.clock); err != nil {
			return nil, err
		}
	}
	if c.Payments, err = payments.NewManager(providers,
		payments.WithDefaultProvider(cfg.Payments.Provider),
		payments.WithTokenRoutes(map[string]string{
			"pm_":   config.PaymentProviderStripe,
			"tok_":  config.PaymentProviderStripe,
			"fake_": config.PaymentProviderFake,
		}),
	); err != nil {
		return nil, fmt.Errorf("build payment manager: %w", err)
	}

	c.Confirmations = o.confirmations
	if c.Confirmations == nil {
		if c.Confirmations, err = c.buildConfirmations(ctx, cfg.Events, events); err != nil {
			return nil, err
		}
	}

	numbers, err := orderNumbers(cfg.Orders, c.Sequences, o.clock)
	if err != nil {
		return nil, err
	}
	if c.Orders, err = services.NewOrderRecorder(services.OrderRecorderDeps{
		Store:         c.Slots,
		Numbers:       numbers,
		Confirmations: c.Confirmations,
		Clock:         o.clock,
		Logger:        events,
		Metrics:       c.Metrics,
		Currency:      cfg.Orders.Currency,
	}); err != nil {
		return nil, fmt.Errorf("build order recorder: %w", err)
	}

	if c.Carts, err = services.NewCartService(services.CartServiceDeps{
		Store:   c.Slots,
		Pricing: c.Pricing,
		Clock:   o.clock,
		Logger:  events,
		Metrics: c.Metrics,
	}); err != nil {
		return nil, fmt.Errorf("build cart service: %w", err)
	}

	if c.Checkout, err = services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:      c.Carts,
		Pricing:    c.Pricing,
		Payments:   c.Payments,
		Orders:     c.Orders,
		Clock:      o.clock,
		Logger:     events,
		Metrics:    c.Metrics,
		SessionTTL: cfg.Checkout.SessionTTL,
	}); err != nil {
		return nil, fmt.Errorf("build checkout service: %w", err)
	}

	if c.Health, err = repositories.NewProbeHealthRepository(c.probes,
		repositories.WithProbeClock(o.clock),
		repositories.WithBuildVersion(cfg.Server.Version),
	); err != nil {
		return nil, fmt.Errorf("build health repository: %w", err)
	}

	return c, nil
}

// SaveRateSettings stores admin rate settings in the settings slot and drops
// the cached configuration.
func (c *Container) SaveRateSettings(ctx context.Context, settings services.RateSettings) error {
	if c == nil || c.Slots == nil {
		return errors.New("rate settings: slot store unavailable")
	}
	if err := services.SaveRateSettings(ctx, c.Slots, settings); err != nil {
		return err
	}
	c.Rates.Invalidate()
	return nil
}

// Close releases backend clients in reverse order of creation.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) buildPersistence(ctx context.Context, cfg config.Config) error {
	persistence := cfg.Persistence
	switch persistence.Backend {
	case config.BackendMemory, "":
		slots := memory.NewSlotStore()
		c.Slots = slots
		c.Sequences = memory.NewSequenceStore()
		c.Idempotency = idempotency.NewMemoryStore()
		c.addProbe("slots", slots.Ping)

	case config.BackendFirestore:
		provider := pfirestore.NewProvider(persistence.Firestore)
		c.closers = append(c.closers, provider.Close)
		slots, err := firestorerepo.NewSlotStore(provider)
		if err != nil {
			return fmt.Errorf("build firestore slot store: %w", err)
		}
		sequences, err := firestorerepo.NewSequenceStore(provider)
		if err != nil {
			return fmt.Errorf("build firestore sequence store: %w", err)
		}
		keys, err := idempotency.NewFirestoreStore(provider)
		if err != nil {
			return fmt.Errorf("build firestore idempotency store: %w", err)
		}
		c.Slots, c.Sequences, c.Idempotency = slots, sequences, keys
		c.addProbe("firestore", provider.Ping)

	case config.BackendRedis:
		goredis.SetLogger(observability.NewPrintfAdapter(c.Logger.Named("redis")))
		client, err := predis.New(ctx, persistence.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		prefix := persistence.Redis.KeyPrefix
		slots, err := redisrepo.NewSlotStore(client.Client, prefix)
		if err != nil {
			return fmt.Errorf("build redis slot store: %w", err)
		}
		sequences, err := redisrepo.NewSequenceStore(client.Client, prefix)
		if err != nil {
			return fmt.Errorf("build redis sequence store: %w", err)
		}
		keys, err := idempotency.NewRedisStore(client.Client, prefix+"idem:")
		if err != nil {
			return fmt.Errorf("build redis idempotency store: %w", err)
		}
		c.Slots, c.Sequences, c.Idempotency = slots, sequences, keys
		c.addProbe("redis", client.Health)

	case config.BackendGCS:
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		slots, err := gcsrepo.NewSlotStore(client, persistence.GCS.Bucket, persistence.GCS.Prefix)
		if err != nil {
			return fmt.Errorf("build gcs slot store: %w", err)
		}
		sequences, err := gcsrepo.NewSequenceStore(client, persistence.GCS.Bucket, persistence.GCS.Prefix)
		if err != nil {
			return fmt.Errorf("build gcs sequence store: %w", err)
		}
		// Object storage has no TTL index, so replay keys stay in process.
		c.Slots, c.Sequences, c.Idempotency = slots, sequences, idempotency.NewMemoryStore()
		c.addProbe("gcs", slots.Ping)

	default:
		return fmt.Errorf("unsupported persistence backend %q", persistence.Backend)
	}
	return nil
}

func (c *Container) buildConfirmations(ctx context.Context, cfg config.EventsConfig, events func(context.Context, string, map[string]any)) (services.ConfirmationSink, error) {
	project := strings.TrimSpace(cfg.ProjectID)
	topicID := strings.TrimSpace(cfg.OrderTopic)
	if project == "" || topicID == "" {
		return jobs.NewLogSink(events), nil
	}
	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })
	publisher, err := jobs.NewPubSubOrderPublisher(client.Topic(topicID))
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func(context.Context) error {
		publisher.Stop()
		return nil
	})
	c.addProbe("order_events", publisher.Ping)
	return publisher, nil
}

func (c *Container) addProbe(name string, check func(context.Context) error) {
	if check == nil {
		return
	}
	c.probes = append(c.probes, repositories.Probe{Name: name, Check: check})
}

func pingOf(store repositories.SlotStore) func(context.Context) error {
	if pinger, ok := store.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping
	}
	return func(context.Context) error { return nil }
}

// rateSources orders the settings slot before env overrides so that env
// values win when both set a field.
func rateSources(cfg config.RatesConfig, slots repositories.SlotStore) []services.RateSettingsSource {
	var sources []services.RateSettingsSource
	if cfg.UseSettingsSlot && slots != nil {
		sources = append(sources, services.SlotRateSettings{Store: slots})
	}
	if overrides := overrideSettings(cfg.Overrides); overrides != nil {
		sources = append(sources, services.StaticRateSettings(overrides))
	}
	return sources
}

func overrideSettings(o config.RateOverrides) *services.RateSettings {
	if o.FreeShippingThreshold == nil && len(o.ShippingRates) == 0 && o.TaxEnabled == nil && len(o.TaxPercentages) == 0 {
		return nil
	}
	return &services.RateSettings{
		FreeShippingThreshold: o.FreeShippingThreshold,
		ShippingRates:         o.ShippingRates,
		TaxEnabled:            o.TaxEnabled,
		TaxRates:              o.TaxPercentages,
	}
}

func paymentProviders(cfg config.PaymentsConfig, events func(context.Context, string, map[string]any), clock func() time.Time) (map[string]payments.Provider, error) {
	providers := map[string]payments.Provider{
		config.PaymentProviderFake: payments.NewFakeProvider(clock),
	}
	if cfg.Provider != config.PaymentProviderStripe {
		return providers, nil
	}
	stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:        cfg.StripeAPIKey,
		AccountID:     cfg.StripeAccountID,
		Logger:        events,
		AllowRawCards: cfg.StripeAllowRawCards,
	})
	if err != nil {
		return nil, fmt.Errorf("build stripe provider: %w", err)
	}
	providers[config.PaymentProviderStripe] = stripe
	return providers, nil
}

func orderNumbers(cfg config.OrdersConfig, sequences repositories.SequenceStore, clock func() time.Time) (services.OrderNumberGenerator, error) {
	if cfg.Numbering != config.NumberingSequence {
		return services.NewTimeOrderNumbers(cfg.NumberPrefix, clock), nil
	}
	if sequences == nil {
		return nil, errors.New("sequence numbering requires a sequence store")
	}
	numbers, err := services.NewSequenceOrderNumbers(cfg.NumberPrefix, sequences, clock)
	if err != nil {
		return nil, fmt.Errorf("build order numbers: %w", err)
	}
	return numbers, nil
}
