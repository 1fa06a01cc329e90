package storage

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// SlotKind groups slot keys that share an object layout.
type SlotKind string

const (
	KindCart      SlotKind = "cart"
	KindLastOrder SlotKind = "last-order"
	KindOrder     SlotKind = "order"
	KindSettings  SlotKind = "settings"
	KindSequence  SlotKind = "seq"
)

// PathBuilder composes the object path for the identifier part of a slot key.
type PathBuilder func(id string) (string, error)

var (
	pathBuilders = map[SlotKind]PathBuilder{
		KindCart:      folderBuilder("carts"),
		KindLastOrder: folderBuilder("last-orders"),
		KindOrder:     buildOrderPath,
		KindSettings:  folderBuilder("settings"),
		KindSequence:  folderBuilder("sequences"),
	}
	pathBuildersMu sync.RWMutex
)

// RegisterPathBuilder overrides or registers a builder for a slot kind.
func RegisterPathBuilder(kind SlotKind, builder PathBuilder) {
	pathBuildersMu.Lock()
	defer pathBuildersMu.Unlock()
	if builder == nil {
		delete(pathBuilders, kind)
		return
	}
	pathBuilders[kind] = builder
}

// BuildObjectPath maps a slot key such as "cart:uid" to an object path under
// prefix. Keys without a registered kind land in "misc/".
func BuildObjectPath(prefix, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("storage: slot key is required")
	}
	kind, id, found := strings.Cut(key, ":")

	pathBuildersMu.RLock()
	builder, ok := pathBuilders[SlotKind(kind)]
	pathBuildersMu.RUnlock()

	var (
		path string
		err  error
	)
	if found && ok {
		path, err = builder(id)
	} else {
		path, err = folderBuilder("misc")(key)
	}
	if err != nil {
		return "", err
	}
	return normalisePrefix(prefix) + path, nil
}

func folderBuilder(folder string) PathBuilder {
	return func(id string) (string, error) {
		segment, err := validateSegment(id)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s/%s.json", folder, segment), nil
	}
}

// buildOrderPath shards orders by the date component of the number when
// present, e.g. BM-20250601-XXXX lands in orders/20250601/.
func buildOrderPath(id string) (string, error) {
	segment, err := validateSegment(id)
	if err != nil {
		return "", err
	}
	parts := strings.Split(segment, "-")
	if len(parts) >= 3 && len(parts[1]) == 8 {
		return fmt.Sprintf("orders/%s/%s.json", parts[1], segment), nil
	}
	return fmt.Sprintf("orders/%s.json", segment), nil
}

func validateSegment(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: slot id is required")
	}
	if value == "." || value == ".." {
		return "", fmt.Errorf("storage: slot id contains invalid traversal sequence")
	}
	return url.PathEscape(value), nil
}

func normalisePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
