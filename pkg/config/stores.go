package config

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/marmos91/dittorepo/pkg/store/metadata"
	"github.com/marmos91/dittorepo/pkg/store/metadata/badger"
	metadatamemory "github.com/marmos91/dittorepo/pkg/store/metadata/memory"
	"github.com/marmos91/dittorepo/pkg/store/metadata/sqlite"
	"github.com/mitchellh/mapstructure"
)

// createMetadataStore creates a single metadata store instance and wraps it
// with timing instrumentation. A nil m disables the instrumentation.
func createMetadataStore(
	ctx context.Context,
	cfg MetadataStoreConfig,
	m metrics.StoreMetrics,
) (metadata.Store, error) {
	var (
		store metadata.Store
		err   error
	)

	switch cfg.Type {
	case "memory":
		store, err = createMemoryMetadataStore(cfg)
	case "badger":
		store, err = createBadgerMetadataStore(ctx, cfg)
	case "sqlite":
		store, err = createSQLiteMetadataStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown metadata store type: %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if m == nil {
		return store, nil
	}
	return metadata.Instrument(store, cfg.Type, m), nil
}

// createMemoryMetadataStore creates an in-memory metadata store.
func createMemoryMetadataStore(cfg MetadataStoreConfig) (metadata.Store, error) {
	// Decode memory-specific configuration
	var memoryCfg metadatamemory.MemoryMetadataStoreConfig
	if err := decodeStoreConfig(cfg.Memory, &memoryCfg); err != nil {
		return nil, fmt.Errorf("invalid memory config: %w", err)
	}

	return metadatamemory.NewMemoryMetadataStore(memoryCfg), nil
}

// createBadgerMetadataStore creates a BadgerDB metadata store.
func createBadgerMetadataStore(ctx context.Context, cfg MetadataStoreConfig) (metadata.Store, error) {
	// Decode BadgerDB-specific configuration
	var badgerCfg badger.BadgerMetadataStoreConfig
	if err := decodeStoreConfig(cfg.Badger, &badgerCfg); err != nil {
		return nil, fmt.Errorf("invalid badger config: %w", err)
	}

	store, err := badger.NewBadgerMetadataStore(ctx, badgerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return store, nil
}

// createSQLiteMetadataStore creates a SQLite metadata store.
func createSQLiteMetadataStore(ctx context.Context, cfg MetadataStoreConfig) (metadata.Store, error) {
	var sqliteCfg sqlite.SQLiteMetadataStoreConfig
	if err := decodeStoreConfig(cfg.SQLite, &sqliteCfg); err != nil {
		return nil, fmt.Errorf("invalid sqlite config: %w", err)
	}

	store, err := sqlite.NewSQLiteMetadataStore(ctx, sqliteCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return store, nil
}

// decodeStoreConfig decodes a store-specific section. Durations may be given
// as strings ("5s") like everywhere else in the file, sizes as byte strings
// ("64MiB").
func decodeStoreConfig(input map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			byteSizeHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// byteSizeHookFunc lets integer store options be written as byte sizes
// ("64MiB", "1.5 GB"). Plain integers are left to the weak decoder.
func byteSizeHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String {
			return data, nil
		}
		switch to.Kind() {
		case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64:
		default:
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if _, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return data, nil
		}
		n, err := humanize.ParseBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid size %q: %w", raw, err)
		}
		if n > math.MaxInt64 {
			return nil, fmt.Errorf("size %q is too large", raw)
		}
		return int64(n), nil
	}
}
