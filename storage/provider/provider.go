// Package provider builds the configured storage stack.
package provider

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/storage"
	cachestore "github.com/trezcool/coursereview/storage/cache"
	"github.com/trezcool/coursereview/storage/database"
	filestore "github.com/trezcool/coursereview/storage/file"
	memstore "github.com/trezcool/coursereview/storage/memory"
	sheetstore "github.com/trezcool/coursereview/storage/sheets"
)

// Cache backends
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Open builds the backend selected by conf.Store and wraps it with the snapshot cache.
// The SQL backend is migrated up before use. recorder may be nil.
func Open(ctx context.Context, conf *core.Config, logger core.Logger, recorder cachestore.Recorder) (storage.Backend, error) {
	if err := conf.Validate(); err != nil {
		return nil, core.NewStoreError("open", err, true)
	}

	backend, err := OpenBackend(ctx, conf)
	if err != nil {
		return nil, err
	}

	opts := cachestore.Options{
		Name:     conf.Store.Backend,
		TTL:      conf.Store.CacheTTL,
		Timeout:  conf.Store.Timeout,
		Logger:   logger,
		Recorder: recorder,
	}

	var closers []io.Closer
	switch conf.Store.CacheBackend {
	case CacheMemory:
		opts.Snapshots = cachestore.NewMemorySnapshots()
	case CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		opts.Snapshots = cachestore.NewRedisSnapshots(client)
		closers = append(closers, client)
	case CacheNone, "":
		opts.TTL = 0
	default:
		_ = backend.Close()
		return nil, core.NewStoreError("open", errors.Errorf("unknown store.cache_backend %q", conf.Store.CacheBackend), true)
	}

	return &stack{Backend: cachestore.New(backend, opts), closers: closers}, nil
}

// OpenBackend builds the bare backend selected by conf.Store.Backend.
func OpenBackend(ctx context.Context, conf *core.Config) (storage.Backend, error) {
	switch conf.Store.Backend {
	case core.StoreMemory:
		return memstore.Open(), nil

	case core.StoreFile:
		return filestore.Open(conf.Store.DataFile)

	case core.StoreSheets:
		blob, err := openBlob(ctx, conf.Store.Sheets)
		if err != nil {
			return nil, err
		}
		return sheetstore.New(blob), nil

	case core.StoreDatabase:
		db, err := database.Open(ctx, conf.Store.Database.Engine, conf.Store.Database.DSN)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, db, "up"); err != nil {
			_ = db.Close()
			return nil, core.NewStoreError("migrate", err, true)
		}
		return database.New(db), nil
	}
	return nil, core.NewStoreError("open", errors.Errorf("unknown store.backend %q", conf.Store.Backend), true)
}

func openBlob(ctx context.Context, conf core.SheetsConfig) (sheetstore.Blob, error) {
	switch conf.Provider {
	case "gcs":
		return sheetstore.NewGCSBlob(ctx, conf.Bucket, conf.Object)
	case "s3":
		return sheetstore.NewS3Blob(ctx, sheetstore.S3Config{
			Bucket:   conf.Bucket,
			Key:      conf.Object,
			Region:   conf.Region,
			Endpoint: conf.Endpoint,
		})
	case "memory":
		return sheetstore.NewMemBlob(), nil
	}
	return nil, core.NewStoreError("open", errors.Errorf("unknown store.sheets.provider %q", conf.Provider), true)
}

type stack struct {
	storage.Backend
	closers []io.Closer
}

func (s *stack) Close() error {
	err := s.Backend.Close()
	for _, c := range s.closers {
		if cErr := c.Close(); err == nil {
			err = cErr
		}
	}
	return err
}
