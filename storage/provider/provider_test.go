package provider

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coursereview/core"
	logsvc "github.com/trezcool/coursereview/services/logger"
	testutil "github.com/trezcool/coursereview/tests"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name      string
		configure func(t *testing.T, conf *core.Config)
	}{
		{name: "memory", configure: func(*testing.T, *core.Config) {}},
		{
			name: "file",
			configure: func(t *testing.T, conf *core.Config) {
				conf.Store.Backend = core.StoreFile
				conf.Store.DataFile = filepath.Join(t.TempDir(), "data.json")
				conf.Store.CacheBackend = CacheMemory
			},
		},
		{
			name: "sheets",
			configure: func(t *testing.T, conf *core.Config) {
				conf.Store.Backend = core.StoreSheets
				conf.Store.Sheets.Provider = "memory"
			},
		},
		{
			name: "sqlite",
			configure: func(t *testing.T, conf *core.Config) {
				conf.Store.Backend = core.StoreDatabase
				conf.Store.Database.Engine = "sqlite"
				conf.Store.Database.DSN = filepath.Join(t.TempDir(), "reviews.db")
			},
		},
		{
			name: "redis cache",
			configure: func(t *testing.T, conf *core.Config) {
				conf.Store.CacheBackend = CacheRedis
				conf.Redis.Addr = miniredis.RunT(t).Addr()
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := core.NewTestConfig()
			tt.configure(t, conf)
			logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
			ctx := context.Background()

			b, err := Open(ctx, conf, logger, nil)
			require.NoError(t, err)
			defer func() { assert.NoError(t, b.Close()) }()

			require.NoError(t, b.Save(ctx, testutil.SampleDocument()))
			doc, err := b.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), doc.Version)
			assert.Len(t, doc.Approved, 3)
		})
	}
}

func TestOpen_fatal(t *testing.T) {
	tests := []struct {
		name      string
		configure func(conf *core.Config)
	}{
		{name: "unknown backend", configure: func(conf *core.Config) { conf.Store.Backend = "lol" }},
		{name: "unknown cache", configure: func(conf *core.Config) { conf.Store.CacheBackend = "lol" }},
		{
			name: "sheets without bucket",
			configure: func(conf *core.Config) {
				conf.Store.Backend = core.StoreSheets
				conf.Store.Sheets.Provider = "gcs"
				conf.Store.Sheets.Bucket = ""
			},
		},
		{
			name: "unknown database engine",
			configure: func(conf *core.Config) {
				conf.Store.Backend = core.StoreDatabase
				conf.Store.Database.Engine = "oracle"
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := core.NewTestConfig()
			tt.configure(conf)
			logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)

			_, err := Open(context.Background(), conf, logger, nil)
			assert.True(t, core.IsStoreFatal(err), "got %v", err)
		})
	}
}
