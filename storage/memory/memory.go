// Package memstore keeps the document in process memory.
package memstore

import (
	"context"
	"sync"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/storage"
)

type DB struct {
	sync.RWMutex
	doc storage.Document
}

var _ storage.Backend = (*DB)(nil)

func Open(seed ...storage.Document) *DB {
	db := new(DB)
	if len(seed) > 0 {
		db.doc = seed[0].Clone()
	}
	db.doc.Stale = false
	db.doc.Normalize()
	return db
}

func (db *DB) Load(ctx context.Context) (storage.Document, error) {
	if err := ctx.Err(); err != nil {
		return storage.Document{}, core.NewStoreError("load", err, false)
	}
	db.RLock()
	defer db.RUnlock()
	return db.doc.Clone(), nil
}

func (db *DB) Save(ctx context.Context, doc storage.Document) error {
	if err := ctx.Err(); err != nil {
		return core.NewStoreError("save", err, false)
	}
	db.Lock()
	defer db.Unlock()
	if err := storage.CheckVersion(db.doc.Version, doc.Version); err != nil {
		return err
	}
	doc = doc.Clone()
	doc.Version++
	doc.Stale = false
	doc.Normalize()
	db.doc = doc
	return nil
}

func (db *DB) Close() error { return nil }
