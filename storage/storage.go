// Package storage defines the persisted document and adapts a Backend to the review and user repositories.
package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/core/review"
	"github.com/trezcool/coursereview/core/user"
)

var errStaleWrite = errors.New("refusing to write over a cached snapshot")

// Document is everything the application persists.
// Version increases by one on every successful save.
type Document struct {
	Version  int64           `json:"version"`
	Pending  []review.Review `json:"pending_reviews"`
	Approved []review.Review `json:"approved_reviews"`
	Users    []user.User     `json:"users"`
	Tokens   []user.Token    `json:"tokens"`
	Stale    bool            `json:"-"` // served from a fallback cache
}

// Clone returns a copy of d that shares no slices with it.
func (d Document) Clone() Document {
	return Document{
		Version:  d.Version,
		Pending:  cloneSlice(d.Pending),
		Approved: cloneSlice(d.Approved),
		Users:    cloneSlice(d.Users),
		Tokens:   cloneSlice(d.Tokens),
		Stale:    d.Stale,
	}
}

// Normalize replaces nil collections with empty ones.
func (d *Document) Normalize() {
	if d.Pending == nil {
		d.Pending = []review.Review{}
	}
	if d.Approved == nil {
		d.Approved = []review.Review{}
	}
	if d.Users == nil {
		d.Users = []user.User{}
	}
	if d.Tokens == nil {
		d.Tokens = []user.Token{}
	}
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}

// Backend persists a Document.
// Load of a store that was never written returns an empty Document at version 0, not an error.
// Save is a compare-and-swap: it fails with core.ErrConflict unless doc.Version is the stored version,
// and stores doc with Version+1 otherwise.
// Failures are reported as *core.StoreError.
type Backend interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, doc Document) error
	Close() error
}

// CheckVersion returns core.ErrConflict when a save based on version would overwrite a newer document.
func CheckVersion(stored, version int64) error {
	if stored != version {
		return errors.Wrapf(core.ErrConflict, "stored version %d, saving over %d", stored, version)
	}
	return nil
}

type reviewRepository struct {
	backend Backend
}

// Reviews exposes the review collections of b.
func Reviews(b Backend) review.Repository {
	return &reviewRepository{backend: b}
}

func (repo *reviewRepository) Load(ctx context.Context) (review.Collections, error) {
	doc, err := repo.backend.Load(ctx)
	if err != nil {
		return review.Collections{}, err
	}
	return review.Collections{
		Version:  doc.Version,
		Pending:  cloneSlice(doc.Pending),
		Approved: cloneSlice(doc.Approved),
		Stale:    doc.Stale,
	}, nil
}

func (repo *reviewRepository) Save(ctx context.Context, cols review.Collections) error {
	return update(ctx, repo.backend, cols.Version, func(doc *Document) {
		doc.Pending = cloneSlice(cols.Pending)
		doc.Approved = cloneSlice(cols.Approved)
	})
}

type userRepository struct {
	backend Backend
}

// Users exposes the accounts of b.
func Users(b Backend) user.Repository {
	return &userRepository{backend: b}
}

func (repo *userRepository) Load(ctx context.Context) (user.Accounts, error) {
	doc, err := repo.backend.Load(ctx)
	if err != nil {
		return user.Accounts{}, err
	}
	return user.Accounts{
		Version: doc.Version,
		Users:   cloneSlice(doc.Users),
		Tokens:  cloneSlice(doc.Tokens),
		Stale:   doc.Stale,
	}, nil
}

func (repo *userRepository) Save(ctx context.Context, acc user.Accounts) error {
	return update(ctx, repo.backend, acc.Version, func(doc *Document) {
		doc.Users = cloneSlice(acc.Users)
		doc.Tokens = cloneSlice(acc.Tokens)
	})
}

// update replaces part of the document read at version, keeping the rest as currently stored.
func update(ctx context.Context, b Backend, version int64, fn func(doc *Document)) error {
	doc, err := b.Load(ctx)
	if err != nil {
		return err
	}
	if doc.Stale {
		return core.NewStoreError("save", errStaleWrite, false)
	}
	if err := CheckVersion(doc.Version, version); err != nil {
		return err
	}
	fn(&doc)
	return b.Save(ctx, doc)
}
