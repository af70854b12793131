// Package sheetstore persists the document as a spreadsheet workbook held in a single blob.
package sheetstore

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/storage"
)

type Store struct {
	mu   sync.Mutex
	blob Blob
}

var _ storage.Backend = (*Store)(nil)

func New(blob Blob) *Store {
	return &Store{blob: blob}
}

func (s *Store) Load(ctx context.Context) (storage.Document, error) {
	doc, _, err := s.read(ctx, "load")
	return doc, err
}

func (s *Store) read(ctx context.Context, op string) (storage.Document, string, error) {
	var doc storage.Document
	data, gen, err := s.blob.Read(ctx)
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			doc.Normalize()
			return doc, "", nil
		}
		return doc, "", storeError(op, err)
	}
	doc, err = decode(data)
	if err != nil {
		return doc, "", core.NewStoreError(op, errors.Wrap(err, "decoding workbook"), true)
	}
	return doc, gen, nil
}

// Save writes doc if the stored workbook is still at doc.Version.
// A concurrent writer is detected through the blob generation even when both read the same version.
func (s *Store) Save(ctx context.Context, doc storage.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, gen, err := s.read(ctx, "save")
	if err != nil {
		return err
	}
	if err := storage.CheckVersion(current.Version, doc.Version); err != nil {
		return err
	}

	doc = doc.Clone()
	doc.Version++
	data, err := encode(doc)
	if err != nil {
		return core.NewStoreError("save", errors.Wrap(err, "encoding workbook"), true)
	}
	if err := s.blob.Write(ctx, data, gen); err != nil {
		if errors.Is(err, ErrPrecondition) {
			return errors.Wrap(core.ErrConflict, "workbook changed while saving")
		}
		return storeError("save", err)
	}
	return nil
}

func (s *Store) Close() error { return s.blob.Close() }

// storeError keeps StoreErrors from the blob and reports anything else as retryable.
func storeError(op string, err error) error {
	var sErr *core.StoreError
	if errors.As(err, &sErr) {
		return err
	}
	return core.NewStoreError(op, err, false)
}
