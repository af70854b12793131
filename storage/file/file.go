// Package filestore persists the document as one JSON file.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/trezcool/coursereview/core"
	appfs "github.com/trezcool/coursereview/fs"
	"github.com/trezcool/coursereview/storage"
)

const (
	schemaFile = "schema/document.schema.json"
	schemaURL  = "https://coursereview.local/schema/document.schema.json"
)

type Store struct {
	mu     sync.Mutex
	path   string
	schema *jsonschema.Schema
}

var _ storage.Backend = (*Store)(nil)

// Open returns a Store backed by the file at path. The file is created by the first save.
func Open(path string) (*Store, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, core.NewStoreError("open", err, true)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, core.NewStoreError("open", errors.Wrapf(err, "creating %s", dir), true)
		}
	}
	return &Store{path: path, schema: schema}, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	raw, err := appfs.FS.ReadFile(schemaFile)
	if err != nil {
		return nil, errors.Wrap(err, "reading document schema")
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, bytes.NewReader(raw)); err != nil {
		return nil, errors.Wrap(err, "loading document schema")
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return nil, errors.Wrap(err, "compiling document schema")
	}
	return schema, nil
}

func (s *Store) Load(ctx context.Context) (storage.Document, error) {
	if err := ctx.Err(); err != nil {
		return storage.Document{}, core.NewStoreError("load", err, false)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *Store) read() (storage.Document, error) {
	var doc storage.Document
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			doc.Normalize()
			return doc, nil
		}
		return doc, core.NewStoreError("load", errors.Wrapf(err, "reading %s", s.path), errors.Is(err, fs.ErrPermission))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		doc.Normalize()
		return doc, nil
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return doc, core.NewStoreError("load", errors.Wrapf(err, "decoding %s", s.path), true)
	}
	if err := s.schema.Validate(generic); err != nil {
		return doc, core.NewStoreError("load", errors.Wrapf(err, "validating %s", s.path), true)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, core.NewStoreError("load", errors.Wrapf(err, "decoding %s", s.path), true)
	}
	doc.Normalize()
	return doc, nil
}

func (s *Store) Save(ctx context.Context, doc storage.Document) error {
	if err := ctx.Err(); err != nil {
		return core.NewStoreError("save", err, false)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		return err
	}
	if err := storage.CheckVersion(current.Version, doc.Version); err != nil {
		return err
	}

	doc = doc.Clone()
	doc.Version++
	doc.Normalize()
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return core.NewStoreError("save", errors.Wrap(err, "encoding document"), true)
	}
	return s.write(raw)
}

// write replaces the file atomically: readers see either the old or the new document.
func (s *Store) write(raw []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return core.NewStoreError("save", errors.Wrap(err, "creating temp file"), errors.Is(err, fs.ErrPermission))
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		cleanup()
		return core.NewStoreError("save", errors.Wrap(err, "writing temp file"), false)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return core.NewStoreError("save", errors.Wrap(err, "syncing temp file"), false)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return core.NewStoreError("save", errors.Wrap(err, "closing temp file"), false)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return core.NewStoreError("save", errors.Wrapf(err, "replacing %s", s.path), errors.Is(err, fs.ErrPermission))
	}
	return nil
}

func (s *Store) Close() error { return nil }
