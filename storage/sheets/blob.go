package sheetstore

import (
	"bytes"
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

const contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	ErrNotExist     = errors.New("object does not exist")
	ErrPrecondition = errors.New("object generation changed")
)

// Blob holds the workbook as a single object.
type Blob interface {
	// Read returns the object and its generation, or ErrNotExist.
	Read(ctx context.Context) (data []byte, gen string, err error)
	// Write replaces the object only if it is still at generation gen; the empty gen means it must not exist.
	// A lost race is reported as ErrPrecondition.
	Write(ctx context.Context, data []byte, gen string) error
	Close() error
}

// MemBlob is an in-process Blob.
type MemBlob struct {
	mu   sync.Mutex
	data []byte
	gen  int64
}

var _ Blob = (*MemBlob)(nil)

func NewMemBlob() *MemBlob { return new(MemBlob) }

func (b *MemBlob) Read(ctx context.Context) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen == 0 {
		return nil, "", ErrNotExist
	}
	return bytes.Clone(b.data), strconv.FormatInt(b.gen, 10), nil
}

func (b *MemBlob) Write(ctx context.Context, data []byte, gen string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	current := ""
	if b.gen > 0 {
		current = strconv.FormatInt(b.gen, 10)
	}
	if gen != current {
		return ErrPrecondition
	}
	b.data = bytes.Clone(data)
	b.gen++
	return nil
}

func (b *MemBlob) Close() error { return nil }
