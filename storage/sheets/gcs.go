package sheetstore

import (
	"context"
	"io"
	"net/http"
	"strconv"

	gcs "cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"

	"github.com/trezcool/coursereview/core"
)

// GCSBlob stores the workbook in a Google Cloud Storage object, using object generations as preconditions.
type GCSBlob struct {
	client *gcs.Client
	obj    *gcs.ObjectHandle
}

var _ Blob = (*GCSBlob)(nil)

// NewGCSBlob uses Application Default Credentials.
func NewGCSBlob(ctx context.Context, bucket, object string) (*GCSBlob, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, core.NewStoreError("open", errors.Wrap(err, "creating gcs client"), true)
	}
	return &GCSBlob{client: client, obj: client.Bucket(bucket).Object(object)}, nil
}

func (b *GCSBlob) Read(ctx context.Context) ([]byte, string, error) {
	r, err := b.obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, "", ErrNotExist
		}
		return nil, "", classifyGCS("load", err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", classifyGCS("load", err)
	}
	return data, strconv.FormatInt(r.Attrs.Generation, 10), nil
}

func (b *GCSBlob) Write(ctx context.Context, data []byte, gen string) error {
	cond := gcs.Conditions{DoesNotExist: true}
	if gen != "" {
		g, err := strconv.ParseInt(gen, 10, 64)
		if err != nil {
			return core.NewStoreError("save", errors.Wrapf(err, "bad generation %q", gen), true)
		}
		cond = gcs.Conditions{GenerationMatch: g}
	}

	w := b.obj.If(cond).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return classifyGCS("save", err)
	}
	if err := w.Close(); err != nil {
		return classifyGCS("save", err)
	}
	return nil
}

func (b *GCSBlob) Close() error { return b.client.Close() }

// classifyGCS turns a GCS failure into ErrPrecondition or a StoreError.
// Authentication, permission and missing bucket errors are fatal; anything else is retryable.
func classifyGCS(op string, err error) error {
	if errors.Is(err, gcs.ErrBucketNotExist) {
		return core.NewStoreError(op, err, true)
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusPreconditionFailed:
			return ErrPrecondition
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return core.NewStoreError(op, err, true)
		}
	}
	return core.NewStoreError(op, err, false)
}
