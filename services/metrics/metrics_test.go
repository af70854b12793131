package metrics

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/coursereview/core"
)

func TestRecorder(t *testing.T) {
	rec := NewRecorder(prometheus.NewRegistry())

	rec.ReviewSubmitted("SCI")
	rec.ReviewSubmitted("SCI")
	rec.ReviewsModerated("approve", 3)
	rec.ReviewsModerated("reject", 1)
	rec.CacheLookup(true)
	rec.CacheLookup(false)
	rec.CacheLookup(true)
	rec.BreakerState("sheets", gobreaker.StateOpen)
	rec.HTTPRequest("GET", "/api/reviews", 200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.reviewsSubmitted.WithLabelValues("SCI")))
	assert.Equal(t, 3.0, testutil.ToFloat64(rec.reviewsModerated.WithLabelValues("approve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.reviewsModerated.WithLabelValues("reject")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.breakerState.WithLabelValues("sheets")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.httpRequests.WithLabelValues("GET", "/api/reviews", "200")))
}

func TestRecorder_StoreCall(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "ok", want: "ok"},
		{name: "conflict", err: errors.Wrap(core.ErrConflict, "stored version 2"), want: "conflict"},
		{name: "fatal", err: core.NewStoreError("load", errors.New("403"), true), want: "fatal"},
		{name: "unavailable", err: core.NewStoreError("load", errors.New("timeout"), false), want: "unavailable"},
		{name: "other", err: errors.New("lol"), want: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewRecorder(prometheus.NewRegistry())
			rec.StoreCall("load", 10*time.Millisecond, tt.err)
			assert.Equal(t, 1.0, testutil.ToFloat64(rec.storeCalls.WithLabelValues("load", tt.want)))
			assert.Equal(t, 1, testutil.CollectAndCount(rec.storeDuration))
		})
	}
}
