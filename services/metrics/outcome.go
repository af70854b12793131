package metrics

import (
	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"

	"github.com/trezcool/coursereview/core"
)

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrConflict):
		return "conflict"
	case core.IsStoreFatal(err):
		return "fatal"
	case core.IsStoreUnavailable(err):
		return "unavailable"
	default:
		return "error"
	}
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
