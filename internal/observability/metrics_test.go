package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTransition(t *testing.T) {
	before := testutil.ToFloat64(transitions.WithLabelValues("aprovado", "ccb_gerada", "ok"))
	RecordTransition("aprovado", "ccb_gerada", nil)
	RecordTransition("aprovado", "ccb_gerada", errors.New("boom"))
	if got := testutil.ToFloat64(transitions.WithLabelValues("aprovado", "ccb_gerada", "ok")); got != before+1 {
		t.Fatalf("ok counter=%v want %v", got, before+1)
	}
	if got := testutil.ToFloat64(transitions.WithLabelValues("aprovado", "ccb_gerada", "error")); got < 1 {
		t.Fatalf("error counter=%v", got)
	}
}

func TestRecordSideEffectAndHTTP(t *testing.T) {
	RecordSideEffect("generate_ccb", nil)
	if got := testutil.ToFloat64(sideEffects.WithLabelValues("generate_ccb", "ok")); got < 1 {
		t.Fatalf("side effect counter=%v", got)
	}
	RecordHTTPRequest("GET", "/health", 200, 5*time.Millisecond)
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/health", "200")); got < 1 {
		t.Fatalf("http counter=%v", got)
	}
}
