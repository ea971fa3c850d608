package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if CommandsHandled == nil || ClockIns == nil || ClockOuts == nil || LatenessSeconds == nil || Resets == nil || TransportReconnects == nil {
		t.Fatalf("expected all collectors to be initialized")
	}
}

func TestObserveHelpersIncrementCounters(t *testing.T) {
	Init()

	before := testutil.ToFloat64(CommandsHandled.WithLabelValues("!in", "ok"))
	ObserveCommand("!in", "ok")
	if got := testutil.ToFloat64(CommandsHandled.WithLabelValues("!in", "ok")); got != before+1 {
		t.Fatalf("expected command counter to increase by 1, got %v -> %v", before, got)
	}

	clockIns := testutil.ToFloat64(ClockIns)
	ObserveClockIn(5 * time.Minute)
	if got := testutil.ToFloat64(ClockIns); got != clockIns+1 {
		t.Fatalf("expected clock-in counter to increase by 1, got %v -> %v", clockIns, got)
	}

	resets := testutil.ToFloat64(Resets.WithLabelValues("scheduler"))
	ObserveReset("scheduler")
	if got := testutil.ToFloat64(Resets.WithLabelValues("scheduler")); got != resets+1 {
		t.Fatalf("expected reset counter to increase by 1, got %v -> %v", resets, got)
	}

	reconnects := testutil.ToFloat64(TransportReconnects.WithLabelValues("slack"))
	ObserveReconnect("slack")
	if got := testutil.ToFloat64(TransportReconnects.WithLabelValues("slack")); got != reconnects+1 {
		t.Fatalf("expected reconnect counter to increase by 1, got %v -> %v", reconnects, got)
	}
}
