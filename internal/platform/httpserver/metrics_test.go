package httpserver

import (
	"log/slog"
	"net/http"
	"testing"

	ballotengine "quorum/contexts/election-core/ballot-engine"
	tallyengine "quorum/contexts/election-core/tally-engine"
	"quorum/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Registers on the default prometheus registry, so metrics.New runs exactly
// once in this test binary.
func TestRequestCounterTracksRouteAndStatus(t *testing.T) {
	m := metrics.New()
	server := New(
		ballotengine.NewInMemoryModule(nil, slog.Default()),
		tallyengine.NewInMemoryModule(slog.Default()),
		m,
		slog.Default(),
		":0",
	)

	rr := doJSON(t, server, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	rr = doJSON(t, server, http.MethodGet, "/votes/vote-missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET /healthz", "200")); got != 1 {
		t.Fatalf("expected 1 healthz request counted, got %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET /votes/{vote_id}", "404")); got != 1 {
		t.Fatalf("expected 1 missing-vote request counted, got %v", got)
	}
}
