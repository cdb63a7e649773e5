package observability

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gatekeeper/internal/models"
	"gatekeeper/internal/stats"
	"gatekeeper/internal/version"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMetricsProvider(t *testing.T) *Provider {
	t.Helper()
	provider, err := Setup(
		models.MetricsConfig{Enabled: true, Path: "/metrics", Port: 9090},
		models.ObservabilityConfig{ServiceName: "gatekeeper-test"},
		version.Info{Version: "test"},
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider
}

func TestMetricsServer_ServesDecisions(t *testing.T) {
	provider := setupMetricsProvider(t)

	rec, err := NewDecisionRecorder(WithMeterProvider(provider.MeterProvider()))
	require.NoError(t, err)
	require.NoError(t, rec.Record(context.Background(), stats.Event{
		RuleClass: "auth",
		Outcome:   stats.OutcomeRateLimited,
		Method:    http.MethodPost,
	}))

	ms := NewMetricsServer(0, "/metrics", provider)
	rr := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "gatekeeper_decisions")
	assert.Contains(t, body, `outcome="rate_limited"`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsServer_RegistryGather(t *testing.T) {
	provider := setupMetricsProvider(t)

	rec, err := NewDecisionRecorder(WithMeterProvider(provider.MeterProvider()))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, rec.Record(context.Background(), stats.Event{RuleClass: "api", Outcome: stats.OutcomeAllowed}))
	}

	families, err := provider.Registry().Gather()
	require.NoError(t, err)

	total, found := counterTotal(families, "gatekeeper_decisions")
	require.True(t, found, "decision counter not exported")
	assert.Equal(t, float64(3), total)
}

// counterTotal sums every counter sample in the families whose name starts
// with prefix.
func counterTotal(families []*dto.MetricFamily, prefix string) (float64, bool) {
	var total float64
	found := false
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), prefix) || mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		found = true
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total, found
}

func TestMetricsServer_NilProvider(t *testing.T) {
	ms := NewMetricsServer(9090, "/metrics", nil)
	require.NotNil(t, ms)

	rr := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsServer_ServeAndShutdown(t *testing.T) {
	provider := setupMetricsProvider(t)
	ms := NewMetricsServer(0, "/metrics", provider)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- ms.Serve(l) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + l.Addr().String() + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ms.Shutdown(ctx))
	assert.Equal(t, http.ErrServerClosed, <-errCh)
}
