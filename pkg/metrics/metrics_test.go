package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareCounts(t *testing.T) {
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "made")
	}))

	before := testutil.ToFloat64(RequestTotal.WithLabelValues(http.MethodPost, "/things", "201"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/things", nil))
	after := testutil.ToFloat64(RequestTotal.WithLabelValues(http.MethodPost, "/things", "201"))

	assert.Equal(t, before+1, after)
	assert.Equal(t, float64(0), testutil.ToFloat64(RequestInFlight))
}

func TestObserveHelpers(t *testing.T) {
	failed := testutil.ToFloat64(HMRBuilds.WithLabelValues("failed"))
	ObserveBuild(time.Second, errors.New("boom"))
	assert.Equal(t, failed+1, testutil.ToFloat64(HMRBuilds.WithLabelValues("failed")))

	saved := testutil.ToFloat64(SessionSaves.WithLabelValues("success"))
	ObserveSessionSave(nil)
	assert.Equal(t, saved+1, testutil.ToFloat64(SessionSaves.WithLabelValues("success")))

	ObservePlugin("healthz", time.Now(), nil)
	assert.Equal(t, 1, testutil.CollectAndCount(PluginInitDuration, "serverkit_startup_plugin_init_duration_seconds"))
}

func TestHandlerServesRegistry(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "serverkit_http_requests_in_flight")
}
