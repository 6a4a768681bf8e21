package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())

	m.RecordSubmission("quiz", "synced")
	m.RecordSubmission("quiz", "synced")
	m.RecordSubmission("popup", "sync_failed")
	m.RecordCRMSync(true)
	m.RecordCRMSync(false)
	m.RecordCRMSync(false)
	m.RecordNotification("sent")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Submissions.WithLabelValues("quiz", "synced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues("popup", "sync_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CRMSyncs.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CRMSyncs.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("sent")))
}

func TestMiddleware_RoutePattern(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/plain", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "ok")
	})

	for _, path := range []string{"/items/1", "/items/2", "/plain", "/missing"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/items/{id}", "202")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/plain", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestDuration.WithLabelValues("GET", "/plain").(prometheus.Histogram)))
}

func TestHandler(t *testing.T) {
	t.Parallel()

	m := New(nil)
	m.RecordSubmission("popup", "synced")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `leads_submissions_total{form="popup",outcome="synced"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestNew_SeparateRegistries(t *testing.T) {
	t.Parallel()

	// Two instances must not collide on registration.
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
