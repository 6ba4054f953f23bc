package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRouteLabelCollapsesIDs(t *testing.T) {
	assert.Equal(t, "/api/inquiries/{id}/status", routeLabel("/api/inquiries/42/status"))
	assert.Equal(t, "/inquiries", routeLabel("/inquiries"))
	assert.Equal(t, "/", routeLabel("/"))
}

func TestPrometheusMiddlewareRecordsStatus(t *testing.T) {
	handler := PrometheusMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"Duplicate email"}`))
	}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "/inquiries", "409"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/inquiries", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "/inquiries", "409"))

	assert.Equal(t, before+1, after)
}

func TestBusinessCounters(t *testing.T) {
	before := testutil.ToFloat64(inquirySubmissionsTotal.WithLabelValues("accepted"))
	RecordInquirySubmission("accepted")
	assert.Equal(t, before+1, testutil.ToFloat64(inquirySubmissionsTotal.WithLabelValues("accepted")))

	before = testutil.ToFloat64(notificationsTotal.WithLabelValues("console", "failure"))
	RecordNotification("console", false)
	assert.Equal(t, before+1, testutil.ToFloat64(notificationsTotal.WithLabelValues("console", "failure")))

	before = testutil.ToFloat64(dbQueriesTotal.WithLabelValues("insert", "error"))
	RecordDBQuery("insert", time.Millisecond, errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(dbQueriesTotal.WithLabelValues("insert", "error")))

	UpdateDBConnections(2, 3)
	assert.Equal(t, 2.0, testutil.ToFloat64(dbConnectionsActive))
	assert.Equal(t, 3.0, testutil.ToFloat64(dbConnectionsIdle))
}
