package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOperation(t *testing.T) {
	before := testutil.ToFloat64(Operations.WithLabelValues("upload", ResultIntegrity))
	RecordOperation("upload", ResultIntegrity, time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(Operations.WithLabelValues("upload", ResultIntegrity)))
	assert.Positive(t, testutil.CollectAndCount(OperationDuration, "storage_adapter_operation_duration_seconds"))
}

func TestRecordFetch(t *testing.T) {
	okBefore := testutil.ToFloat64(BackendFetches.WithLabelValues(ResultOK))
	errBefore := testutil.ToFloat64(BackendFetches.WithLabelValues(ResultError))

	RecordFetch(true, time.Millisecond)
	RecordFetch(false, time.Millisecond)
	RecordFetch(false, time.Millisecond)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(BackendFetches.WithLabelValues(ResultOK)))
	assert.Equal(t, errBefore+2, testutil.ToFloat64(BackendFetches.WithLabelValues(ResultError)))
}

func TestRecordUploadedBytes(t *testing.T) {
	before := testutil.ToFloat64(BytesUploaded)
	RecordUploadedBytes(10)
	RecordUploadedBytes(0)
	RecordUploadedBytes(-3)
	assert.Equal(t, before+10, testutil.ToFloat64(BytesUploaded))
}

func TestMetricsServer(t *testing.T) {
	srv, err := New("test", "127.0.0.1:0")
	require.NoError(t, err)

	// A second server for the same service reuses the registered gauge
	_, err = New("test", "127.0.0.1:0")
	require.NoError(t, err)

	RecordOperation("find", ResultOK, time.Millisecond)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storage_adapter_operations_total")
	assert.Contains(t, rec.Body.String(), `storage_adapter_build_info{service="test"} 1`)
}
