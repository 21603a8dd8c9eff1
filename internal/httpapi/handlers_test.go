package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fenilsonani/kvstore/internal/batch"
	"github.com/fenilsonani/kvstore/internal/encode"
	"github.com/fenilsonani/kvstore/internal/engine"
	"github.com/fenilsonani/kvstore/internal/store"
)

const testToken = "test-token"

func newTestServer(t *testing.T) (http.Handler, func()) {
	t.Helper()
	h, _, cleanup := newTestServerWithMetrics(t)
	return h, cleanup
}

func newTestServerWithMetrics(t *testing.T) (http.Handler, *Metrics, func()) {
	t.Helper()
	s, err := store.Open(store.Options{Path: t.TempDir() + "/kv.db"})
	require.NoError(t, err)

	codec, err := encode.NewCodec(1)
	require.NoError(t, err)

	eng := engine.New(s, codec)
	executor := batch.NewExecutor(s, codec, 1000)
	metrics := NewMetrics()
	s.SetUpdateObserver(func(d time.Duration) {
		metrics.TxDuration.Observe(d.Seconds())
	})

	handler := NewServer(Config{
		Engine:   eng,
		Executor: executor,
		Store:    s,
		Metrics:  metrics,
		Logger:   zap.NewNop(),
		Token:    testToken,
	})

	cleanup := func() {
		codec.Close()
		s.Close()
	}
	return handler, metrics, cleanup
}

func authedReq(method, path string, body []byte) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

func TestHealthzUnauthenticated(t *testing.T) {
	h, cleanup := newTestServer(t)
	defer cleanup()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPutRequiresAuth(t *testing.T) {
	h, cleanup := newTestServer(t)
	defer cleanup()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/foo", bytes.NewReader([]byte("bar"))))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPutThenGetRoundTrip(t *testing.T) {
	h, cleanup := newTestServer(t)
	defer cleanup()

	putRec := httptest.NewRecorder()
	h.ServeHTTP(putRec, authedReq(http.MethodPut, "/foo", []byte("hello world")))
	require.Equal(t, http.StatusCreated, putRec.Code)
	hash := putRec.Header().Get("X-Hash")
	assert.NotEmpty(t, hash)
	assert.Equal(t, "false", putRec.Header().Get("X-Deduplicated"))

	getRec := httptest.NewRecorder()
	h.ServeHTTP(getRec, authedReq(http.MethodGet, "/foo", nil))
	require.Equal(t, http.StatusOK, getRec.Code)
	assert.Equal(t, "hello world", getRec.Body.String())
	assert.Equal(t, hash, getRec.Header().Get("X-Hash"))
}

func TestPutSecondKeySameValueDeduplicates(t *testing.T) {
	h, cleanup := newTestServer(t)
	defer cleanup()

	rec1 := httptest.NewRecorder()
	h.ServeHTTP(rec1, authedReq(http.MethodPut, "/a", []byte("shared")))
	require.Equal(t, http.StatusCreated, rec1.Code)

	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, authedReq(http.MethodPut, "/b", []byte("shared")))
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, "true", rec2.Header().Get("X-Deduplicated"))
	assert.Equal(t, rec1.Header().Get("X-Hash"), rec2.Header().Get("X-Hash"))
}

func TestGetMissingKeyIs404(t *testing.T) {
	h, cleanup := newTestServer(t)
	defer cleanup()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedReq(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHeadReturnsMetadataNoBody(t *testing.T) {
	h, cleanup := newTestServer(t)
	defer cleanup()

	h.ServeHTTP(httptest.NewRecorder(), authedReq(http.MethodPut, "/foo", []byte("abc")))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedReq(http.MethodHead, "/foo", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
	assert.Equal(t, "3", rec.Header().Get("Content-Length"))
}

func TestDeleteThenGetIs404(t *testing.T) {
	h, cleanup := newTestServer(t)
	defer cleanup()

	h.ServeHTTP(httptest.NewRecorder(), authedReq(http.MethodPut, "/foo", []byte("abc")))

	delRec := httptest.NewRecorder()
	h.ServeHTTP(delRec, authedReq(http.MethodDelete, "/foo", nil))
	assert.Equal(t, http.StatusNoContent, delRec.Code)

	getRec := httptest.NewRecorder()
	h.ServeHTTP(getRec, authedReq(http.MethodGet, "/foo", nil))
	assert.Equal(t, http.StatusNotFound, getRec.Code)
}

func TestDeleteIncrementsGCObjectsTotal(t *testing.T) {
	h, metrics, cleanup := newTestServerWithMetrics(t)
	defer cleanup()

	h.ServeHTTP(httptest.NewRecorder(), authedReq(http.MethodPut, "/foo", []byte("abc")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.GCObjectsTotal))

	h.ServeHTTP(httptest.NewRecorder(), authedReq(http.MethodDelete, "/foo", nil))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.GCObjectsTotal))
}

func TestOverwriteIncrementsGCObjectsTotal(t *testing.T) {
	h, metrics, cleanup := newTestServerWithMetrics(t)
	defer cleanup()

	h.ServeHTTP(httptest.NewRecorder(), authedReq(http.MethodPut, "/foo", []byte("A")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.GCObjectsTotal))

	h.ServeHTTP(httptest.NewRecorder(), authedReq(http.MethodPut, "/foo", []byte("B")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.GCObjectsTotal))
}

func TestPutObservesTxDuration(t *testing.T) {
	h, metrics, cleanup := newTestServerWithMetrics(t)
	defer cleanup()

	// sampleCount reads the histogram's observation count from the registry;
	// the number of collected series stays at one however many samples land.
	sampleCount := func() uint64 {
		mfs, err := metrics.Registry.Gather()
		require.NoError(t, err)
		for _, mf := range mfs {
			if mf.GetName() == "store_transaction_duration_seconds" {
				return mf.GetMetric()[0].GetHistogram().GetSampleCount()
			}
		}
		return 0
	}

	before := sampleCount()

	h.ServeHTTP(httptest.NewRecorder(), authedReq(http.MethodPut, "/foo", []byte("abc")))

	after := sampleCount()
	assert.Greater(t, after, before)
}

func TestListReturnsAllPutKeys(t *testing.T) {
	h, cleanup := newTestServer(t)
	defer cleanup()

	for _, k := range []string{"a", "b", "c"} {
		h.ServeHTTP(httptest.NewRecorder(), authedReq(http.MethodPut, "/"+k, []byte(k)))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedReq(http.MethodGet, "/keys?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Len(t, resp.Keys, 3)
}

func TestBatchMixedOps(t *testing.T) {
	h, cleanup := newTestServer(t)
	defer cleanup()

	h.ServeHTTP(httptest.NewRecorder(), authedReq(http.MethodPut, "/existing", []byte("old")))

	body, err := json.Marshal([]batchOpJSON{
		{Op: "put", Key: "new", Value: "v1"},
		{Op: "get", Key: "existing"},
		{Op: "delete", Key: "existing"},
		{Op: "get", Key: "nonexistent"},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedReq(http.MethodPost, "/batch", body))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results []batchResultJSON `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 4)

	require.NotNil(t, resp.Results[0].Created)
	assert.True(t, *resp.Results[0].Created)

	require.NotNil(t, resp.Results[1].Found)
	assert.True(t, *resp.Results[1].Found)
	assert.Equal(t, "old", resp.Results[1].Value)

	require.NotNil(t, resp.Results[2].Deleted)
	assert.True(t, *resp.Results[2].Deleted)

	require.NotNil(t, resp.Results[3].Found)
	assert.False(t, *resp.Results[3].Found)
}

func TestBatchRejectsOversized(t *testing.T) {
	h, cleanup := newTestServer(t)
	defer cleanup()

	ops := make([]batchOpJSON, 2000)
	for i := range ops {
		ops[i] = batchOpJSON{Op: "get", Key: "x"}
	}
	body, err := json.Marshal(ops)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedReq(http.MethodPost, "/batch", body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpointUnauthenticated(t *testing.T) {
	h, cleanup := newTestServer(t)
	defer cleanup()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "keys_total")
}
