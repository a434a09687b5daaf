package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(s *sink) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/reports", s.handleReport).Methods(http.MethodPost)
	r.HandleFunc("/v1/reports/batch", s.handleBatch).Methods(http.MethodPost)
	r.HandleFunc("/v1/stream", s.handleStream).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return r
}

func TestHandleReport(t *testing.T) {
	s := newSink(true)
	router := newTestRouter(s)

	body := `{"projectId":"p1","type":"error","errorMessage":"boom"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/reports", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, s.total())
}

func TestHandleReportInvalidJSON(t *testing.T) {
	s := newSink(true)
	router := newTestRouter(s)

	req := httptest.NewRequest(http.MethodPost, "/v1/reports", strings.NewReader("{nope"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, s.total())
}

func TestHandleBatch(t *testing.T) {
	s := newSink(true)
	router := newTestRouter(s)

	body := `[{"projectId":"p1","type":"error"},{"projectId":"p1","type":"http"}]`
	req := httptest.NewRequest(http.MethodPost, "/v1/reports/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"accepted":2}`, rec.Body.String())
	assert.Equal(t, 2, s.total())
}

func TestHandleStream(t *testing.T) {
	s := newSink(true)
	srv := httptest.NewServer(newTestRouter(s))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	frame := []byte(`[{"projectId":"p1","type":"error","errorMessage":"streamed"}]`)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	require.Eventually(t, func() bool { return s.total() == 1 },
		2*time.Second, 10*time.Millisecond, "stream frame never accepted")
}

func TestHealthz(t *testing.T) {
	s := newSink(true)
	router := newTestRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("ok")))
}
