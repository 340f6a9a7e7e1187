package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"github.com/jake-scott/findmy-relay/internal/pkg/logging"
)

func newRouter(h http.HandlerFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(NewCorrelationMw("X-Request-ID"))
	r.Use(NewLoggingMw(true))
	r.Use(NewRecoveryMw())
	r.HandleFunc("/", h)
	return r
}

func TestCorrelationIDBecomesTxnID(t *testing.T) {
	var seen string
	r := newRouter(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = logging.TxnID(r.Context())
	})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Request-ID", "5f1c1c2e-2a0b-4f3e-9d38-0c8f5a9b6e11")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "5f1c1c2e-2a0b-4f3e-9d38-0c8f5a9b6e11", seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, seen, rec.Header().Get("X-Txn-ID"))
}

func TestBadCorrelationID(t *testing.T) {
	var seen string
	r := newRouter(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = logging.TxnID(r.Context())
	})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Request-ID", "no spaces allowed!")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, BadCorrelationID, rec.Header().Get("X-Request-ID"))
	assert.NotEqual(t, BadCorrelationID, seen)
	assert.NotEmpty(t, seen)
}

func TestNoCorrelationID(t *testing.T) {
	r := newRouter(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, rec.Header().Get("X-Txn-ID"))
}

func TestRecovery(t *testing.T) {
	r := newRouter(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
