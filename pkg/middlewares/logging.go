package middlewares

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/findmy-relay/internal/pkg/logging"
)

// statusRecorder captures what the handler sent so it can be audited
type statusRecorder struct {
	http.ResponseWriter

	status int
	size   int
}

func (rw *statusRecorder) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// LoggingMw writes one audit line per request.  With logRequests set it
// also logs the request headers and query at debug level.
type LoggingMw struct {
	logRequests bool
	next        http.Handler
}

func NewLoggingMw(logRequests bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return NewLogging(logRequests, next)
	}
}

func NewLogging(logRequests bool, next http.Handler) *LoggingMw {
	return &LoggingMw{next: next, logRequests: logRequests}
}

func (mw *LoggingMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	start := time.Now()

	// keep an ID set further up the chain, eg. by CorrelationMw
	txnID, ok := logging.TxnID(r.Context())
	if !ok {
		txnID = uuid.New().String()
		r = r.WithContext(logging.WithTxnID(r.Context(), txnID))
	}
	rw.Header().Set("X-Txn-ID", txnID)

	if mw.logRequests {
		logging.Logger(r.Context()).Debugf("request headers: %+v, query: %s", r.Header, r.URL.RawQuery)
	}

	rec := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}
	mw.next.ServeHTTP(rec, r)

	logrus.WithFields(logrus.Fields{
		"entrytype": "audit",
		"status":    rec.status,
		"method":    r.Method,
		"host":      r.Host,
		"remote":    r.RemoteAddr,
		"start":     start.Format(time.RFC3339Nano),
		"duration":  time.Since(start),
		"path":      r.URL.Path,
		"txnid":     txnID,
		"size":      rec.size,
	}).Info(http.StatusText(rec.status))
}
