package middlewares

import (
	"net/http"
	"regexp"

	"github.com/gorilla/mux"

	"github.com/jake-scott/findmy-relay/internal/pkg/logging"
)

// BadCorrelationID replaces caller supplied IDs that fail validation
const BadCorrelationID = "<Bad_Correlation_Id>"

var correlationIDRegexp = regexp.MustCompile(`^[\w-]{3,64}$`)

// CorrelationMw echoes the caller's request ID and uses it as the log
// transaction ID, so a webhook delivery can be traced from the relay's log
// into the receiver's
type CorrelationMw struct {
	headerName string
	next       http.Handler
}

func NewCorrelationMw(headerName string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return NewCorrelation(headerName, next)
	}
}

func NewCorrelation(headerName string, next http.Handler) *CorrelationMw {
	return &CorrelationMw{headerName: http.CanonicalHeaderKey(headerName), next: next}
}

func (mw *CorrelationMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if id, ok := mw.requestID(r); ok {
		rw.Header().Set(mw.headerName, id)

		if id != BadCorrelationID {
			r = r.WithContext(logging.WithTxnID(r.Context(), id))
		}
	}

	mw.next.ServeHTTP(rw, r)
}

func (mw *CorrelationMw) requestID(r *http.Request) (string, bool) {
	ids, ok := r.Header[mw.headerName]
	if !ok || len(ids) == 0 {
		return "", false
	}

	if correlationIDRegexp.MatchString(ids[0]) {
		return ids[0], true
	}

	return BadCorrelationID, true
}
