package middlewares

import (
	"net/http"
	"runtime/debug"

	"github.com/gorilla/mux"

	"github.com/jake-scott/findmy-relay/internal/pkg/logging"
)

// RecoveryMw turns a panicking handler into a 500 instead of taking the
// relay down with it
type RecoveryMw struct {
	next http.Handler
}

func NewRecoveryMw() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return &RecoveryMw{next: next}
	}
}

func (mw *RecoveryMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer func() {
		if v := recover(); v != nil {
			if v == http.ErrAbortHandler {
				panic(v)
			}

			logging.Logger(r.Context()).Errorf("caught panic serving %s: %v : %s", r.URL.Path, v, debug.Stack())
			http.Error(rw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}()

	mw.next.ServeHTTP(rw, r)
}
