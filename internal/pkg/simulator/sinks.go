package simulator

import (
	"net/http"
	"net/url"
	"time"

	"github.com/jake-scott/findmy-relay/internal/pkg/logging"
)

// SinkCall is one webhook delivery received by the simulator
type SinkCall struct {
	Kind  string
	Query url.Values
	At    time.Time
}

// Calls returns the webhook deliveries received so far
func (s *Simulator) Calls() []SinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SinkCall(nil), s.calls...)
}

func (s *Simulator) handleSink(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		s.mu.Lock()
		s.calls = append(s.calls, SinkCall{Kind: kind, Query: q, At: s.now()})
		s.mu.Unlock()

		logging.Logger(r.Context()).Infof("%s webhook: %s", kind, q.Encode())
		w.WriteHeader(http.StatusOK)
	}
}
