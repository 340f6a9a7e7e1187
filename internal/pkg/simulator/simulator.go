package simulator

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-openapi/runtime/middleware/header"
	"github.com/go-openapi/swag"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jake-scott/findmy-relay/internal/pkg/findapi"
	"github.com/jake-scott/findmy-relay/internal/pkg/logging"
)

/*
 *  A stand-in for the location provider, good enough to drive the relay
 *  end to end on a laptop.  Devices walk north by a fixed step every time
 *  they report a finished fix, and can be told to report a number of
 *  unfinished fixes in between.
 */

const (
	// DefaultStep is how far, in degrees of latitude, a device moves per
	// finished fix (roughly 111m)
	DefaultStep = 0.001

	tokenLifetime = 20 * time.Minute
)

type device struct {
	id      string
	name    string
	lat     float64
	lng     float64
	located bool
	pending int
}

// Simulator serves the provider API and records webhook deliveries
type Simulator struct {
	mu sync.Mutex

	creds      findapi.Credentials
	requireMFA bool
	unfinished int
	step       float64
	now        func() time.Time

	tokens  map[string]time.Time
	devices []*device
	calls   []SinkCall
}

func New(creds findapi.Credentials) *Simulator {
	return &Simulator{
		creds:  creds,
		step:   DefaultStep,
		now:    time.Now,
		tokens: map[string]time.Time{},
	}
}

// SetUnfinished makes every device answer n unfinished fixes after each
// finished one
func (s *Simulator) SetUnfinished(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unfinished = n
}

// SetStep sets how far devices walk per finished fix
func (s *Simulator) SetStep(deg float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = deg
}

// SetRequireMFA makes logins with correct credentials fail as needing a
// second factor
func (s *Simulator) SetRequireMFA(b bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireMFA = b
}

// AddDevice registers a device at lat,lng and returns its ID
func (s *Simulator) AddDevice(name string, lat, lng float64) string {
	return s.addDevice(&device{name: name, lat: lat, lng: lng, located: true})
}

// AddUnlocatedDevice registers a device that never has a fix
func (s *Simulator) AddUnlocatedDevice(name string) string {
	return s.addDevice(&device{name: name})
}

func (s *Simulator) addDevice(d *device) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.id = uuid.New().String()
	s.devices = append(s.devices, d)
	return d.id
}

// RevokeTokens invalidates every issued access token
func (s *Simulator) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = map[string]time.Time{}
}

// Register adds the provider API and the sink receivers to r
func (s *Simulator) Register(r *mux.Router) {
	r.HandleFunc("/oauth/token", s.handleToken).Methods(http.MethodPost)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.requireToken)
	api.HandleFunc("/devices", s.handleDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/location", s.handleLocation).Methods(http.MethodGet)

	r.HandleFunc("/alarm/location/", s.handleSink("alarm")).Methods(http.MethodPost)
	r.HandleFunc("/map/next_loc", s.handleSink("map")).Methods(http.MethodPost)
}

// Router returns a router serving only the simulator
func (s *Simulator) Router() *mux.Router {
	r := mux.NewRouter()
	s.Register(r)
	return r
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, d interface{}) {
	b, err := swag.WriteJSON(d)
	if err != nil {
		logging.Logger(r.Context()).WithError(err).Error("encoding json response")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(b); err != nil {
		logging.Logger(r.Context()).WithError(err).Error("sending json response")
	}
}

// apiError writes an error body in the shape googleapi.CheckResponse decodes
func apiError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    status,
			"message": msg,
		},
	})
}

func oauthError(w http.ResponseWriter, r *http.Request, status int, code string) {
	writeJSON(w, r, status, map[string]string{"error": code})
}

func (s *Simulator) handleToken(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logging.Logger(r.Context())

	if ct, _ := header.ParseValueAndParams(r.Header, "Content-Type"); ct != "application/x-www-form-urlencoded" {
		ctxLogger.Warnf("token request with content type %q", ct)
		oauthError(w, r, http.StatusBadRequest, "invalid_request")
		return
	}

	if err := r.ParseForm(); err != nil {
		oauthError(w, r, http.StatusBadRequest, "invalid_request")
		return
	}

	if gt := r.PostForm.Get("grant_type"); gt != "password" {
		ctxLogger.Warnf("unsupported grant type %q", gt)
		oauthError(w, r, http.StatusBadRequest, "unsupported_grant_type")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := r.PostForm.Get("username")
	if user != s.creds.User || r.PostForm.Get("password") != s.creds.Password {
		ctxLogger.Infof("rejecting login for %s", user)
		oauthError(w, r, http.StatusUnauthorized, "invalid_grant")
		return
	}

	if s.requireMFA {
		ctxLogger.Infof("login for %s needs a second factor", user)
		oauthError(w, r, http.StatusForbidden, "mfa_required")
		return
	}

	token := uuid.New().String()
	s.tokens[token] = s.now()
	ctxLogger.Infof("issued token for %s", user)

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(tokenLifetime / time.Second),
	})
}

func (s *Simulator) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		s.mu.Lock()
		issued, ok := s.tokens[token]
		if ok && s.now().Sub(issued) >= tokenLifetime {
			delete(s.tokens, token)
			ok = false
		}
		s.mu.Unlock()

		if !ok {
			apiError(w, r, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Simulator) handleDevices(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	list := make([]map[string]string, 0, len(s.devices))
	for _, d := range s.devices {
		list = append(list, map[string]string{"id": d.id, "name": d.name})
	}
	s.mu.Unlock()

	writeJSON(w, r, http.StatusOK, map[string]interface{}{"devices": list})
}

func (s *Simulator) findDevice(id string) *device {
	for _, d := range s.devices {
		if d.id == id {
			return d
		}
	}

	return nil
}

func (s *Simulator) handleLocation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.findDevice(id)
	if d == nil {
		apiError(w, r, http.StatusNotFound, "no such device")
		return
	}

	if !d.located {
		writeJSON(w, r, http.StatusOK, map[string]interface{}{"location": nil})
		return
	}

	finished := d.pending == 0
	loc := map[string]interface{}{
		"latitude":         d.lat,
		"longitude":        d.lng,
		"locationFinished": finished,
		"timestamp":        s.now().UnixNano() / int64(time.Millisecond),
	}

	if finished {
		d.lat += s.step
		d.pending = s.unfinished
	} else {
		d.pending--
	}

	logging.Logger(r.Context()).Debugf("location of %s: %v", d.name, loc)
	writeJSON(w, r, http.StatusOK, map[string]interface{}{"location": loc})
}
