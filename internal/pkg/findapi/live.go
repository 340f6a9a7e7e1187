package findapi

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-openapi/swag"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"

	"github.com/jake-scott/findmy-relay/internal/pkg/logging"
	"github.com/jake-scott/findmy-relay/version"
)

const (
	defaultClientID = "findmy-relay"
	defaultTimeout  = time.Second * 30
	defaultRate     = 1
	defaultBurst    = 5
)

/*
 *  Wire format of the provider API
 */

type deviceJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type devicesResponse struct {
	Devices []deviceJSON `json:"devices"`
}

type locationJSON struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	LocationFinished bool    `json:"locationFinished"`
	Timestamp        int64   `json:"timestamp"` // milliseconds since the epoch
}

type locationResponse struct {
	Location *locationJSON `json:"location"`
}

// Live talks to the provider over HTTPS.  Sessions are OAuth2 access tokens
// obtained with the resource owner password grant.
type Live struct {
	baseURL    string
	clientID   string
	timeout    time.Duration
	limiter    *rate.Limiter
	httpClient *http.Client
}

func NewLiveClient(baseURL string) *Live {
	return &Live{
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientID:   defaultClientID,
		timeout:    defaultTimeout,
		limiter:    rate.NewLimiter(defaultRate, defaultBurst),
		httpClient: &http.Client{},
	}
}

func (c *Live) WithClientID(id string) *Live {
	nc := *c
	nc.clientID = id
	return &nc
}

func (c *Live) WithTimeout(d time.Duration) *Live {
	nc := *c
	nc.timeout = d
	return &nc
}

// WithRateLimit throttles calls to r requests per second with the given burst
func (c *Live) WithRateLimit(r float64, burst int) *Live {
	nc := *c
	nc.limiter = rate.NewLimiter(rate.Limit(r), burst)
	return &nc
}

func (c *Live) WithHTTPClient(hc *http.Client) *Live {
	nc := *c
	nc.httpClient = hc
	return &nc
}

func (c *Live) MakeContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(parent, c.timeout)
	}

	return context.WithCancel(parent)
}

func (c *Live) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID: c.clientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.baseURL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (c *Live) Authenticate(ctx context.Context, creds Credentials) (Session, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "waiting for rate limiter")
	}

	ctx, cancel := c.MakeContext(ctx)
	defer cancel()

	logging.Logger(ctx).Debugf("authenticating with %s: %s", c.baseURL, creds)

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.oauthConfig().PasswordCredentialsToken(ctx, creds.User, creds.Password)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil {
			switch rErr.Response.StatusCode {
			case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
				return nil, errors.Wrapf(ErrAuth, "authenticating user %s: %s", creds.User, strings.TrimSpace(string(rErr.Body)))
			}
		}

		return nil, errors.Wrap(err, "authenticating")
	}

	// the session client must outlive the authentication context
	base := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)

	return &liveSession{
		client: c,
		http:   oauth2.NewClient(base, oauth2.StaticTokenSource(token)),
	}, nil
}

type liveSession struct {
	client *Live
	http   *http.Client
}

// getJSON fetches path and decodes the body into out.  It returns false
// when the provider answered with no content.
func (s *liveSession) getJSON(ctx context.Context, path string, out interface{}) (bool, error) {
	if err := s.client.limiter.Wait(ctx); err != nil {
		return false, errors.Wrap(err, "waiting for rate limiter")
	}

	ctx, cancel := s.client.MakeContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.client.baseURL+path, nil)
	if err != nil {
		return false, errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := s.http.Do(req)
	if err != nil {
		return false, errors.Wrapf(err, "requesting %s", path)
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return false, err
	}

	if resp.StatusCode == http.StatusNoContent {
		return false, nil
	}

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return false, errors.Wrap(err, "reading response body")
	}

	if err := swag.ReadJSON(body, out); err != nil {
		return false, errors.Wrapf(err, "decoding response from %s", path)
	}

	return true, nil
}

func (s *liveSession) Devices(ctx context.Context) ([]Device, error) {
	var resp devicesResponse
	if _, err := s.getJSON(ctx, "/api/v1/devices", &resp); err != nil {
		return nil, errors.Wrap(err, "listing devices")
	}

	devices := make([]Device, 0, len(resp.Devices))
	for _, d := range resp.Devices {
		devices = append(devices, &liveDevice{
			session: s,
			id:      d.ID,
			name:    d.Name,
		})
	}

	return devices, nil
}

type liveDevice struct {
	session *liveSession
	id      string
	name    string
}

func (d *liveDevice) ID() string {
	return d.id
}

func (d *liveDevice) Name() string {
	return d.name
}

func (d *liveDevice) String() string {
	return d.name
}

func (d *liveDevice) Location(ctx context.Context) (*Reading, error) {
	var resp locationResponse
	found, err := d.session.getJSON(ctx, "/api/v1/devices/"+url.PathEscape(d.id)+"/location", &resp)
	if err != nil {
		return nil, errors.Wrapf(err, "querying location of %s", d.name)
	}

	if !found || resp.Location == nil {
		return nil, nil
	}

	loc := resp.Location
	reading := &Reading{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Finished:  loc.LocationFinished,
	}
	if loc.Timestamp > 0 {
		reading.Timestamp = time.Unix(0, loc.Timestamp*int64(time.Millisecond))
	}

	return reading, nil
}
