package webhook

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-openapi/swag"
	"github.com/pkg/errors"

	"github.com/jake-scott/findmy-relay/internal/pkg/geo"
)

// Kind selects how a sink expects the location to be encoded
type Kind string

const (
	// KindAlarm sinks take POST {base}/location/?location=<lat>,<lng>
	KindAlarm Kind = "alarm"

	// KindMap sinks take POST {base}/next_loc?lat=<lat>&lon=<lng>
	KindMap Kind = "map"
)

// Sink is one configured webhook receiver
type Sink struct {
	Kind    Kind
	BaseURL string
}

func (s Sink) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.BaseURL)
}

func (s Sink) endpoint() (string, url.Values, error) {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", nil, errors.Wrapf(err, "parsing webhook URL %s", s.BaseURL)
	}

	base := strings.TrimRight(u.Path, "/")
	q := u.Query()

	switch s.Kind {
	case KindAlarm:
		u.Path = base + "/location/"
	case KindMap:
		u.Path = base + "/next_loc"
	default:
		return "", nil, fmt.Errorf("unknown webhook kind %q", s.Kind)
	}

	u.RawQuery = ""
	return u.String(), q, nil
}

// Params returns the query parameters that carry p for this sink
func (s Sink) Params(p geo.Point) url.Values {
	q := url.Values{}

	switch s.Kind {
	case KindAlarm:
		q.Set("location", fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng))
	case KindMap:
		q.Set("lat", swag.FormatFloat64(p.Lat))
		q.Set("lon", swag.FormatFloat64(p.Lng))
	}

	return q
}

// NewRequest builds the POST that delivers p to the sink
func (s Sink) NewRequest(ctx context.Context, p geo.Point) (*http.Request, error) {
	endpoint, q, err := s.endpoint()
	if err != nil {
		return nil, err
	}

	for k, vs := range s.Params(p) {
		q[k] = vs
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "building webhook request")
	}

	return req, nil
}
