package webhook

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jake-scott/findmy-relay/internal/pkg/geo"
)

func TestAlarmSinkRequest(t *testing.T) {
	s := Sink{Kind: KindAlarm, BaseURL: "http://127.0.0.1:4000"}

	req, err := s.NewRequest(context.Background(), geo.Point{Lat: 40.0001, Lng: -70})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/location/", req.URL.Path)
	assert.Equal(t, "40.000100,-70.000000", req.URL.Query().Get("location"))
}

func TestMapSinkRequest(t *testing.T) {
	s := Sink{Kind: KindMap, BaseURL: "https://maps.example.com/hooks/"}

	req, err := s.NewRequest(context.Background(), geo.Point{Lat: 40.0001, Lng: -70})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "maps.example.com", req.URL.Host)
	assert.Equal(t, "/hooks/next_loc", req.URL.Path)
	assert.Equal(t, "40.0001", req.URL.Query().Get("lat"))
	assert.Equal(t, "-70", req.URL.Query().Get("lon"))
}

func TestSinkKeepsBaseQuery(t *testing.T) {
	s := Sink{Kind: KindMap, BaseURL: "http://example.com/?token=abc"}

	req, err := s.NewRequest(context.Background(), geo.Point{Lat: 1.5, Lng: 2.25})
	require.NoError(t, err)

	q := req.URL.Query()
	assert.Equal(t, "abc", q.Get("token"))
	assert.Equal(t, "1.5", q.Get("lat"))
	assert.Equal(t, "2.25", q.Get("lon"))
}

func TestUnknownSinkKind(t *testing.T) {
	s := Sink{Kind: "carrier-pigeon", BaseURL: "http://example.com"}

	_, err := s.NewRequest(context.Background(), geo.Point{})
	assert.Error(t, err)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "200 OK", Outcome{Kind: Delivered, StatusCode: 200, Status: "200 OK"}.String())
	assert.Equal(t, "read timeout", Outcome{Kind: Timeout}.String())
	assert.Equal(t, "exception: connection refused", Outcome{Kind: NetworkError, Message: "connection refused"}.String())
	assert.Equal(t, "network_error", NetworkError.String())
}
