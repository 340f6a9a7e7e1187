package findapi

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrAuth is returned when the provider rejects the account credentials.
// It is not retryable.
var ErrAuth = errors.New("provider rejected credentials")

// Credentials identify the provider account
type Credentials struct {
	User     string
	Password string
}

func hashOf(s string) string {
	sum := sha1.Sum([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// obfuscate the password when stringified
//
func (c Credentials) String() string {
	return fmt.Sprintf("User [%s], Password [%s]", c.User, hashOf(c.Password))
}

// Reading is a single location report for a device.  Finished is false
// while the provider is still resolving a precise fix.
type Reading struct {
	Latitude  float64
	Longitude float64
	Finished  bool
	Timestamp time.Time
}

type Device interface {
	ID() string
	Name() string
	Location(ctx context.Context) (*Reading, error)
}

type Session interface {
	Devices(ctx context.Context) ([]Device, error)
}

type Client interface {
	Authenticate(ctx context.Context, creds Credentials) (Session, error)
}
