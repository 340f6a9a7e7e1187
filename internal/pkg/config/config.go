package config

import (
	"fmt"
	"strings"
	"time"

	oaerrors "github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
	"github.com/spf13/viper"

	"github.com/jake-scott/findmy-relay/internal/pkg/findapi"
	"github.com/jake-scott/findmy-relay/internal/pkg/webhook"
)

const in = "config"

// Config is everything the relay needs to run, resolved from flags,
// environment and the config file
type Config struct {
	Credentials findapi.Credentials
	Device      string
	Pause       time.Duration

	Sinks              []webhook.Sink
	WebhookTimeout     time.Duration
	WebhookConcurrency int

	ProviderURL      string
	ProviderClientID string
	ProviderTimeout  time.Duration
	ProviderRate     float64
	ProviderBurst    int

	MetricsListen string

	pauseMinutes int
}

// SetDefaults registers the default values of every relay key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("poll.pause", 5)
	v.SetDefault("webhooks.timeout", time.Second*10)
	v.SetDefault("webhooks.concurrency", 4)
	v.SetDefault("provider.client-id", "findmy-relay")
	v.SetDefault("provider.timeout", time.Second*30)
	v.SetDefault("provider.rate", 1.0)
	v.SetDefault("provider.burst", 5)
}

// BindEnv lets FINDMY_* environment variables override any key, eg.
// FINDMY_ACCOUNT_PASSWORD for account.password
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("FINDMY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// FromViper builds and validates the configuration
func FromViper(v *viper.Viper) (*Config, error) {
	c := &Config{
		Credentials: findapi.Credentials{
			User:     v.GetString("account.user"),
			Password: v.GetString("account.password"),
		},
		Device:             v.GetString("device.selector"),
		pauseMinutes:       v.GetInt("poll.pause"),
		WebhookTimeout:     v.GetDuration("webhooks.timeout"),
		WebhookConcurrency: v.GetInt("webhooks.concurrency"),
		ProviderURL:        v.GetString("provider.url"),
		ProviderClientID:   v.GetString("provider.client-id"),
		ProviderTimeout:    v.GetDuration("provider.timeout"),
		ProviderRate:       v.GetFloat64("provider.rate"),
		ProviderBurst:      v.GetInt("provider.burst"),
		MetricsListen:      v.GetString("metrics.listen"),
	}
	c.Pause = time.Minute * time.Duration(c.pauseMinutes)

	for _, u := range v.GetStringSlice("webhooks.alarm") {
		c.Sinks = append(c.Sinks, webhook.Sink{Kind: webhook.KindAlarm, BaseURL: u})
	}
	for _, u := range v.GetStringSlice("webhooks.map") {
		c.Sinks = append(c.Sinks, webhook.Sink{Kind: webhook.KindMap, BaseURL: u})
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate reports every problem with the configuration in one error
func (c *Config) Validate() error {
	var res []error

	if err := validate.RequiredString("account.user", in, c.Credentials.User); err != nil {
		res = append(res, err)
	}
	if err := validate.RequiredString("account.password", in, c.Credentials.Password); err != nil {
		res = append(res, err)
	}
	if err := validate.RequiredString("device.selector", in, c.Device); err != nil {
		res = append(res, err)
	}
	if err := validate.MinimumInt("poll.pause", in, int64(c.pauseMinutes), 1, false); err != nil {
		res = append(res, err)
	}

	if err := validate.RequiredString("provider.url", in, c.ProviderURL); err != nil {
		res = append(res, err)
	} else if err := validate.FormatOf("provider.url", in, "uri", c.ProviderURL, strfmt.Default); err != nil {
		res = append(res, err)
	}
	if err := validate.Minimum("provider.rate", in, c.ProviderRate, 0, true); err != nil {
		res = append(res, err)
	}
	if err := validate.MinimumInt("provider.burst", in, int64(c.ProviderBurst), 1, false); err != nil {
		res = append(res, err)
	}

	if err := validate.MinItems("webhooks", in, int64(len(c.Sinks)), 1); err != nil {
		res = append(res, err)
	}
	for i, s := range c.Sinks {
		path := fmt.Sprintf("webhooks.%s.%d", s.Kind, i)
		if err := validate.FormatOf(path, in, "uri", s.BaseURL, strfmt.Default); err != nil {
			res = append(res, err)
		}
	}
	if err := validate.MinimumInt("webhooks.concurrency", in, int64(c.WebhookConcurrency), 1, false); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return oaerrors.CompositeValidationError(res...)
	}

	return nil
}
