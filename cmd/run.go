package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/findmy-relay/internal/pkg/config"
	"github.com/jake-scott/findmy-relay/internal/pkg/findapi"
	"github.com/jake-scott/findmy-relay/internal/pkg/geo"
	"github.com/jake-scott/findmy-relay/internal/pkg/locate"
	"github.com/jake-scott/findmy-relay/internal/pkg/logging"
	"github.com/jake-scott/findmy-relay/internal/pkg/metrics"
	"github.com/jake-scott/findmy-relay/internal/pkg/poller"
	"github.com/jake-scott/findmy-relay/internal/pkg/session"
	"github.com/jake-scott/findmy-relay/internal/pkg/webhook"
	"github.com/jake-scott/findmy-relay/pkg/middlewares"
)

const metricsShutdownTimeout = time.Second * 5

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the device location and relay changes to the webhooks",

	RunE: func(cmd *cobra.Command, args []string) error {
		return doRun()
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("account.user", "account.password", "device.selector", "provider.url")
	},
}

func init() {
	runCmd.Flags().StringP("user", "u", "", "account user name")
	runCmd.Flags().StringP("password", "p", "", "account password")
	runCmd.Flags().StringP("device", "d", "", "track the first device whose name contains this")
	runCmd.Flags().IntP("pause", "P", 5, "minutes to wait between polls")
	runCmd.Flags().StringSlice("alarm-webhook", nil, "base URL of an alarm webhook, may be repeated")
	runCmd.Flags().StringSlice("map-webhook", nil, "base URL of a map webhook, may be repeated")
	runCmd.Flags().Duration("webhook-timeout", time.Second*10, "maximum duration of a webhook call, eg. 1m or 10s")
	runCmd.Flags().String("provider-url", "", "base URL of the location provider API")
	runCmd.Flags().String("provider-client-id", "findmy-relay", "oauth client ID presented to the provider")
	runCmd.Flags().Duration("provider-timeout", time.Second*30, "maximum duration of a provider API call, eg. 1m or 10s")
	runCmd.Flags().String("metrics-listen", "", "serve prometheus metrics on this address, eg. :9100")

	errPanic(viper.GetViper().BindPFlag("account.user", runCmd.Flags().Lookup("user")))
	errPanic(viper.GetViper().BindPFlag("account.password", runCmd.Flags().Lookup("password")))
	errPanic(viper.GetViper().BindPFlag("device.selector", runCmd.Flags().Lookup("device")))
	errPanic(viper.GetViper().BindPFlag("poll.pause", runCmd.Flags().Lookup("pause")))
	errPanic(viper.GetViper().BindPFlag("webhooks.alarm", runCmd.Flags().Lookup("alarm-webhook")))
	errPanic(viper.GetViper().BindPFlag("webhooks.map", runCmd.Flags().Lookup("map-webhook")))
	errPanic(viper.GetViper().BindPFlag("webhooks.timeout", runCmd.Flags().Lookup("webhook-timeout")))
	errPanic(viper.GetViper().BindPFlag("provider.url", runCmd.Flags().Lookup("provider-url")))
	errPanic(viper.GetViper().BindPFlag("provider.client-id", runCmd.Flags().Lookup("provider-client-id")))
	errPanic(viper.GetViper().BindPFlag("provider.timeout", runCmd.Flags().Lookup("provider-timeout")))
	errPanic(viper.GetViper().BindPFlag("metrics.listen", runCmd.Flags().Lookup("metrics-listen")))

	rootCmd.AddCommand(runCmd)
}

func newPoller(cfg *config.Config, m *metrics.Metrics) *poller.Poller {
	client := findapi.NewLiveClient(cfg.ProviderURL).
		WithClientID(cfg.ProviderClientID).
		WithTimeout(cfg.ProviderTimeout).
		WithRateLimit(cfg.ProviderRate, cfg.ProviderBurst)

	dispatcher := webhook.NewDispatcher(cfg.Sinks, m).
		WithTimeout(cfg.WebhookTimeout).
		WithConcurrency(cfg.WebhookConcurrency)

	return poller.New(
		session.NewManager(client, cfg.Credentials, m),
		locate.NewFetcher(m),
		geo.NewChangeDetector(geo.DefaultThreshold),
		dispatcher,
		cfg.Device,
		m,
	).WithPause(cfg.Pause)
}

func startMetricsServer(addr string, g prometheus.Gatherer) *http.Server {
	r := mux.NewRouter()
	r.Use(middlewares.NewLoggingMw(false))
	r.Use(middlewares.NewRecoveryMw())
	r.Handle("/metrics", metrics.Handler(g)).Methods(http.MethodGet)

	s := &http.Server{
		Addr:         addr,
		ReadTimeout:  time.Second * 15,
		WriteTimeout: time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}

	logging.Logger(nil).Infof("serving metrics on %s", addr)
	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger(nil).WithError(err).Error("running metrics server")
		}
	}()

	return s
}

func doRun() error {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return errors.Wrap(err, "loading configuration")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	p := newPoller(cfg, m)

	logging.Logger(nil).Infof("tracking %q for %s every %s, %d webhook(s)",
		cfg.Device, cfg.Credentials, cfg.Pause, len(cfg.Sinks))

	// context to stop the poll loop
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var srv *http.Server
	if cfg.MetricsListen != "" {
		srv = startMetricsServer(cfg.MetricsListen, reg)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-c:
			logging.Logger(nil).Info("main: shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	runErr := p.Run(ctx)
	cancel()
	wg.Wait()

	if srv != nil {
		sctx, scancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil {
			logging.Logger(nil).WithError(err).Error("shutting down metrics server")
		}
	}

	if runErr != nil {
		if errors.Is(runErr, findapi.ErrAuth) {
			logging.Logger(nil).WithError(runErr).Error("invalid credentials")
		}
		return runErr
	}

	logging.Logger(nil).Info("main: exiting")
	return nil
}
