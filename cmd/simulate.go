package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/findmy-relay/internal/pkg/findapi"
	"github.com/jake-scott/findmy-relay/internal/pkg/logging"
	"github.com/jake-scott/findmy-relay/internal/pkg/simulator"
	"github.com/jake-scott/findmy-relay/pkg/middlewares"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a fake location provider and webhook receivers for development",
	Long: `simulate serves the provider API and both kinds of webhook receiver on
one port.  Point run at it with:

  findmy-relay run --provider-url http://localhost:8080 \
      -u sim@example.com -p simulator -d iPhone \
      --alarm-webhook http://localhost:8080/alarm \
      --map-webhook http://localhost:8080/map`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return doSimulate()
	},
}

func init() {
	simulateCmd.Flags().String("listen", ":8080", "address to serve on")
	simulateCmd.Flags().String("sim-user", "sim@example.com", "account user name accepted by the simulator")
	simulateCmd.Flags().String("sim-password", "simulator", "account password accepted by the simulator")
	simulateCmd.Flags().StringSlice("sim-device", []string{"Simulated iPhone", "Simulated Watch"}, "simulated device names")
	simulateCmd.Flags().Int("unfinished", 1, "unfinished fixes reported after each finished one")
	simulateCmd.Flags().Float64("step", simulator.DefaultStep, "degrees of latitude a device walks per finished fix")
	simulateCmd.Flags().Bool("mfa", false, "answer every login as needing a second factor")
	simulateCmd.Flags().Duration("graceful-timeout", time.Second*15, "duration to wait for server to finish, eg. 1m or 10s")
	simulateCmd.Flags().Bool("log-requests", false, "log requests (only in debug mode)")

	errPanic(viper.GetViper().BindPFlag("simulator.listen", simulateCmd.Flags().Lookup("listen")))
	errPanic(viper.GetViper().BindPFlag("simulator.user", simulateCmd.Flags().Lookup("sim-user")))
	errPanic(viper.GetViper().BindPFlag("simulator.password", simulateCmd.Flags().Lookup("sim-password")))
	errPanic(viper.GetViper().BindPFlag("simulator.devices", simulateCmd.Flags().Lookup("sim-device")))
	errPanic(viper.GetViper().BindPFlag("simulator.unfinished", simulateCmd.Flags().Lookup("unfinished")))
	errPanic(viper.GetViper().BindPFlag("simulator.step", simulateCmd.Flags().Lookup("step")))
	errPanic(viper.GetViper().BindPFlag("simulator.mfa", simulateCmd.Flags().Lookup("mfa")))
	errPanic(viper.GetViper().BindPFlag("simulator.graceful-timeout", simulateCmd.Flags().Lookup("graceful-timeout")))
	errPanic(viper.GetViper().BindPFlag("logging.log-requests", simulateCmd.Flags().Lookup("log-requests")))

	rootCmd.AddCommand(simulateCmd)
}

func doSimulate() error {
	addr := viper.GetString("simulator.listen")
	wait := viper.GetDuration("simulator.graceful-timeout")

	sim := simulator.New(findapi.Credentials{
		User:     viper.GetString("simulator.user"),
		Password: viper.GetString("simulator.password"),
	})
	sim.SetUnfinished(viper.GetInt("simulator.unfinished"))
	sim.SetStep(viper.GetFloat64("simulator.step"))
	sim.SetRequireMFA(viper.GetBool("simulator.mfa"))

	// spread the devices out a little around Trafalgar Square
	for i, name := range viper.GetStringSlice("simulator.devices") {
		id := sim.AddDevice(name, 51.5080, -0.1281+float64(i)*0.01)
		logging.Logger(nil).Infof("simulating %s (%s)", name, id)
	}

	var logRequests bool
	if viper.GetBool("logging.log-requests") {
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			logRequests = true
		} else {
			logging.Logger(nil).Warn("log-requests ignored when not in debug mode")
		}
	}

	r := mux.NewRouter()
	r.Use(middlewares.NewCorrelationMw("X-Request-ID"))
	r.Use(middlewares.NewLoggingMw(logRequests))
	r.Use(middlewares.NewRecoveryMw())
	sim.Register(r)

	s := &http.Server{
		Addr:         addr,
		ReadTimeout:  time.Second * 15,
		WriteTimeout: time.Second * 60,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}

	errc := make(chan error, 1)
	logging.Logger(nil).Infof("simulator serving on %s", addr)
	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case <-c:
	case err := <-errc:
		return errors.Wrap(err, "running simulator")
	}

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	logging.Logger(nil).Info("shutting down")
	if err := s.Shutdown(ctx); err != nil {
		logging.Logger(nil).WithError(err).Errorf("shutting down")
	}
	logging.Logger(nil).Infof("exiting after %d webhook calls", len(sim.Calls()))
	return nil
}
