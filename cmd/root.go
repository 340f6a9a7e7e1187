package cmd

import (
	"fmt"
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/findmy-relay/internal/pkg/config"
	"github.com/jake-scott/findmy-relay/internal/pkg/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "findmy-relay",
	Short: "Relay a device's location from the find-my service to webhooks",
	Long: `findmy-relay polls the location provider for one device and, whenever
it has moved more than 50m, posts the new position to every configured
alarm and map webhook.`,
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Configure(viper.GetViper())
	},
}

// Execute runs the root command, exiting non-zero on error
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.findmy-relay.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "log at debug level")

	errPanic(viper.GetViper().BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")))
}

func initConfig() {
	v := viper.GetViper()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		v.AddConfigPath(home)
		v.SetConfigName(".findmy-relay")
	}

	config.SetDefaults(v)
	config.BindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		// only a missing default file is fine
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			fmt.Fprintf(os.Stderr, "reading config: %s\n", err)
			os.Exit(1)
		}
	}
}

func errPanic(err error) {
	if err != nil {
		panic(err)
	}
}

func checkRequiredFlags(needFlags ...string) error {
	missing := []string{}

	for _, f := range needFlags {
		if !viper.IsSet(f) {
			missing = append(missing, f)
		}
	}

	if len(missing) > 0 {
		itemPlural := "item"
		if len(missing) > 1 {
			itemPlural = "items"
		}
		return fmt.Errorf("required config %s `%s` not set", itemPlural, strings.Join(missing, "`, `"))
	}

	return nil
}
