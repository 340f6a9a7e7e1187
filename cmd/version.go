package cmd

import (
	"fmt"

	"github.com/go-openapi/swag"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/findmy-relay/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the version number of the tool",

	RunE: func(cmd *cobra.Command, args []string) error {
		return doVersion()
	},
}

func init() {
	versionCmd.Flags().Bool("json", false, "Return version as JSON")
	errPanic(viper.GetViper().BindPFlag("version.json", versionCmd.Flags().Lookup("json")))

	rootCmd.AddCommand(versionCmd)
}

type versionResult struct {
	Version   string `json:"version"`
	UserAgent string `json:"userAgent"`
}

func doVersion() error {
	if !viper.GetBool("version.json") {
		fmt.Printf("findmy-relay version %s\n", version.Version)
		return nil
	}

	b, err := swag.WriteJSON(versionResult{
		Version:   version.Version,
		UserAgent: version.UserAgent(),
	})
	if err != nil {
		return err
	}

	fmt.Println(string(b))
	return nil
}
