package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/edsworks/eds-runtime/registry"
)

var rootCmd = &cobra.Command{
	Use:   "edstab",
	Short: "Build, dump, and validate EDS table images",
	Long: `edstab packs native table data into EDS table image files and reads
them back. A table image is three packed objects in sequence: a file
header, a table header naming the payload type, and the payload itself.
The header layout is EDS-described like any other type.

Dictionaries come from the snapshot set named in the manifest
(edstab.yaml by default). Settings can also be given via EDSTAB_*
environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			lg, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			registry.SetLogger(lg)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("manifest", "edstab.yaml", "Manifest naming the snapshot set")
	rootCmd.PersistentFlags().Uint16("header-app", 120, "App index the header dictionary mounts at")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log registry activity")

	viper.SetEnvPrefix("EDSTAB")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("manifest", rootCmd.PersistentFlags().Lookup("manifest"))
	_ = viper.BindPFlag("header_app", rootCmd.PersistentFlags().Lookup("header-app"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
