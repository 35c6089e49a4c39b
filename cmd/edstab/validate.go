package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edsworks/eds-runtime/codec"
	"github.com/edsworks/eds-runtime/registry"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file.tbl> [file.tbl ...]",
	Short: "Check table images against the mounted dictionaries",
	Long: `Validate unpacks each table image completely: header fixed values,
payload decode, checksum verification, and the consistency of the
payload's engine-produced fields. Exits nonzero if any image fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	reg, _, hh, err := mountManifest(viper.GetString("manifest"), uint16(viper.GetUint("header_app")))
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range args {
		if err := checkImage(reg, hh, path); err != nil {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK   %s\n", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d table images failed validation", failed, len(args))
	}
	return nil
}

func checkImage(reg *registry.Registry, hh headerHandles, path string) error {
	img, err := readImage(reg, hh, path)
	if err != nil {
		return err
	}
	if img.warning != nil {
		return img.warning
	}
	fe, err := reg.Resolve(img.payload)
	if err != nil {
		return err
	}
	if got, err := wireSize(reg, img.payload); err != nil {
		return err
	} else if got != img.numBytes {
		return fmt.Errorf("header says %d payload bytes, type %s packs %d",
			img.numBytes, fe.Name, got)
	}
	return codec.NewUnpacker(reg).VerifyUnpackedObject(img.payload, img.native)
}
