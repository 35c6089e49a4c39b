package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/codec"
	"github.com/edsworks/eds-runtime/identify"
	"github.com/edsworks/eds-runtime/registry"
)

var (
	buildData string
	buildOut  string
	buildName string
)

var buildCmd = &cobra.Command{
	Use:   "build <type>",
	Short: "Pack a native table into a table image",
	Long: `Build packs native table data as the named type (Name or App/Name)
and writes a table image: file header, table header, packed payload.
Without --data the payload is the type's initialized default object.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildData, "data", "", "Native table data file (default: initialized object)")
	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "", "Output file (default: <name>.tbl)")
	buildCmd.Flags().StringVar(&buildName, "name", "", "Table name in the header (default: type name)")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	reg, m, hh, err := mountManifest(viper.GetString("manifest"), uint16(viper.GetUint("header_app")))
	if err != nil {
		return err
	}

	h, err := findType(reg, args[0])
	if err != nil {
		return err
	}
	e, err := reg.Resolve(h)
	if err != nil {
		return err
	}

	packer := codec.NewPacker(reg)

	native := make([]byte, nativeCapacity(reg, h, e.Size.Bytes))
	if buildData != "" {
		data, err := os.ReadFile(buildData)
		if err != nil {
			return fmt.Errorf("reading table data: %w", err)
		}
		if len(data) > len(native) {
			native = data
		} else {
			copy(native, data)
		}
	} else if err := packer.InitializeNativeObject(h, native); err != nil {
		return err
	}

	payload := make([]byte, wireCapacity(reg, h, e.Size.Bits))
	final, err := packer.PackCompleteObject(h, payload, native)
	if err != nil {
		return err
	}
	numBytes, err := wireSize(reg, final)
	if err != nil {
		return err
	}
	payload = payload[:numBytes]

	name := buildName
	if name == "" {
		fe, err := reg.Resolve(final)
		if err != nil {
			return err
		}
		name = fe.Name
	}

	tableWire, err := packHeaders(reg, packer, hh, m.Spacecraft, final, numBytes, name)
	if err != nil {
		return err
	}

	out := buildOut
	if out == "" {
		out = name + ".tbl"
	}
	image := append(tableWire, payload...)
	if err := os.WriteFile(out, image, 0o644); err != nil {
		return fmt.Errorf("writing table image: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: table %q, payload %d bytes, image %d bytes\n",
		out, name, numBytes, len(image))
	return nil
}

// packHeaders packs the file header and table header back to back and
// returns their concatenated wire form.
func packHeaders(reg *registry.Registry, packer *codec.Packer, hh headerHandles,
	spacecraft uint16, payload edsruntime.TypeHandle, numBytes uint32, name string) ([]byte, error) {

	fe, err := reg.Resolve(hh.file)
	if err != nil {
		return nil, err
	}
	fileNative := make([]byte, fe.Size.Bytes)
	if err := packer.InitializeNativeObject(hh.file, fileNative); err != nil {
		return nil, err
	}
	if err := putField(reg, hh.file, fileNative, "spacecraft", uint64(spacecraft)); err != nil {
		return nil, err
	}
	fileWire := make([]byte, (fe.Size.Bits+7)/8)
	if _, err := packer.PackCompleteObject(hh.file, fileWire, fileNative); err != nil {
		return nil, err
	}

	te, err := reg.Resolve(hh.table)
	if err != nil {
		return nil, err
	}
	tableNative := make([]byte, te.Size.Bytes)
	if err := packer.InitializeNativeObject(hh.table, tableNative); err != nil {
		return nil, err
	}
	if err := putField(reg, hh.table, tableNative, "app_id", uint64(payload.AppIndex())); err != nil {
		return nil, err
	}
	if err := putField(reg, hh.table, tableNative, "format_id", uint64(payload.FormatIndex())); err != nil {
		return nil, err
	}
	if err := putField(reg, hh.table, tableNative, "num_bytes", uint64(numBytes)); err != nil {
		return nil, err
	}
	if err := putString(reg, hh.table, tableNative, "table_name", name); err != nil {
		return nil, err
	}
	tableWire := make([]byte, (te.Size.Bits+7)/8)
	if _, err := packer.PackCompleteObject(hh.table, tableWire, tableNative); err != nil {
		return nil, err
	}

	return append(fileWire, tableWire...), nil
}

// nativeCapacity sizes a native buffer for the widest derivative of h.
func nativeCapacity(reg *registry.Registry, h edsruntime.TypeHandle, base uint32) uint32 {
	if di, err := identify.GetDerivedInfo(reg, h); err == nil && di.MaxSize.Bytes > base {
		return di.MaxSize.Bytes
	}
	return base
}

// wireCapacity sizes a packed buffer for the widest derivative of h.
func wireCapacity(reg *registry.Registry, h edsruntime.TypeHandle, baseBits uint32) uint32 {
	bits := baseBits
	if di, err := identify.GetDerivedInfo(reg, h); err == nil && di.MaxSize.Bits > bits {
		bits = di.MaxSize.Bits
	}
	return (bits + 7) / 8
}
