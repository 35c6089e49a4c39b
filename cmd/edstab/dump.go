package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/codec"
	"github.com/edsworks/eds-runtime/dictionary"
	"github.com/edsworks/eds-runtime/registry"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <file.tbl>",
	Short: "Decode a table image and print its contents",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
}

// tableImage is the decoded view of one table image file.
type tableImage struct {
	spacecraft uint16
	name       string
	payload    edsruntime.TypeHandle
	numBytes   uint32
	native     []byte
	warning    error
}

func runDump(cmd *cobra.Command, args []string) error {
	reg, _, hh, err := mountManifest(viper.GetString("manifest"), uint16(viper.GetUint("header_app")))
	if err != nil {
		return err
	}

	img, err := readImage(reg, hh, args[0])
	if err != nil {
		return err
	}

	fe, err := reg.Resolve(img.payload)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Table:      %s\n", img.name)
	fmt.Fprintf(cmd.OutOrStdout(), "Type:       %s\n", fe.Name)
	fmt.Fprintf(cmd.OutOrStdout(), "Spacecraft: %d\n", img.spacecraft)
	fmt.Fprintf(cmd.OutOrStdout(), "Payload:    %d bytes packed, %d bytes native\n\n",
		img.numBytes, fe.Size.Bytes)
	if img.warning != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Warning: %v\n\n", img.warning)
	}

	it, err := reg.Members(img.payload)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "MEMBER\tKIND\tTYPE\tVALUE")
	for it.Next() {
		ei := it.Entity()
		typeName := "?"
		var value string
		if te, err := reg.Resolve(ei.Handle); err == nil {
			typeName = te.Name
			value = formatEntity(te, img.native, ei.Offset.Bytes)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ei.Name, ei.Kind, typeName, value)
	}
	return w.Flush()
}

// readImage unpacks the two headers, resolves the payload type they name,
// and unpacks the payload. A checksum mismatch in the payload is kept as a
// warning; everything else fails the read.
func readImage(reg *registry.Registry, hh headerHandles, path string) (*tableImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading table image: %w", err)
	}

	unpacker := codec.NewUnpacker(reg)

	fe, err := reg.Resolve(hh.file)
	if err != nil {
		return nil, err
	}
	fileNative := make([]byte, fe.Size.Bytes)
	if _, err := unpacker.UnpackCompleteObject(hh.file, fileNative, data); err != nil {
		return nil, fmt.Errorf("%s: file header: %w", path, err)
	}
	if err := unpacker.VerifyUnpackedObject(hh.file, fileNative); err != nil {
		return nil, fmt.Errorf("%s is not a table image: %w", path, err)
	}
	headerBytes, err := getField(reg, hh.file, fileNative, "header_bytes")
	if err != nil {
		return nil, err
	}
	spacecraft, err := getField(reg, hh.file, fileNative, "spacecraft")
	if err != nil {
		return nil, err
	}
	if headerBytes > uint64(len(data)) {
		return nil, fmt.Errorf("%s: header length %d exceeds file size %d", path, headerBytes, len(data))
	}

	te, err := reg.Resolve(hh.table)
	if err != nil {
		return nil, err
	}
	tableNative := make([]byte, te.Size.Bytes)
	rest := data[headerBytes:]
	if _, err := unpacker.UnpackCompleteObject(hh.table, tableNative, rest); err != nil {
		return nil, fmt.Errorf("%s: table header: %w", path, err)
	}
	tableWire, err := wireSize(reg, hh.table)
	if err != nil {
		return nil, err
	}

	app, err := getField(reg, hh.table, tableNative, "app_id")
	if err != nil {
		return nil, err
	}
	format, err := getField(reg, hh.table, tableNative, "format_id")
	if err != nil {
		return nil, err
	}
	numBytes, err := getField(reg, hh.table, tableNative, "num_bytes")
	if err != nil {
		return nil, err
	}
	name, err := getString(reg, hh.table, tableNative, "table_name")
	if err != nil {
		return nil, err
	}

	h := edsruntime.MakeTypeHandle(0, uint16(app), uint16(format))
	pe, err := reg.Resolve(h)
	if err != nil {
		return nil, fmt.Errorf("%s: payload type %s: %w", path, h, err)
	}
	payloadSrc := rest[tableWire:]
	if uint64(len(payloadSrc)) < numBytes {
		return nil, fmt.Errorf("%s: payload truncated: header says %d bytes, file carries %d",
			path, numBytes, len(payloadSrc))
	}

	native := make([]byte, nativeCapacity(reg, h, pe.Size.Bytes))
	final, err := unpacker.UnpackCompleteObject(h, native, payloadSrc)
	if err != nil && final == 0 {
		return nil, fmt.Errorf("%s: payload: %w", path, err)
	}

	img := &tableImage{
		spacecraft: uint16(spacecraft),
		name:       name,
		payload:    final,
		numBytes:   uint32(numBytes),
		native:     native,
		warning:    err,
	}
	return img, nil
}

// formatEntity renders one native field for display, host byte order.
func formatEntity(te *dictionary.TypeEntry, buf []byte, off uint32) string {
	n := te.Size.Bytes
	if uint64(off)+uint64(n) > uint64(len(buf)) {
		return "?"
	}
	field := buf[off : off+n]
	switch te.Basic {
	case dictionary.BasicUnsignedInt:
		return fmt.Sprintf("%d", hostUint(field))
	case dictionary.BasicSignedInt:
		shift := 64 - uint(n)*8
		return fmt.Sprintf("%d", int64(hostUint(field)<<shift)>>shift)
	case dictionary.BasicFloat:
		if n == 4 {
			return fmt.Sprintf("%g", math.Float32frombits(binary.NativeEndian.Uint32(field)))
		}
		return fmt.Sprintf("%g", math.Float64frombits(binary.NativeEndian.Uint64(field)))
	case dictionary.BasicBinary:
		if te.StringDetail() != nil {
			if i := strings.IndexByte(string(field), 0); i >= 0 {
				return fmt.Sprintf("%q", field[:i])
			}
			return fmt.Sprintf("%q", field)
		}
		return fmt.Sprintf("% x", field)
	default:
		return fmt.Sprintf("<%s, %d bytes>", te.Basic, n)
	}
}

func hostUint(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.NativeEndian.Uint16(b))
	case 4:
		return uint64(binary.NativeEndian.Uint32(b))
	case 8:
		return binary.NativeEndian.Uint64(b)
	}
	return 0
}
