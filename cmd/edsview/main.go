package main

import (
	"encoding/binary"
	"encoding/hex"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/codec"
	"github.com/edsworks/eds-runtime/dictionary"
	"github.com/edsworks/eds-runtime/identify"
	"github.com/edsworks/eds-runtime/registry"
)

// snapshotPaths collects repeated -snapshot flags.
type snapshotPaths []string

func (s *snapshotPaths) String() string { return strings.Join(*s, ",") }

func (s *snapshotPaths) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var snapshots snapshotPaths
	flag.Var(&snapshots, "snapshot", "Dictionary snapshot file (repeatable)")
	var (
		typeName    = flag.String("type", "", "Type to inspect (Name or App/Name)")
		decodeHex   = flag.String("decode", "", "Hex bytes to decode as -type")
		list        = flag.Bool("list", false, "List mounted types and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Log registry activity")
	)
	flag.Parse()

	if len(snapshots) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: edsview -snapshot <dict.json> [-snapshot ...] [-type name] [-decode hex]")
		fmt.Fprintln(os.Stderr, "       edsview -snapshot <dict.json> -list")
		fmt.Fprintln(os.Stderr, "       edsview -snapshot <dict.json> -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		lg, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer lg.Sync()
		registry.SetLogger(lg)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(snapshots); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(snapshots, *typeName, *decodeHex, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(snapshots []string, typeName, decodeHex string, listOnly bool) error {
	reg, err := mountSnapshots(snapshots)
	if err != nil {
		return err
	}

	for _, app := range reg.Apps() {
		d, err := reg.Dictionary(app)
		if err != nil {
			return err
		}
		fmt.Printf("Dictionary: %s (app %d, %d types, checksum %016x)\n",
			d.Name, app, d.NumFormats(), d.Checksum)
	}

	if listOnly || typeName == "" {
		fmt.Printf("\nTypes:\n")
		for _, app := range reg.Apps() {
			d, _ := reg.Dictionary(app)
			for f := uint16(1); f <= uint16(d.NumFormats()); f++ {
				e, ok := d.Entry(f)
				if !ok {
					continue
				}
				fmt.Printf("  %s/%-24s %-12s %4d bits  %3d bytes native\n",
					d.Name, e.Name, e.Basic, e.Size.Bits, e.Size.Bytes)
			}
		}
		return nil
	}

	h, err := findType(reg, typeName)
	if err != nil {
		return err
	}

	if decodeHex == "" {
		return describeType(reg, h)
	}

	packed, err := hex.DecodeString(strings.ReplaceAll(decodeHex, " ", ""))
	if err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}
	return decodeBuffer(reg, h, packed)
}

func mountSnapshots(paths []string) (*registry.Registry, error) {
	reg := registry.New()
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		d, err := dictionary.Import(data)
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", p, err)
		}
		if _, err := reg.Register(d); err != nil {
			return nil, fmt.Errorf("mount %s: %w", p, err)
		}
	}
	return reg, nil
}

// findType resolves "Name" or "App/Name" to a handle, searching every
// mounted dictionary for the bare form.
func findType(reg *registry.Registry, name string) (edsruntime.TypeHandle, error) {
	appName, typeName := "", name
	if i := strings.IndexByte(name, '/'); i >= 0 {
		appName, typeName = name[:i], name[i+1:]
	}
	for _, app := range reg.Apps() {
		d, err := reg.Dictionary(app)
		if err != nil {
			return 0, err
		}
		if appName != "" && d.Name != appName {
			continue
		}
		if f, _, ok := d.EntryByName(typeName); ok {
			return d.HandleFor(f), nil
		}
	}
	return 0, fmt.Errorf("type %q not found in mounted dictionaries", name)
}

func describeType(reg *registry.Registry, h edsruntime.TypeHandle) error {
	e, err := reg.Resolve(h)
	if err != nil {
		return err
	}
	info, err := reg.TypeInfo(h)
	if err != nil {
		return err
	}
	fmt.Printf("\nType: %s\n", e.Name)
	fmt.Printf("Basic type: %s\n", info.ElemType)
	fmt.Printf("Packed size: %d bits\n", info.Size.Bits)
	fmt.Printf("Native size: %d bytes\n", info.Size.Bytes)
	fmt.Printf("Sub-elements: %d\n", info.NumSubElements)

	if di, err := identify.GetDerivedInfo(reg, h); err == nil && di.NumDerivatives > 0 {
		fmt.Printf("Derivatives: %d (max size %d bits / %d bytes)\n",
			di.NumDerivatives, di.MaxSize.Bits, di.MaxSize.Bytes)
	}

	if !e.Basic.IsScalar() {
		it, err := reg.Members(h)
		if err != nil {
			return err
		}
		fmt.Printf("\nMembers:\n")
		for it.Next() {
			ei := it.Entity()
			te, err := reg.Resolve(ei.Handle)
			if err != nil {
				return err
			}
			fmt.Printf("  %-24s %-14s %-20s bit %4d  byte %3d\n",
				ei.Name, ei.Kind, te.Name, ei.Offset.Bits, ei.Offset.Bytes)
		}
	}
	return nil
}

func decodeBuffer(reg *registry.Registry, h edsruntime.TypeHandle, packed []byte) error {
	e, err := reg.Resolve(h)
	if err != nil {
		return err
	}
	native := make([]byte, nativeCapacity(reg, h, e.Size.Bytes))
	final, err := codec.NewUnpacker(reg).UnpackCompleteObject(h, native, packed)
	if err != nil && final == 0 {
		return err
	}

	fe, rerr := reg.Resolve(final)
	if rerr != nil {
		return rerr
	}
	fmt.Printf("\nDecoded as: %s\n", fe.Name)
	if err != nil {
		fmt.Printf("Warning: %v\n", err)
	}

	it, err := reg.Members(final)
	if err != nil {
		return err
	}
	for it.Next() {
		ei := it.Entity()
		fmt.Printf("  %-24s = %s\n", ei.Name, memberValue(reg, ei, native))
	}
	return nil
}

// nativeCapacity sizes a decode buffer for the widest derivative, so the
// identified type always fits.
func nativeCapacity(reg *registry.Registry, h edsruntime.TypeHandle, base uint32) uint32 {
	if di, err := identify.GetDerivedInfo(reg, h); err == nil && di.MaxSize.Bytes > base {
		return di.MaxSize.Bytes
	}
	return base
}

func memberValue(reg *registry.Registry, ei registry.EntityInfo, native []byte) string {
	te, err := reg.Resolve(ei.Handle)
	if err != nil {
		return "?"
	}
	return formatNative(te, native, ei.Offset.Bytes)
}

// formatNative renders the native bytes of one entity for display. Host
// byte order, same layout the codec writes.
func formatNative(te *dictionary.TypeEntry, buf []byte, off uint32) string {
	n := te.Size.Bytes
	if uint64(off)+uint64(n) > uint64(len(buf)) {
		return "?"
	}
	field := buf[off : off+n]
	switch te.Basic {
	case dictionary.BasicUnsignedInt:
		return fmt.Sprintf("%d", nativeUint(field))
	case dictionary.BasicSignedInt:
		return fmt.Sprintf("%d", nativeInt(field))
	case dictionary.BasicFloat:
		if n == 4 {
			return fmt.Sprintf("%g", nativeFloat32(field))
		}
		return fmt.Sprintf("%g", nativeFloat64(field))
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

func nativeUint(b []byte) uint64 {
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

func nativeInt(b []byte) int64 {
	shift := 64 - uint(len(b))*8
	return int64(nativeUint(b)<<shift) >> shift
}

func nativeFloat32(b []byte) float32 {
	return math.Float32frombits(binary.NativeEndian.Uint32(b))
}

func nativeFloat64(b []byte) float64 {
	return math.Float64frombits(binary.NativeEndian.Uint64(b))
}
