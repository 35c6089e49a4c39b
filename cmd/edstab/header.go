package main

import (
	"encoding/binary"
	"fmt"
	"strings"

	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/calib"
	"github.com/edsworks/eds-runtime/dictionary"
	"github.com/edsworks/eds-runtime/registry"
)

// Table image layout: FileHeader, TableHeader, payload, each a packed EDS
// object, concatenated. The file header's length entry carries its own
// packed byte count, so readers can locate the table header without
// assuming a layout version.
const headerMagic = 0x45445354 // "EDST"

const headerFormatVersion = 1

type headerHandles struct {
	file  edsruntime.TypeHandle
	table edsruntime.TypeHandle
}

func mountHeaderDictionary(reg *registry.Registry, app uint16) (headerHandles, error) {
	b := dictionary.NewBuilder("edstab", 0, app)

	u16, err := b.AddUnsignedInt("UInt16", 16, dictionary.ByteOrderBig)
	if err != nil {
		return headerHandles{}, err
	}
	u32, err := b.AddUnsignedInt("UInt32", 32, dictionary.ByteOrderBig)
	if err != nil {
		return headerHandles{}, err
	}
	name32, err := b.AddString("TableName", 32, dictionary.CharsetASCII)
	if err != nil {
		return headerHandles{}, err
	}

	file, err := b.Container("FileHeader").
		FixedValue("magic", u32, headerMagic).
		FixedValue("version", u16, headerFormatVersion).
		Member("spacecraft", u16).
		Length("header_bytes", u16, calib.None()).
		Build()
	if err != nil {
		return headerHandles{}, err
	}

	table, err := b.Container("TableHeader").
		Member("app_id", u16).
		Member("format_id", u16).
		Member("num_bytes", u32).
		Member("table_name", name32).
		Build()
	if err != nil {
		return headerHandles{}, err
	}

	d, err := b.Seal()
	if err != nil {
		return headerHandles{}, err
	}
	if _, err := reg.Register(d); err != nil {
		return headerHandles{}, fmt.Errorf("mounting header dictionary at app %d: %w", app, err)
	}
	return headerHandles{file: file, table: table}, nil
}

// wireSize returns the packed byte extent of a type.
func wireSize(reg *registry.Registry, h edsruntime.TypeHandle) (uint32, error) {
	e, err := reg.Resolve(h)
	if err != nil {
		return 0, err
	}
	return (e.Size.Bits + 7) / 8, nil
}

// putField writes an integer into a named member of a native buffer, host
// byte order.
func putField(reg *registry.Registry, h edsruntime.TypeHandle, buf []byte, path string, v uint64) error {
	ei, err := reg.LocateSubEntity(h, path)
	if err != nil {
		return err
	}
	off, n := ei.Offset.Bytes, ei.Size.Bytes
	if uint64(off)+uint64(n) > uint64(len(buf)) {
		return fmt.Errorf("field %s extends past buffer", path)
	}
	switch n {
	case 1:
		buf[off] = byte(v)
	case 2:
		binary.NativeEndian.PutUint16(buf[off:], uint16(v))
	case 4:
		binary.NativeEndian.PutUint32(buf[off:], uint32(v))
	case 8:
		binary.NativeEndian.PutUint64(buf[off:], v)
	default:
		return fmt.Errorf("field %s has non-scalar width %d", path, n)
	}
	return nil
}

func getField(reg *registry.Registry, h edsruntime.TypeHandle, buf []byte, path string) (uint64, error) {
	ei, err := reg.LocateSubEntity(h, path)
	if err != nil {
		return 0, err
	}
	off, n := ei.Offset.Bytes, ei.Size.Bytes
	if uint64(off)+uint64(n) > uint64(len(buf)) {
		return 0, fmt.Errorf("field %s extends past buffer", path)
	}
	switch n {
	case 1:
		return uint64(buf[off]), nil
	case 2:
		return uint64(binary.NativeEndian.Uint16(buf[off:])), nil
	case 4:
		return uint64(binary.NativeEndian.Uint32(buf[off:])), nil
	case 8:
		return binary.NativeEndian.Uint64(buf[off:]), nil
	}
	return 0, fmt.Errorf("field %s has non-scalar width %d", path, n)
}

// putString writes a NUL-padded string member. The buffer region must
// already be zeroed.
func putString(reg *registry.Registry, h edsruntime.TypeHandle, buf []byte, path, s string) error {
	ei, err := reg.LocateSubEntity(h, path)
	if err != nil {
		return err
	}
	off, n := ei.Offset.Bytes, ei.Size.Bytes
	if uint64(off)+uint64(n) > uint64(len(buf)) {
		return fmt.Errorf("field %s extends past buffer", path)
	}
	if len(s) >= int(n) {
		return fmt.Errorf("name %q does not fit %d bytes (NUL included)", s, n)
	}
	copy(buf[off:off+n], s)
	return nil
}

func getString(reg *registry.Registry, h edsruntime.TypeHandle, buf []byte, path string) (string, error) {
	ei, err := reg.LocateSubEntity(h, path)
	if err != nil {
		return "", err
	}
	off, n := ei.Offset.Bytes, ei.Size.Bytes
	if uint64(off)+uint64(n) > uint64(len(buf)) {
		return "", fmt.Errorf("field %s extends past buffer", path)
	}
	s := string(buf[off : off+n])
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return s, nil
}

// findType resolves "Name" or "App/Name" across the mounted dictionaries.
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
