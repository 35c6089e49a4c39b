package dictionary

import (
	edsruntime "github.com/edsworks/eds-runtime"
)

// AppDictionary is the compiled type table of one application. Format
// indices are 1-based: index 0 is reserved as invalid, matching the handle
// encoding.
//
// A dictionary is immutable once sealed. The Builder seals on Build/Seal;
// snapshot import yields sealed dictionaries. Only sealed dictionaries can
// be registered.
type AppDictionary struct {
	Name          string
	MissionIdx    uint16
	AppIndex      uint16
	FormatVersion string
	Checksum      uint64

	entries []TypeEntry // entries[0] reserved
	sealed  bool
}

// Sealed reports whether the dictionary content is final.
func (d *AppDictionary) Sealed() bool { return d.sealed }

// NumFormats returns the number of type entries.
func (d *AppDictionary) NumFormats() int {
	if len(d.entries) == 0 {
		return 0
	}
	return len(d.entries) - 1
}

// Entry returns the type entry at a format index, or false when the index
// is out of range. Index 0 is never valid.
func (d *AppDictionary) Entry(format uint16) (*TypeEntry, bool) {
	if format == 0 || int(format) >= len(d.entries) {
		return nil, false
	}
	return &d.entries[format], true
}

// EntryByName finds a type entry by its declared name.
func (d *AppDictionary) EntryByName(name string) (uint16, *TypeEntry, bool) {
	for i := 1; i < len(d.entries); i++ {
		if d.entries[i].Name == name {
			return uint16(i), &d.entries[i], true
		}
	}
	return 0, nil, false
}

// HandleFor returns the handle addressing a format index through this
// dictionary's declared app index.
func (d *AppDictionary) HandleFor(format uint16) edsruntime.TypeHandle {
	return edsruntime.MakeTypeHandle(0, d.AppIndex, format)
}
