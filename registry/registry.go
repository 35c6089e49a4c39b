// Package registry mounts sealed application dictionaries into the
// process-wide slot table that the codec and identification engines
// resolve type handles through.
//
// The table carries no lock. Dictionaries are mounted during startup and
// the table is read-only afterwards; registration and unregistration must
// be externally synchronized with all readers. Once the mount phase is
// over, every read path is safe for concurrent use.
package registry

import (
	"strconv"

	"go.uber.org/zap"

	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/dictionary"
	"github.com/edsworks/eds-runtime/errors"
)

// Registry is the mount table of application dictionaries, indexed by app
// index. Slot 0 is never used: a zero app index marks an invalid handle.
type Registry struct {
	slots [edsruntime.MaxAppIndex + 1]*dictionary.AppDictionary
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// Register mounts a dictionary at the app index it was built for and
// returns that index. The dictionary must be sealed, its checksums must
// verify, its slot must be free, and no mounted dictionary may carry the
// same nonzero mission index. Handles stored inside a sealed dictionary
// bake its app index into their bit pattern, so a dictionary cannot be
// remounted at a different slot than it declares.
func (r *Registry) Register(d *dictionary.AppDictionary) (uint16, error) {
	if d == nil {
		return 0, errors.InvalidInput(errors.PhaseRegister, "nil dictionary")
	}
	app := d.AppIndex
	if app == 0 || app > edsruntime.MaxAppIndex {
		return 0, errors.InvalidAppIndex(errors.PhaseRegister, int(app))
	}
	if !d.Sealed() {
		return 0, errors.Registration("dictionary "+d.Name+" is not sealed", nil)
	}
	if prev := r.slots[app]; prev != nil {
		return 0, errors.Registration(
			"app index "+strconv.Itoa(int(app))+" already mounted by "+prev.Name, nil)
	}
	if d.MissionIdx != 0 {
		for _, m := range r.slots {
			if m != nil && m.MissionIdx == d.MissionIdx {
				return 0, errors.Registration(
					"mission index "+strconv.Itoa(int(d.MissionIdx))+" already mounted by "+m.Name, nil)
			}
		}
	}
	if err := d.VerifyChecksums(); err != nil {
		return 0, errors.Registration("dictionary "+d.Name+" failed checksum verification", err)
	}
	r.slots[app] = d
	Logger().Info("dictionary mounted",
		zap.String("name", d.Name),
		zap.Uint16("app", app),
		zap.Int("formats", d.NumFormats()))
	return app, nil
}

// Unregister clears an app slot. Handles referencing the index fail to
// resolve afterwards. TypeInfo values already handed out stay valid, since
// they are copies.
func (r *Registry) Unregister(app uint16) error {
	if app == 0 || app > edsruntime.MaxAppIndex {
		return errors.InvalidAppIndex(errors.PhaseRegister, int(app))
	}
	d := r.slots[app]
	if d == nil {
		return errors.NotFound(errors.PhaseRegister, "mounted dictionary", strconv.Itoa(int(app)))
	}
	r.slots[app] = nil
	Logger().Info("dictionary unmounted",
		zap.String("name", d.Name),
		zap.Uint16("app", app))
	return nil
}

// Dictionary returns the dictionary mounted at an app index.
func (r *Registry) Dictionary(app uint16) (*dictionary.AppDictionary, error) {
	if app == 0 || app > edsruntime.MaxAppIndex {
		return nil, errors.InvalidAppIndex(errors.PhaseResolve, int(app))
	}
	d := r.slots[app]
	if d == nil {
		return nil, errors.InvalidAppIndex(errors.PhaseResolve, int(app))
	}
	return d, nil
}

// Apps lists the mounted app indices in ascending order.
func (r *Registry) Apps() []uint16 {
	var apps []uint16
	for i, d := range r.slots {
		if d != nil {
			apps = append(apps, uint16(i))
		}
	}
	return apps
}

// Resolve maps a type handle to its dictionary entry. This is the sole
// gateway the other components resolve handles through. The cpu number
// field is ignored, so handles minted on any processor resolve against
// the local table.
func (r *Registry) Resolve(h edsruntime.TypeHandle) (*dictionary.TypeEntry, error) {
	if !h.IsValid() {
		return nil, errors.InvalidHandle(errors.PhaseResolve, h.String(), "zero app or format index")
	}
	d := r.slots[h.AppIndex()]
	if d == nil {
		return nil, errors.InvalidAppIndex(errors.PhaseResolve, int(h.AppIndex()))
	}
	e, ok := d.Entry(h.FormatIndex())
	if !ok {
		return nil, errors.InvalidFormatIndex(errors.PhaseResolve, int(h.AppIndex()), int(h.FormatIndex()))
	}
	return e, nil
}
