package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/edsworks/eds-runtime/dictionary"
	"github.com/edsworks/eds-runtime/registry"
)

// Manifest names the dictionary snapshot set a table image is built and
// read against. Snapshot paths are relative to the manifest file.
type Manifest struct {
	Spacecraft uint16   `yaml:"spacecraft,omitempty"`
	Snapshots  []string `yaml:"snapshots"`
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if len(m.Snapshots) == 0 {
		return nil, fmt.Errorf("manifest %s names no snapshots", path)
	}
	return &m, nil
}

// mountManifest loads the manifest, mounts its snapshot set, and mounts
// the table image header dictionary alongside it.
func mountManifest(manifestPath string, headerApp uint16) (*registry.Registry, *Manifest, headerHandles, error) {
	m, err := loadManifest(manifestPath)
	if err != nil {
		return nil, nil, headerHandles{}, err
	}

	reg := registry.New()
	base := filepath.Dir(manifestPath)
	for _, p := range m.Snapshots {
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, nil, headerHandles{}, fmt.Errorf("reading snapshot: %w", err)
		}
		d, err := dictionary.Import(data)
		if err != nil {
			return nil, nil, headerHandles{}, fmt.Errorf("importing %s: %w", p, err)
		}
		if _, err := reg.Register(d); err != nil {
			return nil, nil, headerHandles{}, fmt.Errorf("mounting %s: %w", p, err)
		}
	}

	hh, err := mountHeaderDictionary(reg, headerApp)
	if err != nil {
		return nil, nil, headerHandles{}, err
	}
	return reg, m, hh, nil
}
