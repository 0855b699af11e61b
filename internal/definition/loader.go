package definition

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/extend"
	"zigbee-capability/internal/script"
	"zigbee-capability/internal/zcl"
)

// deviceFile is the YAML structure for files in the devices directory.
type deviceFile struct {
	Clusters    []zcl.ClusterDef `yaml:"clusters"`
	Definitions []fileDefinition `yaml:"definitions"`
}

type fileDefinition struct {
	Identity  `yaml:",inline"`
	Endpoints map[string]uint8 `yaml:"endpoints"`
	Extend    []extend.Spec    `yaml:"extend"`
	Scripts   []script.Spec    `yaml:"scripts"`
	Options   map[string]any   `yaml:"options"`
}

type pending struct {
	file string
	spec Spec
}

// LoadDir reads every *.yaml and *.yml file in dir, registers the clusters
// they declare, evaluates their builders and Lua converters, freezes the
// registry and assembles the definitions.
//
// A broken file or definition is skipped and its error collected; the
// returned DB holds everything that loaded. A missing or empty directory
// yields an empty DB.
func LoadDir(dir string, reg *zcl.Registry, engine *script.Engine, logger *slog.Logger) (*DB, *zcl.Snapshot, error) {
	logger = logger.With("component", "definition")
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		m, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, nil, fmt.Errorf("glob devices dir: %w", err)
		}
		paths = append(paths, m...)
	}
	sort.Strings(paths)

	var (
		errs  []error
		queue []pending
	)
	for _, path := range paths {
		name := filepath.Base(path)
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", name, err))
			continue
		}
		specs, ferrs := parseFile(data, reg, engine)
		for _, e := range ferrs {
			errs = append(errs, fmt.Errorf("%s: %w", name, e))
		}
		for _, s := range specs {
			queue = append(queue, pending{file: name, spec: s})
		}
		logger.Info("loaded device file", "path", name, "definitions", len(specs))
	}

	snap := reg.Freeze()
	db := NewDB()
	for _, p := range queue {
		def, err := Assemble(p.spec, snap, logger)
		if err == nil {
			err = db.Add(def)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.file, err))
		}
	}

	if len(paths) == 0 {
		logger.Info("no device definition files found", "dir", dir)
	}
	logger.Info("definition database loaded", "files", len(paths), "definitions", db.Len(), "errors", len(errs))
	return db, snap, joinErrors(errs)
}

// parseFile decodes one definition file. Cluster registration failures
// drop every definition of the file; a failing definition drops only
// itself.
func parseFile(data []byte, reg *zcl.Registry, engine *script.Engine) ([]Spec, []error) {
	var df deviceFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&df); err != nil {
		return nil, []error{fmt.Errorf("parse: %w", err)}
	}
	for _, c := range df.Clusters {
		if err := reg.Register(c); err != nil {
			return nil, []error{err}
		}
	}

	var (
		specs []Spec
		errs  []error
	)
	for _, fd := range df.Definitions {
		s, err := fd.spec(reg, engine)
		if err != nil {
			errs = append(errs, fmt.Errorf("definition %s: %w", fd.Model, err))
			continue
		}
		specs = append(specs, s)
	}
	return specs, errs
}

func (fd *fileDefinition) spec(reg *zcl.Registry, engine *script.Engine) (Spec, error) {
	if fd.Model == "" {
		return Spec{}, fmt.Errorf("model is required")
	}
	bundles, err := extend.BuildAll(fd.Extend)
	if err != nil {
		return Spec{}, err
	}
	for _, b := range bundles {
		for _, c := range b.Clusters {
			if err := reg.Register(c); err != nil {
				return Spec{}, err
			}
		}
	}
	var inbound []converter.Inbound
	for _, ss := range fd.Scripts {
		c, err := engine.Compile(ss)
		if err != nil {
			return Spec{}, err
		}
		inbound = append(inbound, c)
	}
	return Spec{
		Identity:  fd.Identity,
		Endpoints: converter.EndpointMap(fd.Endpoints),
		Bundles:   bundles,
		Inbound:   inbound,
		Options:   fd.Options,
	}, nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &LoadError{Errs: errs}
}

// LoadError collects the per-file and per-definition failures of LoadDir.
type LoadError struct {
	Errs []error
}

func (e *LoadError) Error() string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "definition: %d load errors", len(e.Errs))
	for _, err := range e.Errs {
		b.WriteString("\n\t")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *LoadError) Unwrap() []error { return e.Errs }
