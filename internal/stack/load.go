package stack

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the compose file looked up when none is given
const DefaultFile = "docker-compose.yml"

// OverrideFile is merged over DefaultFile when present
const OverrideFile = "docker-compose.override.yml"

// ErrNoServices is returned for a document without services
var ErrNoServices = errors.New("no services defined")

// DefaultFiles returns the compose files found in dir: the main file plus its override
func DefaultFiles(dir string) []string {
	files := []string{filepath.Join(dir, DefaultFile)}
	override := filepath.Join(dir, OverrideFile)
	if _, err := os.Stat(override); err == nil {
		files = append(files, override)
	}
	return files
}

// Load reads and merges compose files. Later files override earlier ones.
//
// Variables are resolved from the process environment first and then from a
// .env file next to the first compose file.
func Load(paths ...string) (*Project, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no compose file given")
	}

	dir, err := filepath.Abs(filepath.Dir(paths[0]))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}

	dotenv, err := readDotEnv(filepath.Join(dir, ".env"))
	if err != nil {
		return nil, err
	}
	lookup := EnvLookup(dotenv)

	var project *Project
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read compose file: %w", err)
		}

		data, err = Interpolate(data, lookup)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		p, err := decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		if project == nil {
			project = p
		} else if err := project.merge(p); err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", path, err)
		}
		project.Files = append(project.Files, path)
		log.Debug("Loaded compose file", "path", path, "services", len(p.Services))
	}

	project.WorkingDir = dir
	if project.Name == "" {
		project.Name = normalizeProjectName(filepath.Base(dir))
	}

	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}
	return project, nil
}

// Parse decodes a single in-memory compose document without interpolation
func Parse(data []byte) (*Project, error) {
	p, err := decode(data)
	if err != nil {
		return nil, err
	}
	if len(p.Services) == 0 {
		return nil, ErrNoServices
	}
	return p, nil
}

// Marshal renders the project as YAML with sorted keys and short syntax
func Marshal(p *Project) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("failed to encode compose document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (*Project, error) {
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse compose file: %w", err)
	}
	p.normalize()
	return &p, nil
}

func (p *Project) normalize() {
	if p.Services == nil {
		p.Services = make(map[string]*Service)
	}
	for name, svc := range p.Services {
		if svc == nil {
			svc = &Service{}
			p.Services[name] = svc
		}
		svc.Name = name
	}
	for name, vol := range p.Volumes {
		if vol == nil {
			p.Volumes[name] = &Volume{}
		}
	}
}

// merge applies an override document on top of p
func (p *Project) merge(o *Project) error {
	if o.Name != "" {
		p.Name = o.Name
	}

	for name, svc := range o.Services {
		base, ok := p.Services[name]
		if !ok {
			p.Services[name] = svc
			continue
		}
		if err := mergeService(base, svc); err != nil {
			return fmt.Errorf("service %s: %w", name, err)
		}
	}

	for name, vol := range o.Volumes {
		if p.Volumes == nil {
			p.Volumes = make(map[string]*Volume)
		}
		p.Volumes[name] = vol
	}
	return nil
}

// mergeService overrides scalars and maps. Ports are appended and mounts
// are keyed by target so an override can replace a mount.
func mergeService(dst, src *Service) error {
	ports := mergePorts(dst.Ports, src.Ports)
	mounts := mergeMounts(dst.Volumes, src.Volumes)

	if err := mergo.Merge(dst, src, mergo.WithOverride); err != nil {
		return err
	}

	dst.Ports = ports
	dst.Volumes = mounts
	return nil
}

func mergePorts(base, override []Port) []Port {
	if len(override) == 0 {
		return base
	}
	seen := make(map[string]bool, len(base)+len(override))
	out := make([]Port, 0, len(base)+len(override))
	for _, port := range append(append([]Port{}, base...), override...) {
		key := port.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, port)
	}
	return out
}

func mergeMounts(base, override []Mount) []Mount {
	if len(override) == 0 {
		return base
	}
	out := append([]Mount{}, base...)
	for _, m := range override {
		replaced := false
		for i := range out {
			if out[i].Target == m.Target {
				out[i] = m
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, m)
		}
	}
	return out
}

func readDotEnv(path string) (map[string]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return env, nil
}

func normalizeProjectName(name string) string {
	name = strings.ToLower(name)
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "-_")
}
