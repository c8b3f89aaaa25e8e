package stack

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mount attaches a volume, host path or tmpfs to a service
type Mount struct {
	// Type is volume, bind or tmpfs
	Type string `yaml:"type"`

	// Source is the volume name or host path; empty for anonymous volumes and tmpfs
	Source string `yaml:"source,omitempty"`

	// Target path inside the container
	Target string `yaml:"target"`

	// ReadOnly mounts the source read-only
	ReadOnly bool `yaml:"read_only,omitempty"`
}

// ParseMount parses the short mount syntax `[source:]target[:mode]`
func ParseMount(spec string) (Mount, error) {
	var m Mount
	parts := strings.Split(spec, ":")

	switch len(parts) {
	case 1:
		m.Target = parts[0]
	case 2:
		m.Source, m.Target = parts[0], parts[1]
	case 3:
		m.Source, m.Target = parts[0], parts[1]
		for _, opt := range strings.Split(parts[2], ",") {
			switch opt {
			case "ro":
				m.ReadOnly = true
			case "rw", "z", "Z", "cached", "delegated", "consistent", "nocopy":
			default:
				return m, fmt.Errorf("invalid mount %q: unknown mode %q", spec, opt)
			}
		}
	default:
		return m, fmt.Errorf("invalid mount %q", spec)
	}

	if m.Target == "" {
		return m, fmt.Errorf("invalid mount %q: empty target", spec)
	}

	m.Type = MountVolume
	if IsHostPath(m.Source) {
		m.Type = MountBind
	}
	return m, nil
}

// IsHostPath reports whether a short-syntax source refers to the host filesystem
func IsHostPath(source string) bool {
	return strings.HasPrefix(source, ".") || strings.HasPrefix(source, "/") || strings.HasPrefix(source, "~")
}

// IsNamedVolume reports whether the mount references a top-level volume
func (m Mount) IsNamedVolume() bool {
	return m.Type == MountVolume && m.Source != ""
}

// String renders the short syntax
func (m Mount) String() string {
	s := m.Target
	if m.Source != "" {
		s = m.Source + ":" + m.Target
	}
	if m.ReadOnly {
		s += ":ro"
	}
	return s
}

// UnmarshalYAML accepts the short string form and the long mapping form
func (m *Mount) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParseMount(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*m = parsed
		return nil
	}

	type rawMount Mount
	var raw rawMount
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch raw.Type {
	case MountVolume, MountBind, MountTmpfs:
	case "":
		raw.Type = MountVolume
		if IsHostPath(raw.Source) {
			raw.Type = MountBind
		}
	default:
		return fmt.Errorf("line %d: unsupported mount type %q", value.Line, raw.Type)
	}
	*m = Mount(raw)
	return nil
}

// MarshalYAML renders the short form; tmpfs has no short form
func (m Mount) MarshalYAML() (interface{}, error) {
	if m.Type == MountTmpfs || (m.Type == MountBind && !IsHostPath(m.Source)) {
		type rawMount Mount
		return rawMount(m), nil
	}
	return m.String(), nil
}
