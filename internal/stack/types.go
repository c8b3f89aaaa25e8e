// Package stack models, loads, validates and converts the compose document
// that describes the local development stack.
package stack

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

// Mount types
const (
	MountVolume = "volume"
	MountBind   = "bind"
	MountTmpfs  = "tmpfs"
)

// Dependency conditions understood by the compose runtime
const (
	ConditionStarted   = "service_started"
	ConditionHealthy   = "service_healthy"
	ConditionCompleted = "service_completed_successfully"
)

// Project represents a complete compose document
type Project struct {
	// Name of the compose project
	Name string `yaml:"name,omitempty"`

	// Version is obsolete in the compose specification but still common
	Version string `yaml:"version,omitempty"`

	// Services keyed by service name
	Services map[string]*Service `yaml:"services"`

	// Volumes declared at the top level
	Volumes map[string]*Volume `yaml:"volumes,omitempty"`

	// WorkingDir is the directory of the first loaded file
	WorkingDir string `yaml:"-"`

	// Files the project was loaded from, in merge order
	Files []string `yaml:"-"`
}

// Service represents a single container definition
type Service struct {
	// Name is filled from the services map key
	Name string `yaml:"-"`

	// Build context for the image
	Build *Build `yaml:"build,omitempty"`

	// Image tag to run (or to tag the build with)
	Image string `yaml:"image,omitempty"`

	// ContainerName overrides the generated container name
	ContainerName string `yaml:"container_name,omitempty"`

	// Command overrides the image command
	Command Command `yaml:"command,omitempty"`

	// Ports published to the host
	Ports []Port `yaml:"ports,omitempty"`

	// Volumes mounted into the container
	Volumes []Mount `yaml:"volumes,omitempty"`

	// Environment injected into the container
	Environment Environment `yaml:"environment,omitempty"`

	// DependsOn lists services that must start first
	DependsOn DependsOn `yaml:"depends_on,omitempty"`

	// Restart policy
	Restart string `yaml:"restart,omitempty"`

	// Healthcheck for the container
	Healthcheck *Healthcheck `yaml:"healthcheck,omitempty"`

	// Labels attached to the container
	Labels map[string]string `yaml:"labels,omitempty"`
}

// Volume represents a named volume managed by the runtime
type Volume struct {
	Name     string            `yaml:"name,omitempty"`
	Driver   string            `yaml:"driver,omitempty"`
	External bool              `yaml:"external,omitempty"`
	Labels   map[string]string `yaml:"labels,omitempty"`
}

// Build describes how to build a service image
type Build struct {
	Context    string            `yaml:"context,omitempty"`
	Dockerfile string            `yaml:"dockerfile,omitempty"`
	Args       map[string]string `yaml:"args,omitempty"`
	Target     string            `yaml:"target,omitempty"`
}

// UnmarshalYAML allows Build to be specified as either a string or object
func (b *Build) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		b.Context = value.Value
		return nil
	}

	type rawBuild Build
	return value.Decode((*rawBuild)(b))
}

// MarshalYAML renders the short form when only the context is set
func (b Build) MarshalYAML() (interface{}, error) {
	if b.Dockerfile == "" && len(b.Args) == 0 && b.Target == "" {
		return b.Context, nil
	}
	type rawBuild Build
	return rawBuild(b), nil
}

// Command is a container command. The string form is split like a shell would.
type Command []string

// UnmarshalYAML accepts both `cmd arg` and `["cmd", "arg"]`
func (c *Command) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*c = nil
			return nil
		}
		parts, err := shlex.Split(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: invalid command %q: %w", value.Line, value.Value, err)
		}
		*c = parts
		return nil
	case yaml.SequenceNode:
		var parts []string
		if err := value.Decode(&parts); err != nil {
			return err
		}
		*c = parts
		return nil
	default:
		return fmt.Errorf("line %d: command must be a string or a list", value.Line)
	}
}

// String returns the command joined for display
func (c Command) String() string {
	quoted := make([]string, len(c))
	for i, part := range c {
		if part == "" || strings.ContainsAny(part, " \t\"'&|;$") {
			quoted[i] = strconv.Quote(part)
		} else {
			quoted[i] = part
		}
	}
	return strings.Join(quoted, " ")
}

// Environment holds environment variables for a service
type Environment map[string]string

// UnmarshalYAML accepts both the mapping form and the KEY=VALUE list form
func (e *Environment) UnmarshalYAML(value *yaml.Node) error {
	env := make(Environment)

	switch value.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			key := value.Content[i].Value
			val := value.Content[i+1]
			if val.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: environment value for %s must be a scalar", val.Line, key)
			}
			if val.Tag == "!!null" {
				env[key] = os.Getenv(key)
				continue
			}
			env[key] = val.Value
		}
	case yaml.SequenceNode:
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: environment entries must be strings", item.Line)
			}
			key, val, ok := strings.Cut(item.Value, "=")
			if !ok {
				val = os.Getenv(key)
			}
			env[key] = val
		}
	default:
		return fmt.Errorf("line %d: environment must be a mapping or a list", value.Line)
	}

	*e = env
	return nil
}

// MarshalYAML renders the environment as a sorted KEY=VALUE list
func (e Environment) MarshalYAML() (interface{}, error) {
	return e.List(), nil
}

// List returns KEY=VALUE pairs sorted by key
func (e Environment) List() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + e[k]
	}
	return out
}

// Dependency describes a start-order dependency on another service
type Dependency struct {
	Condition string `yaml:"condition,omitempty"`
}

// DependsOn maps dependency service names to their condition
type DependsOn map[string]Dependency

// UnmarshalYAML accepts both the list form and the mapping form
func (d *DependsOn) UnmarshalYAML(value *yaml.Node) error {
	deps := make(DependsOn)

	switch value.Kind {
	case yaml.SequenceNode:
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: depends_on entries must be service names", item.Line)
			}
			deps[item.Value] = Dependency{}
		}
	case yaml.MappingNode:
		raw := make(map[string]Dependency)
		if err := value.Decode(&raw); err != nil {
			return err
		}
		for k, v := range raw {
			deps[k] = v
		}
	default:
		return fmt.Errorf("line %d: depends_on must be a list or a mapping", value.Line)
	}

	*d = deps
	return nil
}

// MarshalYAML renders the list form unless a condition other than the default is set
func (d DependsOn) MarshalYAML() (interface{}, error) {
	for _, dep := range d {
		if dep.Condition != "" && dep.Condition != ConditionStarted {
			return map[string]Dependency(d), nil
		}
	}
	return d.Names(), nil
}

// Names returns the dependency names sorted
func (d DependsOn) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthTest is a healthcheck test; the string form runs through the shell
type HealthTest []string

// UnmarshalYAML turns the string form into CMD-SHELL
func (h *HealthTest) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*h = HealthTest{"CMD-SHELL", value.Value}
		return nil
	}
	var parts []string
	if err := value.Decode(&parts); err != nil {
		return err
	}
	*h = parts
	return nil
}

// Healthcheck configures the container health probe
type Healthcheck struct {
	Test        HealthTest `yaml:"test,omitempty"`
	Interval    string     `yaml:"interval,omitempty"`
	Timeout     string     `yaml:"timeout,omitempty"`
	Retries     int        `yaml:"retries,omitempty"`
	StartPeriod string     `yaml:"start_period,omitempty"`
	Disable     bool       `yaml:"disable,omitempty"`
}

// ServiceNames returns all service names sorted
func (p *Project) ServiceNames() []string {
	names := make([]string, 0, len(p.Services))
	for name := range p.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VolumeNames returns all top-level volume names sorted
func (p *Project) VolumeNames() []string {
	names := make([]string, 0, len(p.Volumes))
	for name := range p.Volumes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Service returns the named service or nil
func (p *Project) Service(name string) *Service {
	if p.Services == nil {
		return nil
	}
	return p.Services[name]
}
