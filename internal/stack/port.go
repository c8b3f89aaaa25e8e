package stack

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Port maps a container port to the host
type Port struct {
	// HostIP to bind on; empty means all interfaces
	HostIP string `yaml:"host_ip,omitempty"`

	// Published host port, a single port or a range like 8000-8010
	Published string `yaml:"published,omitempty"`

	// Target port inside the container
	Target uint32 `yaml:"target"`

	// Protocol is tcp or udp
	Protocol string `yaml:"protocol,omitempty"`

	// Mode is host or ingress (swarm only)
	Mode string `yaml:"mode,omitempty"`
}

// ParsePort parses the short port syntax `[host_ip:][published:]target[/protocol]`
func ParsePort(spec string) (Port, error) {
	var p Port
	rest := strings.TrimSpace(spec)
	if rest == "" {
		return p, fmt.Errorf("empty port mapping")
	}

	if i := strings.LastIndex(rest, "/"); i >= 0 {
		p.Protocol = strings.ToLower(rest[i+1:])
		rest = rest[:i]
	}

	// Bracketed IPv6 host address
	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 || end+1 >= len(rest) || rest[end+1] != ':' {
			return p, fmt.Errorf("invalid port mapping %q", spec)
		}
		p.HostIP = rest[1:end]
		rest = rest[end+2:]
	}

	parts := strings.Split(rest, ":")
	var target string
	switch len(parts) {
	case 1:
		target = parts[0]
	case 2:
		p.Published, target = parts[0], parts[1]
	case 3:
		if p.HostIP != "" {
			return p, fmt.Errorf("invalid port mapping %q", spec)
		}
		p.HostIP, p.Published, target = parts[0], parts[1], parts[2]
	default:
		return p, fmt.Errorf("invalid port mapping %q", spec)
	}

	if strings.Contains(target, "-") {
		return p, fmt.Errorf("invalid port mapping %q: target port ranges are not supported", spec)
	}
	n, err := strconv.ParseUint(target, 10, 32)
	if err != nil {
		return p, fmt.Errorf("invalid port mapping %q: bad target port %q", spec, target)
	}
	p.Target = uint32(n)

	if p.Published != "" {
		if _, _, err := parseRange(p.Published); err != nil {
			return p, fmt.Errorf("invalid port mapping %q: %w", spec, err)
		}
	}
	return p, nil
}

// PublishedRange returns the first and last published host port.
// ok is false when no host port is published.
func (p Port) PublishedRange() (start, end uint32, ok bool) {
	if p.Published == "" {
		return 0, 0, false
	}
	s, e, err := parseRange(p.Published)
	if err != nil {
		return 0, 0, false
	}
	return s, e, true
}

// Proto returns the protocol, defaulting to tcp
func (p Port) Proto() string {
	if p.Protocol == "" {
		return "tcp"
	}
	return p.Protocol
}

// String renders the short syntax
func (p Port) String() string {
	var b strings.Builder
	if p.HostIP != "" {
		if strings.Contains(p.HostIP, ":") {
			b.WriteString("[" + p.HostIP + "]")
		} else {
			b.WriteString(p.HostIP)
		}
		b.WriteString(":")
	}
	if p.Published != "" || p.HostIP != "" {
		b.WriteString(p.Published)
		b.WriteString(":")
	}
	b.WriteString(strconv.FormatUint(uint64(p.Target), 10))
	if p.Protocol != "" && p.Protocol != "tcp" {
		b.WriteString("/" + p.Protocol)
	}
	return b.String()
}

// UnmarshalYAML accepts the short string form and the long mapping form
func (p *Port) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parsed, err := ParsePort(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*p = parsed
		return nil
	}

	type rawPort Port
	var raw rawPort
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Published != "" {
		if _, _, err := parseRange(raw.Published); err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
	}
	*p = Port(raw)
	return nil
}

// MarshalYAML renders the short form unless a mode is set
func (p Port) MarshalYAML() (interface{}, error) {
	if p.Mode != "" {
		type rawPort Port
		return rawPort(p), nil
	}
	return p.String(), nil
}

func parseRange(s string) (uint32, uint32, error) {
	lo, hi, isRange := strings.Cut(s, "-")
	start, err := strconv.ParseUint(lo, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad published port %q", s)
	}
	end := start
	if isRange {
		end, err = strconv.ParseUint(hi, 10, 32)
		if err != nil {
			return 0, 0, fmt.Errorf("bad published port %q", s)
		}
		if end < start {
			return 0, 0, fmt.Errorf("bad published port range %q", s)
		}
	}
	return uint32(start), uint32(end), nil
}
