package stack

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
)

var serviceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Issue is a single validation problem
type Issue struct {
	Path    string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// ValidationError collects every problem found in a project
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return e.Issues[0].String()
	}
	lines := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		lines[i] = "  - " + issue.String()
	}
	return fmt.Sprintf("%d validation errors:\n%s", len(e.Issues), strings.Join(lines, "\n"))
}

func (e *ValidationError) add(path, format string, args ...interface{}) {
	e.Issues = append(e.Issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Postgres environment variables
var postgresEnv = []string{"POSTGRES_DB", "POSTGRES_USER", "POSTGRES_PASSWORD"}

// Application database variables, paired with postgresEnv
var appDBEnv = []string{"DB_NAME", "DB_USER", "DB_PASS"}

type validateOptions struct {
	required map[string][]string
	defaults bool
}

// ValidateOption configures Validate
type ValidateOption func(*validateOptions)

// WithRequiredEnv requires non-empty environment variables on a service
func WithRequiredEnv(service string, keys ...string) ValidateOption {
	return func(o *validateOptions) {
		o.required[service] = append(o.required[service], keys...)
	}
}

// WithDefaultRequirements requires the postgres credentials on every postgres
// image and the DB_* connection settings on every service using any of them.
func WithDefaultRequirements() ValidateOption {
	return func(o *validateOptions) {
		o.defaults = true
	}
}

// Validate checks the structural and referential rules of a project.
// It returns a *ValidationError listing every problem, or nil.
func Validate(p *Project, opts ...ValidateOption) error {
	o := &validateOptions{required: make(map[string][]string)}
	for _, opt := range opts {
		opt(o)
	}

	verr := &ValidationError{}
	if p == nil || len(p.Services) == 0 {
		verr.add("services", "at least one service is required")
		return verr
	}

	for _, name := range p.ServiceNames() {
		svc := p.Services[name]
		base := "services." + name

		if !serviceNamePattern.MatchString(name) {
			verr.add(base, "invalid service name %q", name)
		}
		if svc.Image == "" && svc.Build == nil {
			verr.add(base, "must define image or build")
		}

		validateDependsOn(p, svc, base, verr)
		validateMounts(p, svc, base, verr)
		validatePorts(svc, base, verr)
		validateRequiredEnv(svc, base, requiredEnv(svc, o), verr)
		validateDatabaseEnv(p, svc, base, verr)
	}

	for _, name := range sortedKeys(o.required) {
		if _, ok := p.Services[name]; !ok {
			verr.add("services."+name, "environment is required for an undeclared service")
		}
	}

	if cycle := FindCycle(p); cycle != nil {
		verr.add("services."+cycle[0]+".depends_on", "dependency cycle: %s", strings.Join(cycle, " -> "))
	}
	validatePortCollisions(p, verr)

	if len(verr.Issues) > 0 {
		return verr
	}
	return nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func validateDependsOn(p *Project, svc *Service, base string, verr *ValidationError) {
	for _, dep := range svc.DependsOn.Names() {
		dpath := base + ".depends_on." + dep
		if dep == svc.Name {
			verr.add(dpath, "service cannot depend on itself")
			continue
		}
		if _, ok := p.Services[dep]; !ok {
			verr.add(dpath, "depends on undeclared service %q", dep)
		}
		switch svc.DependsOn[dep].Condition {
		case "", ConditionStarted, ConditionHealthy, ConditionCompleted:
		default:
			verr.add(dpath, "unknown condition %q", svc.DependsOn[dep].Condition)
		}
	}
}

func validateMounts(p *Project, svc *Service, base string, verr *ValidationError) {
	for i, m := range svc.Volumes {
		mpath := fmt.Sprintf("%s.volumes[%d]", base, i)
		if !path.IsAbs(m.Target) {
			verr.add(mpath, "mount target %q must be an absolute path", m.Target)
		}
		if m.Type == MountBind && m.Source == "" {
			verr.add(mpath, "bind mount requires a source")
		}
		if m.IsNamedVolume() {
			if _, ok := p.Volumes[m.Source]; !ok {
				verr.add(mpath, "references undeclared volume %q", m.Source)
			}
		}
	}
}

func validatePorts(svc *Service, base string, verr *ValidationError) {
	for i, port := range svc.Ports {
		ppath := fmt.Sprintf("%s.ports[%d]", base, i)
		if port.Target == 0 || port.Target > 65535 {
			verr.add(ppath, "target port %d out of range", port.Target)
		}
		if start, end, ok := port.PublishedRange(); ok && (start == 0 || end > 65535) {
			verr.add(ppath, "published port %s out of range", port.Published)
		}
		switch port.Proto() {
		case "tcp", "udp", "sctp":
		default:
			verr.add(ppath, "unknown protocol %q", port.Protocol)
		}
	}
}

type hostBinding struct {
	service string
	index   int
	ip      string
	proto   string
	start   uint32
	end     uint32
}

func (b hostBinding) overlaps(o hostBinding) bool {
	if b.proto != o.proto {
		return false
	}
	if !isWildcardIP(b.ip) && !isWildcardIP(o.ip) && b.ip != o.ip {
		return false
	}
	return b.start <= o.end && o.start <= b.end
}

func isWildcardIP(ip string) bool {
	return ip == "" || ip == "0.0.0.0" || ip == "::"
}

func validatePortCollisions(p *Project, verr *ValidationError) {
	var bindings []hostBinding
	for _, name := range p.ServiceNames() {
		for i, port := range p.Services[name].Ports {
			start, end, ok := port.PublishedRange()
			if !ok {
				continue
			}
			b := hostBinding{service: name, index: i, ip: port.HostIP, proto: port.Proto(), start: start, end: end}
			for _, prev := range bindings {
				if prev.overlaps(b) {
					verr.add(fmt.Sprintf("services.%s.ports[%d]", name, i),
						"host port %s/%s already published by service %q", port.Published, b.proto, prev.service)
					break
				}
			}
			bindings = append(bindings, b)
		}
	}
}

func requiredEnv(svc *Service, o *validateOptions) []string {
	set := make(map[string]bool)
	for _, key := range o.required[svc.Name] {
		set[key] = true
	}
	if o.defaults {
		if IsPostgresImage(svc.Image) {
			for _, key := range postgresEnv {
				set[key] = true
			}
		}
		if usesDatabaseEnv(svc) {
			for _, key := range append([]string{"DB_HOST"}, appDBEnv...) {
				set[key] = true
			}
		}
	}

	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func validateRequiredEnv(svc *Service, base string, keys []string, verr *ValidationError) {
	for _, key := range keys {
		value, ok := svc.Environment[key]
		switch {
		case !ok:
			verr.add(base+".environment."+key, "required variable is missing")
		case strings.TrimSpace(value) == "":
			verr.add(base+".environment."+key, "required variable must not be empty")
		}
	}
}

// validateDatabaseEnv checks that DB_* settings point at a declared postgres
// service with the same credentials, and that the service waits for it.
func validateDatabaseEnv(p *Project, svc *Service, base string, verr *ValidationError) {
	host := svc.Environment["DB_HOST"]
	if host == "" || host == svc.Name {
		return
	}
	db, ok := p.Services[host]
	if !ok || !IsPostgresImage(db.Image) {
		return
	}

	for i, key := range appDBEnv {
		value, set := svc.Environment[key]
		if !set {
			continue
		}
		if want := db.Environment[postgresEnv[i]]; value != want {
			verr.add(base+".environment."+key, "does not match %s of service %q", postgresEnv[i], host)
		}
	}

	if _, ok := svc.DependsOn[host]; !ok {
		verr.add(base+".depends_on", "must include %q referenced by DB_HOST", host)
	}
}

func usesDatabaseEnv(svc *Service) bool {
	for key := range svc.Environment {
		if strings.HasPrefix(key, "DB_") {
			return true
		}
	}
	return false
}

// IsPostgresImage reports whether an image reference names a postgres image
func IsPostgresImage(image string) bool {
	if image == "" {
		return false
	}
	name := image
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexAny(name, ":@"); i >= 0 {
		name = name[:i]
	}
	return strings.HasPrefix(name, "postgres")
}
