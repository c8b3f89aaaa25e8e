package stack

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Annotation recording compose depends_on on exported workloads
const DependsOnAnnotation = "bookshelf.dev/depends-on"

// PostgresPort is the port postgres images listen on
const PostgresPort = 5432

// KubernetesOptions controls the Kubernetes export
type KubernetesOptions struct {
	Namespace    string
	StorageSize  string
	StorageClass string
	Replicas     int
}

type k8sObject struct {
	APIVersion string      `yaml:"apiVersion"`
	Kind       string      `yaml:"kind"`
	Metadata   k8sMeta     `yaml:"metadata"`
	Spec       interface{} `yaml:"spec"`
}

type k8sMeta struct {
	Name        string            `yaml:"name,omitempty"`
	Namespace   string            `yaml:"namespace,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty"`
}

type deploymentSpec struct {
	Replicas int           `yaml:"replicas"`
	Selector labelSelector `yaml:"selector"`
	Template podTemplate   `yaml:"template"`
}

type labelSelector struct {
	MatchLabels map[string]string `yaml:"matchLabels"`
}

type podTemplate struct {
	Metadata k8sMeta `yaml:"metadata"`
	Spec     podSpec `yaml:"spec"`
}

type podSpec struct {
	Containers []container `yaml:"containers"`
	Volumes    []podVolume `yaml:"volumes,omitempty"`
}

type container struct {
	Name           string          `yaml:"name"`
	Image          string          `yaml:"image"`
	Args           []string        `yaml:"args,omitempty"`
	Env            []envVar        `yaml:"env,omitempty"`
	Ports          []containerPort `yaml:"ports,omitempty"`
	VolumeMounts   []volumeMount   `yaml:"volumeMounts,omitempty"`
	ReadinessProbe *probe          `yaml:"readinessProbe,omitempty"`
}

type envVar struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

type containerPort struct {
	ContainerPort uint32 `yaml:"containerPort"`
	Protocol      string `yaml:"protocol,omitempty"`
}

type volumeMount struct {
	Name      string `yaml:"name"`
	MountPath string `yaml:"mountPath"`
	ReadOnly  bool   `yaml:"readOnly,omitempty"`
}

type podVolume struct {
	Name                  string          `yaml:"name"`
	PersistentVolumeClaim *claimSource    `yaml:"persistentVolumeClaim,omitempty"`
	HostPath              *hostPathSource `yaml:"hostPath,omitempty"`
	EmptyDir              *emptyDirSource `yaml:"emptyDir,omitempty"`
}

type claimSource struct {
	ClaimName string `yaml:"claimName"`
}

type hostPathSource struct {
	Path string `yaml:"path"`
	Type string `yaml:"type,omitempty"`
}

type emptyDirSource struct {
	Medium string `yaml:"medium,omitempty"`
}

type probe struct {
	Exec                execAction `yaml:"exec"`
	PeriodSeconds       int        `yaml:"periodSeconds,omitempty"`
	TimeoutSeconds      int        `yaml:"timeoutSeconds,omitempty"`
	FailureThreshold    int        `yaml:"failureThreshold,omitempty"`
	InitialDelaySeconds int        `yaml:"initialDelaySeconds,omitempty"`
}

type execAction struct {
	Command []string `yaml:"command"`
}

type serviceSpec struct {
	Selector map[string]string `yaml:"selector"`
	Ports    []servicePort     `yaml:"ports"`
}

type servicePort struct {
	Name       string `yaml:"name"`
	Port       uint32 `yaml:"port"`
	TargetPort uint32 `yaml:"targetPort"`
	Protocol   string `yaml:"protocol"`
}

type claimSpec struct {
	AccessModes      []string       `yaml:"accessModes"`
	StorageClassName string         `yaml:"storageClassName,omitempty"`
	Resources        claimResources `yaml:"resources"`
}

type claimResources struct {
	Requests map[string]string `yaml:"requests"`
}

// ExportKubernetes converts the project to Kubernetes manifests: a
// PersistentVolumeClaim per named volume, then for every compose service in
// start order a Deployment and, when it has ports or is reached by another
// service, a ClusterIP Service.
func ExportKubernetes(p *Project, opts KubernetesOptions) ([]byte, error) {
	if opts.StorageSize == "" {
		opts.StorageSize = "1Gi"
	}
	if opts.Replicas <= 0 {
		opts.Replicas = 1
	}

	order, err := StartOrder(p)
	if err != nil {
		return nil, err
	}

	reached := reachedServices(p)

	var objects []k8sObject
	for _, name := range p.VolumeNames() {
		vol := p.Volumes[name]
		if vol.External {
			continue
		}
		objects = append(objects, k8sObject{
			APIVersion: "v1",
			Kind:       "PersistentVolumeClaim",
			Metadata:   k8sMeta{Name: k8sName(name), Namespace: opts.Namespace, Labels: partOf(p)},
			Spec: claimSpec{
				AccessModes:      []string{"ReadWriteOnce"},
				StorageClassName: opts.StorageClass,
				Resources:        claimResources{Requests: map[string]string{"storage": opts.StorageSize}},
			},
		})
	}

	for _, name := range order {
		svc := p.Services[name]
		if svc.Image == "" {
			return nil, fmt.Errorf("service %s has no image; set image to the tag the build produces", name)
		}

		deployment, err := toDeployment(p, svc, opts)
		if err != nil {
			return nil, err
		}
		objects = append(objects, deployment)

		if service, ok := toService(p, svc, opts, reached[name]); ok {
			objects = append(objects, service)
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, obj := range objects {
		if err := enc.Encode(obj); err != nil {
			return nil, fmt.Errorf("failed to encode %s %s: %w", obj.Kind, obj.Metadata.Name, err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toDeployment(p *Project, svc *Service, opts KubernetesOptions) (k8sObject, error) {
	labels := selectorLabels(svc)
	meta := k8sMeta{Name: k8sName(svc.Name), Namespace: opts.Namespace, Labels: merged(labels, partOf(p))}
	if len(svc.DependsOn) > 0 {
		meta.Annotations = map[string]string{DependsOnAnnotation: strings.Join(svc.DependsOn.Names(), ",")}
	}

	c := container{
		Name:  k8sName(svc.Name),
		Image: svc.Image,
		Args:  svc.Command,
	}
	for _, kv := range svc.Environment.List() {
		key, value, _ := strings.Cut(kv, "=")
		c.Env = append(c.Env, envVar{Name: key, Value: value})
	}
	for _, port := range svc.Ports {
		c.Ports = append(c.Ports, containerPort{ContainerPort: port.Target, Protocol: strings.ToUpper(port.Proto())})
	}
	c.ReadinessProbe = toProbe(svc.Healthcheck)

	var volumes []podVolume
	for i, m := range svc.Volumes {
		vol, err := toPodVolume(p, svc, i, m)
		if err != nil {
			return k8sObject{}, err
		}
		volumes = append(volumes, vol)
		c.VolumeMounts = append(c.VolumeMounts, volumeMount{Name: vol.Name, MountPath: m.Target, ReadOnly: m.ReadOnly})
	}

	return k8sObject{
		APIVersion: "apps/v1",
		Kind:       "Deployment",
		Metadata:   meta,
		Spec: deploymentSpec{
			Replicas: opts.Replicas,
			Selector: labelSelector{MatchLabels: labels},
			Template: podTemplate{
				Metadata: k8sMeta{Labels: labels},
				Spec:     podSpec{Containers: []container{c}, Volumes: volumes},
			},
		},
	}, nil
}

func toPodVolume(p *Project, svc *Service, index int, m Mount) (podVolume, error) {
	switch {
	case m.Type == MountTmpfs:
		return podVolume{Name: fmt.Sprintf("%s-tmpfs-%d", k8sName(svc.Name), index), EmptyDir: &emptyDirSource{Medium: "Memory"}}, nil
	case m.Type == MountBind:
		hostPath, err := resolveHostPath(p.WorkingDir, m.Source)
		if err != nil {
			return podVolume{}, fmt.Errorf("service %s: %w", svc.Name, err)
		}
		return podVolume{
			Name:     fmt.Sprintf("%s-bind-%d", k8sName(svc.Name), index),
			HostPath: &hostPathSource{Path: hostPath, Type: "DirectoryOrCreate"},
		}, nil
	case m.Source == "":
		return podVolume{Name: fmt.Sprintf("%s-anon-%d", k8sName(svc.Name), index), EmptyDir: &emptyDirSource{}}, nil
	default:
		claim := m.Source
		if vol, ok := p.Volumes[m.Source]; ok && vol.External && vol.Name != "" {
			claim = vol.Name
		}
		return podVolume{Name: k8sName(m.Source), PersistentVolumeClaim: &claimSource{ClaimName: k8sName(claim)}}, nil
	}
}

// toService builds a ClusterIP Service on the container ports of svc. A
// service without ports gets one only when another service connects to it and
// its port is known; postgres listens on PostgresPort.
func toService(p *Project, svc *Service, opts KubernetesOptions, reached bool) (k8sObject, bool) {
	spec := serviceSpec{Selector: selectorLabels(svc)}
	for i, port := range svc.Ports {
		spec.Ports = append(spec.Ports, servicePort{
			Name:       fmt.Sprintf("%s-%d", port.Proto(), i),
			Port:       port.Target,
			TargetPort: port.Target,
			Protocol:   strings.ToUpper(port.Proto()),
		})
	}
	if len(spec.Ports) == 0 {
		if !reached || !IsPostgresImage(svc.Image) {
			return k8sObject{}, false
		}
		spec.Ports = []servicePort{{Name: "postgres", Port: PostgresPort, TargetPort: PostgresPort, Protocol: "TCP"}}
	}
	return k8sObject{
		APIVersion: "v1",
		Kind:       "Service",
		Metadata:   k8sMeta{Name: k8sName(svc.Name), Namespace: opts.Namespace, Labels: merged(selectorLabels(svc), partOf(p))},
		Spec:       spec,
	}, true
}

// reachedServices returns the services that another service depends on or
// names in DB_HOST.
func reachedServices(p *Project) map[string]bool {
	reached := make(map[string]bool)
	for name, svc := range p.Services {
		for _, dep := range svc.DependsOn.Names() {
			reached[dep] = true
		}
		if host := svc.Environment["DB_HOST"]; host != "" && host != name {
			reached[host] = true
		}
	}
	return reached
}

func toProbe(hc *Healthcheck) *probe {
	if hc == nil || hc.Disable || len(hc.Test) == 0 {
		return nil
	}
	var command []string
	switch hc.Test[0] {
	case "NONE":
		return nil
	case "CMD-SHELL":
		command = []string{"sh", "-c", strings.Join(hc.Test[1:], " ")}
	case "CMD":
		command = hc.Test[1:]
	default:
		command = hc.Test
	}
	return &probe{
		Exec:                execAction{Command: command},
		PeriodSeconds:       seconds(hc.Interval),
		TimeoutSeconds:      seconds(hc.Timeout),
		FailureThreshold:    hc.Retries,
		InitialDelaySeconds: seconds(hc.StartPeriod),
	}
}

func seconds(d string) int {
	if d == "" {
		return 0
	}
	parsed, err := time.ParseDuration(d)
	if err != nil {
		return 0
	}
	return int(parsed.Seconds())
}

func resolveHostPath(dir, source string) (string, error) {
	if strings.HasPrefix(source, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve %s: %w", source, err)
		}
		return filepath.Join(home, strings.TrimPrefix(source, "~")), nil
	}
	if filepath.IsAbs(source) {
		return filepath.Clean(source), nil
	}
	return filepath.Join(dir, source), nil
}

func selectorLabels(svc *Service) map[string]string {
	return map[string]string{"app.kubernetes.io/name": k8sName(svc.Name)}
}

func partOf(p *Project) map[string]string {
	if p.Name == "" {
		return nil
	}
	return map[string]string{"app.kubernetes.io/part-of": k8sName(p.Name)}
}

func merged(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// k8sName converts a compose name to a DNS-1123 label
func k8sName(name string) string {
	name = strings.ToLower(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
