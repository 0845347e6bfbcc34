package model

import "strings"

// DefaultView is the view served to clients without a matching region.
const DefaultView = "default"

const (
	ProtocolTCP   = "tcp"
	ProtocolHTTP  = "http"
	ProtocolHTTPS = "https"

	DefaultPort = 80
	DefaultPath = "/"
)

// Target is a single endpoint behind a record.
type Target struct {
	Address  string `json:"address" yaml:"address"`
	Protocol string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
	Weight   int    `json:"weight,omitempty" yaml:"weight,omitempty"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
}

// ProbeProtocol returns the lowercased protocol, http when unset.
func (t Target) ProbeProtocol() string {
	if t.Protocol == "" {
		return ProtocolHTTP
	}
	return strings.ToLower(t.Protocol)
}

func (t Target) ProbePort() int {
	if t.Port <= 0 {
		return DefaultPort
	}
	return t.Port
}

func (t Target) ProbePath() string {
	if t.Path == "" {
		return DefaultPath
	}
	if !strings.HasPrefix(t.Path, "/") {
		return "/" + t.Path
	}
	return t.Path
}

// Replicas is the number of times the target is repeated in a view.
func (t Target) Replicas() int {
	if t.Weight <= 0 {
		return 1
	}
	return t.Weight
}

// Region returns the uppercased location, empty for default targets.
func (t Target) Region() string {
	return strings.ToUpper(t.Location)
}

func (t Target) IsDefault() bool {
	return t.Location == ""
}

// Record is a DNS name and the targets that may answer for it.
type Record struct {
	Name    string   `json:"name" yaml:"name"`
	Targets []Target `json:"targets,omitempty" yaml:"targets,omitempty"`
}

// DomainConfig is everything the controller knows about one zone.
type DomainConfig struct {
	Domain      string
	Nameservers []string
	Records     []Record
}

// HealthyRecordMap maps record names to the targets that passed their probe.
// Names and targets keep insertion order.
type HealthyRecordMap struct {
	names   []string
	targets map[string][]Target
}

func NewHealthyRecordMap() *HealthyRecordMap {
	return &HealthyRecordMap{targets: make(map[string][]Target)}
}

// Declare registers a record name with no healthy targets yet.
func (m *HealthyRecordMap) Declare(name string) {
	if _, ok := m.targets[name]; ok {
		return
	}
	m.names = append(m.names, name)
	m.targets[name] = nil
}

func (m *HealthyRecordMap) Add(name string, t Target) {
	m.Declare(name)
	m.targets[name] = append(m.targets[name], t)
}

func (m *HealthyRecordMap) Names() []string {
	return m.names
}

func (m *HealthyRecordMap) Targets(name string) []Target {
	return m.targets[name]
}

func (m *HealthyRecordMap) Len() int {
	return len(m.names)
}

// ZoneView maps record names to the targets published for them.
type ZoneView map[string][]Target

// Views maps a view key (DefaultView or a region code) to its records.
type Views map[string]ZoneView

// DomainMeta maps a domain to its active non-default regions.
type DomainMeta map[string][]string
