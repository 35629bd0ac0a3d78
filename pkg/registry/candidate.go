package registry

import (
	"maps"
	"path"

	"github.com/agentstation/utc"

	"github.com/agentstation/apicorpus/pkg/document"
)

// Key identifies one tracked document. Service is empty for providers that
// publish a single API.
type Key struct {
	Provider string `yaml:"provider" json:"provider"`
	Service  string `yaml:"service,omitempty" json:"service,omitempty"`
	Version  string `yaml:"version" json:"version"`
}

// String renders the key as provider[:service]/version.
func (k Key) String() string {
	if k.Service == "" {
		return k.Provider + "/" + k.Version
	}
	return k.Provider + ":" + k.Service + "/" + k.Version
}

// Dir returns the slash-separated directory of the key relative to the corpus root.
func (k Key) Dir() string {
	if k.Service == "" {
		return path.Join(k.Provider, k.Version)
	}
	return path.Join(k.Provider, k.Service, k.Version)
}

// Origin is one entry in a candidate's append-only location history.
type Origin struct {
	URL     string `yaml:"url" json:"url"`
	Format  string `yaml:"format,omitempty" json:"format,omitempty"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
}

// Candidate is the durable metadata of one (provider, service, version).
type Candidate struct {
	Source        string          `yaml:"source" json:"source"`
	Filename      string          `yaml:"filename" json:"filename"`
	Format        document.Family `yaml:"format" json:"format"`
	FormatVersion string          `yaml:"format_version,omitempty" json:"format_version,omitempty"`
	Fingerprint   string          `yaml:"fingerprint,omitempty" json:"fingerprint,omitempty"`
	Added         utc.Time        `yaml:"added" json:"added"`
	Updated       utc.Time        `yaml:"updated" json:"updated"`
	History       []Origin        `yaml:"history,omitempty" json:"history,omitempty"`
	Patch         map[string]any  `yaml:"patch,omitempty" json:"patch,omitempty"`
	Preferred     bool            `yaml:"preferred,omitempty" json:"preferred,omitempty"`

	// AutoUpgraded records that the source only validates after lax patching.
	AutoUpgraded bool `yaml:"auto_upgraded,omitempty" json:"auto_upgraded,omitempty"`

	// Last fetch outcome.
	Status    *int   `yaml:"status,omitempty" json:"status,omitempty"`
	MediaType string `yaml:"media_type,omitempty" json:"media_type,omitempty"`

	Endpoints int `yaml:"endpoints" json:"endpoints"`
}

// Clone returns a deep copy so callers never share slices or maps with the registry.
func (c Candidate) Clone() Candidate {
	out := c
	if c.History != nil {
		out.History = append([]Origin(nil), c.History...)
	}
	if c.Patch != nil {
		out.Patch = document.Plain(c.Patch).(map[string]any)
	}
	if c.Status != nil {
		status := *c.Status
		out.Status = &status
	}
	return out
}

// LastOrigin returns the most recent history entry.
func (c Candidate) LastOrigin() (Origin, bool) {
	if len(c.History) == 0 {
		return Origin{}, false
	}
	return c.History[len(c.History)-1], true
}

// Provider is the registry entry of one API provider.
type Provider struct {
	Driver   string                          `yaml:"driver" json:"driver"`
	Services map[string]map[string]Candidate `yaml:"services" json:"services"`
}

func (p Provider) clone() Provider {
	out := Provider{Driver: p.Driver, Services: make(map[string]map[string]Candidate, len(p.Services))}
	for name, versions := range p.Services {
		vs := make(map[string]Candidate, len(versions))
		for v, c := range versions {
			vs[v] = c.Clone()
		}
		out.Services[name] = vs
	}
	return out
}

// shallow copies the service map and the version map of one service, so the
// returned version map can be mutated without touching published state.
func (p Provider) shallow(service string) (Provider, map[string]Candidate) {
	out := Provider{Driver: p.Driver, Services: maps.Clone(p.Services)}
	if out.Services == nil {
		out.Services = make(map[string]map[string]Candidate)
	}
	versions := maps.Clone(out.Services[service])
	if versions == nil {
		versions = make(map[string]Candidate)
	}
	out.Services[service] = versions
	return out, versions
}
