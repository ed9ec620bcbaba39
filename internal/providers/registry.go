// Package providers holds the static table of upstream provider profiles.
package providers

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"chatgateway/config"
	"chatgateway/internal/core"
)

// Registry maps provider ids to immutable profiles. It is built once and
// only read afterwards, so lookups need no locking.
type Registry struct {
	profiles map[string]*core.ProviderProfile
	ordered  []*core.ProviderProfile
}

// NewRegistry merges the built-in providers with configured overrides.
// Entries not among the built-ins must name a shape and a base URL.
func NewRegistry(configured map[string]config.ProviderConfig) (*Registry, error) {
	profiles := make(map[string]*core.ProviderProfile, len(builtinProviders)+len(configured))

	for _, b := range builtinProviders {
		profiles[b.id] = &core.ProviderProfile{
			ID:           b.id,
			Name:         b.name,
			BaseURL:      b.baseURL,
			DefaultModel: b.defaultModel,
			Shape:        b.shape,
			HeaderMode:   headerModeFor[b.shape],
			Models:       b.models,
		}
	}

	for id, pc := range configured {
		p, exists := profiles[id]
		if !exists {
			p = &core.ProviderProfile{ID: id, Name: id}
		}
		if err := applyConfig(p, pc); err != nil {
			return nil, fmt.Errorf("provider %q: %w", id, err)
		}
		if p.BaseURL == "" {
			return nil, fmt.Errorf("provider %q: base_url is required", id)
		}
		profiles[id] = p
	}

	return newRegistry(profiles), nil
}

// NewRegistryFromProfiles builds a registry from ready-made profiles.
func NewRegistryFromProfiles(profiles ...core.ProviderProfile) *Registry {
	m := make(map[string]*core.ProviderProfile, len(profiles))
	for i := range profiles {
		p := profiles[i]
		p.Models = slices.Clone(p.Models)
		if p.HeaderMode == "" {
			p.HeaderMode = headerModeFor[p.Shape]
		}
		m[p.ID] = &p
	}
	return newRegistry(m)
}

func newRegistry(profiles map[string]*core.ProviderProfile) *Registry {
	ordered := make([]*core.ProviderProfile, 0, len(profiles))
	for _, p := range profiles {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	return &Registry{profiles: profiles, ordered: ordered}
}

func applyConfig(p *core.ProviderProfile, pc config.ProviderConfig) error {
	if pc.Name != "" {
		p.Name = pc.Name
	}
	if pc.Shape != "" {
		shape := core.Shape(strings.ToLower(pc.Shape))
		mode, ok := headerModeFor[shape]
		if !ok {
			return fmt.Errorf("unsupported shape %q (valid: openai, anthropic)", pc.Shape)
		}
		p.Shape = shape
		p.HeaderMode = mode
	}
	if p.Shape == "" {
		p.Shape = core.ShapeOpenAI
		p.HeaderMode = core.HeaderModeBearer
	}
	if pc.BaseURL != "" {
		p.BaseURL = strings.TrimRight(pc.BaseURL, "/")
	}
	if pc.APIKey != "" {
		p.APIKey = pc.APIKey
	}
	if pc.DefaultModel != "" {
		p.DefaultModel = pc.DefaultModel
	}
	if len(pc.Models) > 0 {
		models := make([]core.ModelInfo, 0, len(pc.Models))
		for _, m := range pc.Models {
			name := m.Name
			if name == "" {
				name = m.ID
			}
			models = append(models, core.ModelInfo{ID: m.ID, Name: name, ContextWindow: m.Context})
		}
		p.Models = models
	}
	return nil
}

// Resolve returns a copy of the profile registered under id.
func (r *Registry) Resolve(id string) (*core.ProviderProfile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return nil, core.NewUnknownProviderError(id)
	}
	return cloneProfile(p), nil
}

// ListProviders returns copies of every profile, ordered by id.
func (r *Registry) ListProviders() []*core.ProviderProfile {
	out := make([]*core.ProviderProfile, len(r.ordered))
	for i, p := range r.ordered {
		out[i] = cloneProfile(p)
	}
	return out
}

func cloneProfile(p *core.ProviderProfile) *core.ProviderProfile {
	c := *p
	c.Models = slices.Clone(p.Models)
	return &c
}

// ListModels returns the catalogue of a provider. Unknown providers and
// providers without a catalogue yield an empty list.
func (r *Registry) ListModels(id string) []core.ModelInfo {
	p, ok := r.profiles[id]
	if !ok || len(p.Models) == 0 {
		return []core.ModelInfo{}
	}
	out := make([]core.ModelInfo, len(p.Models))
	copy(out, p.Models)
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	return len(r.ordered)
}
