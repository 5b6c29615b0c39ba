package forecasting

import (
	"fmt"
	"sync"

	"DemandCast/internal/domain/service"
)

// Registry is the ordered set of candidate models. Order decides candidate
// order in results, so registration order matters.
type Registry struct {
	mu     sync.RWMutex
	models []service.Model
	byName map[string]service.Model
}

func NewRegistry(ms ...service.Model) (*Registry, error) {
	r := &Registry{byName: make(map[string]service.Model)}
	for _, m := range ms {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewDefaultRegistry registers the built-in models plus configured remote ones.
func NewDefaultRegistry(cfg Config) (*Registry, error) {
	ms := []service.Model{
		NaiveMean{},
		SES{},
		LinearTrend{MinSeasonalAutocorr: cfg.Conformance.MinSeasonalAutocorr},
		SeasonalDecomposition{},
		CategoryProfileModel{},
	}
	for _, rc := range cfg.Remote {
		ms = append(ms, NewRemoteModel(rc))
	}
	return NewRegistry(ms...)
}

// Register appends a model. Names must be unique.
func (r *Registry) Register(m service.Model) error {
	name := m.Spec().Name
	if name == "" {
		return fmt.Errorf("register model: empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("register model: %s already registered", name)
	}
	r.byName[name] = m
	r.models = append(r.models, m)
	return nil
}

func (r *Registry) Get(name string) (service.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byName[name]
	return m, ok
}

// Models returns registered models in order, limited to allow when non-empty.
func (r *Registry) Models(allow ...string) []service.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(allow) == 0 {
		return append([]service.Model(nil), r.models...)
	}
	keep := make(map[string]bool, len(allow))
	for _, n := range allow {
		keep[n] = true
	}
	out := make([]service.Model, 0, len(allow))
	for _, m := range r.models {
		if keep[m.Spec().Name] {
			out = append(out, m)
		}
	}
	return out
}

// Specs lists the specs of every registered model.
func (r *Registry) Specs() []service.ModelSpec {
	ms := r.Models()
	out := make([]service.ModelSpec, len(ms))
	for i, m := range ms {
		out[i] = m.Spec()
	}
	return out
}
