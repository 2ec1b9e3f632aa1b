package plugins

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrUnknownPlugin = errors.New("unknown plugin")
	ErrDuplicate     = errors.New("plugin already registered")
)

// Registry maps plugin names to factories. Plugins are registered explicitly at startup.
type Registry[F any] struct {
	kind      string
	mu        sync.RWMutex
	factories map[string]F
}

func NewRegistry[F any](kind string) *Registry[F] {
	return &Registry[F]{
		kind:      kind,
		factories: map[string]F{},
	}
}

func (r *Registry[F]) Register(name string, factory F) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return errors.Errorf("%s plugin name is empty", r.kind)
	}
	if _, ok := r.factories[name]; ok {
		return errors.Wrapf(ErrDuplicate, "%s plugin %q", r.kind, name)
	}
	r.factories[name] = factory
	return nil
}

func (r *Registry[F]) MustRegister(name string, factory F) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

func (r *Registry[F]) Get(name string) (F, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[name]
	if !ok {
		var zero F
		return zero, errors.Wrapf(ErrUnknownPlugin, "%s plugin %q", r.kind, name)
	}
	return f, nil
}

func (r *Registry[F]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ret := make([]string, 0, len(r.factories))
	for name := range r.factories {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}
