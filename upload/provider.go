package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownSpec is returned for a specification name that is not provided.
var ErrUnknownSpec = errors.New("unknown upload spec")

// SpecProvider provides upload specifications by name.
type SpecProvider interface {
	// Names returns the provided names in ascending order.
	Names() []string
	Spec(ctx context.Context, name string) (*Spec, error)
}

// RegisteredSpecProvider is an in-memory SpecProvider.
type RegisteredSpecProvider struct {
	mu    sync.RWMutex
	specs map[string]*Spec
}

// NewRegisteredSpecProvider returns a provider of the given specs.
func NewRegisteredSpecProvider(specs ...*Spec) *RegisteredSpecProvider {
	p := &RegisteredSpecProvider{specs: make(map[string]*Spec, len(specs))}
	for _, s := range specs {
		p.Register(s)
	}
	return p
}

// Register adds s, replacing a spec of the same name.
func (p *RegisteredSpecProvider) Register(s *Spec) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.specs[s.Name] = s
}

func (p *RegisteredSpecProvider) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Sorted(maps.Keys(p.specs))
}

func (p *RegisteredSpecProvider) Spec(_ context.Context, name string) (*Spec, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSpec, name)
	}
	return s, nil
}

// FSSpecProvider loads specifications from the *.json files of a filesystem.
// A spec is named after its file without the extension. Files are found when
// the provider is created and parsed on every request, so that lookups over
// system value lists see the tenant of the request.
type FSSpecProvider struct {
	fsys  fs.FS
	comps Components
	paths map[string]string
}

// NewFSSpecProvider scans fsys for specification files. Two files with the
// same name in different directories are an error.
func NewFSSpecProvider(fsys fs.FS, comps Components) (*FSSpecProvider, error) {
	p := &FSSpecProvider{fsys: fsys, comps: comps, paths: make(map[string]string)}
	err := fs.WalkDir(fsys, ".", func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(d.Name()) != ".json" {
			return nil
		}
		name := strings.TrimSuffix(d.Name(), ".json")
		if other, exists := p.paths[name]; exists {
			return fmt.Errorf("spec %s is defined by both %s and %s", name, other, file)
		}
		p.paths[name] = file
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan upload specs: %w", err)
	}
	return p, nil
}

func (p *FSSpecProvider) Names() []string {
	return slices.Sorted(maps.Keys(p.paths))
}

func (p *FSSpecProvider) Spec(ctx context.Context, name string) (*Spec, error) {
	file, ok := p.paths[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSpec, name)
	}
	data, err := fs.ReadFile(p.fsys, file)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload spec %s: %w", name, err)
	}
	return Parse(ctx, name, data, p.comps)
}
