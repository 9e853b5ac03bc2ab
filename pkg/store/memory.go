package store

import (
	"context"
	"sort"
	"sync"

	"github.com/apollo/canaria/pkg/canary"
)

// Memory is an in-memory Store for tests and single-process setups.
type Memory struct {
	mu          sync.RWMutex
	deployments map[string]*canary.Deployment
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{deployments: make(map[string]*canary.Deployment)}
}

func (m *Memory) Create(_ context.Context, d *canary.Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deployments[d.ID]; ok {
		return ErrExists
	}
	if d.Version == 0 {
		d.Version = 1
	}
	m.deployments[d.ID] = d.DeepCopy()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*canary.Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deployments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.DeepCopy(), nil
}

func (m *Memory) Update(_ context.Context, d *canary.Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.deployments[d.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != d.Version {
		return ErrConflict
	}
	d.Version++
	m.deployments[d.ID] = d.DeepCopy()
	return nil
}

func (m *Memory) List(_ context.Context) ([]*canary.Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*canary.Deployment, 0, len(m.deployments))
	for _, d := range m.deployments {
		out = append(out, d.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deployments[id]; !ok {
		return ErrNotFound
	}
	delete(m.deployments, id)
	return nil
}
