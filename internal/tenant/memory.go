package tenant

import (
	"context"
	"sort"
	"sync"
)

// MemoryDirectory is an in-process Directory used for local runs and tests.
type MemoryDirectory struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
}

// NewMemoryDirectory creates a directory seeded with tenants
func NewMemoryDirectory(tenants ...*Tenant) *MemoryDirectory {
	d := &MemoryDirectory{tenants: make(map[string]*Tenant)}
	for _, t := range tenants {
		d.Put(t)
	}
	return d
}

// Put adds or replaces a tenant
func (d *MemoryDirectory) Put(t *Tenant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *t
	d.tenants[t.ID] = &cp
}

// Delete removes a tenant
func (d *MemoryDirectory) Delete(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tenants, id)
}

func (d *MemoryDirectory) GetTenant(_ context.Context, id string) (*Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

// ListTenants returns tenants ordered by ID
func (d *MemoryDirectory) ListTenants(_ context.Context, page, limit int) ([]*Tenant, error) {
	d.mu.RLock()
	ids := make([]string, 0, len(d.tenants))
	for id := range d.tenants {
		ids = append(ids, id)
	}
	d.mu.RUnlock()
	sort.Strings(ids)

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	start := (page - 1) * limit
	if start >= len(ids) {
		return []*Tenant{}, nil
	}
	end := start + limit
	if end > len(ids) {
		end = len(ids)
	}

	out := make([]*Tenant, 0, end-start)
	for _, id := range ids[start:end] {
		if t, err := d.GetTenant(context.Background(), id); err == nil {
			out = append(out, t)
		}
	}
	return out, nil
}
