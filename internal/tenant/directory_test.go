package tenant

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tenant), args.Error(1)
}

func (m *mockDirectory) ListTenants(ctx context.Context, page, limit int) ([]*Tenant, error) {
	args := m.Called(ctx, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Tenant), args.Error(1)
}

func seedTenants(n int) []*Tenant {
	out := make([]*Tenant, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &Tenant{ID: fmt.Sprintf("tenant-%03d", i), Status: StatusActive})
	}
	return out
}

// TestPurpose: Validates that Walk visits every tenant across pages and stops at the first short page.
// Scope: Unit Test
// Security: Complete tenant coverage for routing and monitoring scans
// Expected: 250 tenants with page size 100 are visited in 3 ListTenants calls.
// Test Case ID: TEN-01
func TestTenant_Walk_Pages(t *testing.T) {
	dir := NewMemoryDirectory(seedTenants(250)...)

	var seen []string
	err := Walk(context.Background(), dir, 100, func(t *Tenant) bool {
		seen = append(seen, t.ID)
		return true
	})
	require.NoError(t, err)
	assert.Len(t, seen, 250)
	assert.Equal(t, "tenant-000", seen[0])
	assert.Equal(t, "tenant-249", seen[249])
}

// TestPurpose: Validates that Walk stops requesting pages after a short page and when the callback stops it.
// Scope: Unit Test
// Security: Bounded directory load
// Expected: No request for page 2 after a short first page; early stop returns nil.
// Test Case ID: TEN-02
func TestTenant_Walk_StopsEarly(t *testing.T) {
	ctx := context.Background()
	dir := new(mockDirectory)
	dir.On("ListTenants", ctx, 1, 10).Return(seedTenants(3), nil).Once()

	count := 0
	require.NoError(t, Walk(ctx, dir, 10, func(*Tenant) bool { count++; return true }))
	assert.Equal(t, 3, count)
	dir.AssertExpectations(t)

	full := NewMemoryDirectory(seedTenants(20)...)
	count = 0
	require.NoError(t, Walk(ctx, full, 5, func(*Tenant) bool { count++; return count < 7 }))
	assert.Equal(t, 7, count)
}

// TestPurpose: Validates that directory failures surface from Walk.
// Scope: Unit Test
// Security: Error propagation
// Expected: The ListTenants error is returned unchanged.
// Test Case ID: TEN-03
func TestTenant_Walk_PropagatesErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("directory unavailable")
	dir := new(mockDirectory)
	dir.On("ListTenants", ctx, 1, DefaultPageSize).Return(nil, boom)

	err := Walk(ctx, dir, 0, func(*Tenant) bool { return true })
	assert.ErrorIs(t, err, boom)
}

func TestMemoryDirectory_GetTenant(t *testing.T) {
	dir := NewMemoryDirectory(&Tenant{ID: "t1", Status: StatusSuspended})
	ctx := context.Background()

	got, err := dir.GetTenant(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, got.IsActive())

	got.Status = StatusActive
	again, _ := dir.GetTenant(ctx, "t1")
	assert.Equal(t, StatusSuspended, again.Status, "returned tenants are copies")

	_, err = dir.GetTenant(ctx, "missing")
	assert.ErrorIs(t, err, ErrTenantNotFound)

	dir.Delete("t1")
	_, err = dir.GetTenant(ctx, "t1")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestMemoryDirectory_ListBeyondEnd(t *testing.T) {
	dir := NewMemoryDirectory(seedTenants(3)...)
	page, err := dir.ListTenants(context.Background(), 5, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestTenant_Status(t *testing.T) {
	assert.True(t, (&Tenant{Status: StatusActive}).IsActive())
	assert.False(t, (&Tenant{Status: StatusSuspended}).IsActive())
	assert.False(t, (*Tenant)(nil).IsActive())

	assert.True(t, ValidStatus(StatusCancelled))
	assert.False(t, ValidStatus("inactive"))
}
