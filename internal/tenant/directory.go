// Copyright 2026 The Whatsgate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tenant

import (
	"context"
	"errors"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
)

// DefaultPageSize is the page size used when walking the directory
const DefaultPageSize = 100

// Directory is the external service that owns tenant identity.
// Pages are 1-based; a page shorter than limit is the last one.
type Directory interface {
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	ListTenants(ctx context.Context, page, limit int) ([]*Tenant, error)
}

// Walk visits every tenant in the directory page by page until fn returns
// false or the directory is exhausted.
func Walk(ctx context.Context, dir Directory, pageSize int, fn func(*Tenant) bool) error {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tenants, err := dir.ListTenants(ctx, page, pageSize)
		if err != nil {
			return err
		}
		for _, t := range tenants {
			if !fn(t) {
				return nil
			}
		}
		if len(tenants) < pageSize {
			return nil
		}
	}
}
