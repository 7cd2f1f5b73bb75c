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

package settings

import (
	"context"
	"sync"
)

type memoryKey struct {
	tenantID string
	category Category
}

// MemoryStore is an in-process Store used for local runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[memoryKey][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[memoryKey][]byte)}
}

// GetSettings returns a copy of the stored blob
func (s *MemoryStore) GetSettings(_ context.Context, tenantID string, category Category) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[memoryKey{tenantID, category}]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// UpdateSettings replaces the stored blob
func (s *MemoryStore) UpdateSettings(_ context.Context, tenantID string, category Category, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[memoryKey{tenantID, category}] = append([]byte(nil), value...)
	return nil
}

// DeleteSettings removes the stored blob
func (s *MemoryStore) DeleteSettings(_ context.Context, tenantID string, category Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, memoryKey{tenantID, category})
	return nil
}
