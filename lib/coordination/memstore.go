// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package coordination

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-memory Store for tests and single-node use.
type MemStore struct {
	mtx  sync.RWMutex
	data map[string]string
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: map[string]string{}}
}

func (s *MemStore) Put(ctx context.Context, path, value string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.data[path] = value
	return nil
}

func (s *MemStore) Get(ctx context.Context, path string) (string, bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	value, ok := s.data[path]
	return value, ok, nil
}

func (s *MemStore) Delete(ctx context.Context, path string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	delete(s.data, path)
	return nil
}

func (s *MemStore) DeleteTree(ctx context.Context, path string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for key := range s.data {
		if key == path || strings.HasPrefix(key, path+"/") {
			delete(s.data, key)
		}
	}
	return nil
}

func (s *MemStore) List(ctx context.Context, path string) ([]string, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	seen := map[string]bool{}
	var children []string
	prefix := path + "/"
	for key := range s.data {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		child := prefix + rest
		if !seen[child] {
			seen[child] = true
			children = append(children, child)
		}
	}
	sort.Strings(children)
	return children, nil
}
