// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package syncx has typed wrappers around the sync package.
package syncx

import "sync"

// Map is a [sync.Map] with typed keys and values. The zero value is empty and
// ready to use.
type Map[K comparable, V any] struct{ m sync.Map }

// Load returns the value stored under key, if any.
func (m *Map[K, V]) Load(key K) (value V, ok bool) {
	v, ok := m.m.Load(key)
	if !ok {
		return value, false
	}
	return v.(V), true
}

// Store sets the value under key.
func (m *Map[K, V]) Store(key K, value V) { m.m.Store(key, value) }

// Delete removes key.
func (m *Map[K, V]) Delete(key K) { m.m.Delete(key) }

// Range calls f for each entry until f returns false. It does not block
// other methods, so f may call Delete.
func (m *Map[K, V]) Range(f func(key K, value V) bool) {
	m.m.Range(func(k, v any) bool { return f(k.(K), v.(V)) })
}
