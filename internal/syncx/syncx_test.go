// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package syncx

import (
	"slices"
	"strconv"
	"sync"
	"testing"

	"go.astrophena.name/tgrelay/internal/testutil"
)

func TestMap(t *testing.T) {
	t.Parallel()

	var m Map[string, int]
	if _, ok := m.Load("a"); ok {
		t.Fatal("Load on an empty map reported ok")
	}
	m.Store("a", 1)
	m.Store("b", 2)
	m.Store("a", 3)
	v, ok := m.Load("a")
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, v, 3)

	m.Range(func(k string, _ int) bool {
		if k == "b" {
			m.Delete(k)
		}
		return true
	})

	var keys []string
	m.Range(func(k string, _ int) bool {
		keys = append(keys, k)
		return true
	})
	testutil.AssertEqual(t, keys, []string{"a"})
}

func TestMapConcurrent(t *testing.T) {
	t.Parallel()

	var (
		m  Map[string, int]
		wg sync.WaitGroup
	)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Store(strconv.Itoa(i), i)
			m.Load(strconv.Itoa(i))
		}()
	}
	wg.Wait()

	var keys []string
	m.Range(func(k string, _ int) bool {
		keys = append(keys, k)
		return true
	})
	testutil.AssertEqual(t, len(keys), 20)
	slices.Sort(keys)
	testutil.AssertEqual(t, keys[0], "0")
}
