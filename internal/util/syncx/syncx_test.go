// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package syncx

import (
	"errors"
	"sync"
	"testing"

	"go.solispartners.kz/bot/internal/testutil"
)

func TestProtected(t *testing.T) {
	t.Parallel()

	t.Run("read access", func(t *testing.T) {
		p := Protect(42)
		var result int
		p.RAccess(func(val int) {
			result = val
		})
		testutil.AssertEqual(t, result, 42)
	})

	t.Run("write access", func(t *testing.T) {
		var i int
		p := Protect(&i)
		p.Access(func(val *int) {
			*val = 43
		})
		var result int
		p.RAccess(func(val *int) { result = *val })
		testutil.AssertEqual(t, result, 43)
	})

	t.Run("concurrent access", func(t *testing.T) {
		var i int
		p := Protect(&i)
		var wg sync.WaitGroup
		for range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.Access(func(val *int) {
					*val += 1
				})
			}()
		}
		wg.Wait()

		var result int
		p.RAccess(func(val *int) { result = *val })
		testutil.AssertEqual(t, result, 100)
	})
}

func TestLazy(t *testing.T) {
	t.Parallel()

	var l Lazy[int]
	var count int
	var mu sync.Mutex

	f := func() int {
		mu.Lock()
		defer mu.Unlock()
		count++
		return count
	}

	v1 := l.Get(f)
	testutil.AssertEqual(t, v1, 1)

	v2 := l.Get(f)
	testutil.AssertEqual(t, v2, 1)

	testutil.AssertEqual(t, count, 1)

	var l2 Lazy[string]

	f2 := func() (string, error) {
		return "", errors.New("something went wrong")
	}

	ev1, err := l2.GetErr(f2)
	testutil.AssertEqual(t, ev1, "")
	if err == nil {
		t.Fatal("err must not be nil")
	}

	ev2, err := l2.GetErr(f2)
	testutil.AssertEqual(t, ev2, "")
	if err == nil {
		t.Fatal("err must not be nil")
	}
}

func TestMap(t *testing.T) {
	t.Parallel()

	var m Map[string, int]

	m.Store("a", 1)
	m.Store("b", 2)

	v, ok := m.Load("a")
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, v, 1)

	_, ok = m.Load("c")
	testutil.AssertEqual(t, ok, false)

	m.Delete("a")
	_, ok = m.Load("a")
	testutil.AssertEqual(t, ok, false)

	var keys []string
	m.Range(func(k string, _ int) bool {
		keys = append(keys, k)
		return true
	})
	testutil.AssertEqual(t, keys, []string{"b"})
}

func TestLimitedWaitGroup(t *testing.T) {
	t.Parallel()

	lwg := NewLimitedWaitGroup(5)

	var mu sync.Mutex
	var active, peak int

	for range 20 {
		lwg.Add(1)
		go func() {
			defer lwg.Done()
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	lwg.Wait()

	if peak > 5 {
		t.Fatalf("more than 5 goroutines ran concurrently: %d", peak)
	}
}
