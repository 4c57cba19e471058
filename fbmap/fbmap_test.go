// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fbmap

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	p, err := New(3*4096 + 10)
	require.NoError(t, err)
	defer p.Close()

	assert.Len(t, p.Bytes(), 3*4096+10)
	assert.Greater(t, p.PageSize(), 0)
	for _, b := range p.Bytes() {
		if b != 0 {
			t.Fatal("memory is not zeroed")
		}
	}

	_, err = New(0)
	assert.Error(t, err)
}

func TestWrapFault(t *testing.T) {
	mem := make([]byte, 10000)
	p, err := Wrap(mem)
	require.NoError(t, err)
	ps := p.PageSize()

	m, err := p.Map(0, len(mem))
	require.NoError(t, err)
	assert.Equal(t, 1, p.Mappings())

	pg, err := m.Fault(0)
	require.NoError(t, err)
	assert.Equal(t, 0, pg.Index)
	assert.Equal(t, 1, pg.Refs())

	last, err := m.Fault(len(mem) - 1)
	require.NoError(t, err)
	assert.Equal(t, (len(mem)-1)/ps, last.Index)
	assert.Len(t, last.Data, len(mem)-last.Index*ps)

	again, err := m.Fault(1)
	require.NoError(t, err)
	assert.Same(t, pg, again)
	assert.Equal(t, 2, pg.Refs())

	p.Put(pg)
	p.Put(again)
	assert.Equal(t, 0, pg.Refs())
	assert.Panics(t, func() { p.Put(pg) })

	_, err = m.Fault(len(mem))
	assert.True(t, errors.Is(err, ErrNoPage))
	_, err = m.Fault(-1)
	assert.True(t, errors.Is(err, ErrNoPage))

	// The memory is shared.
	m.Bytes()[5] = 0x42
	assert.Equal(t, byte(0x42), mem[5])

	m.Unmap()
	m.Unmap()
	assert.Equal(t, 0, p.Mappings())
	require.NoError(t, p.Close())
}

func TestMapOffset(t *testing.T) {
	p, err := Wrap(make([]byte, 4*4096))
	require.NoError(t, err)
	ps := p.PageSize()
	if ps > 4096 {
		t.Skipf("page size %d too large for this test", ps)
	}

	m, err := p.Map(ps+100, 200)
	require.NoError(t, err)
	assert.Equal(t, 200, m.Len())
	pg, err := m.Fault(0)
	require.NoError(t, err)
	assert.Equal(t, 1, pg.Index)
	p.Put(pg)

	for _, tc := range []struct{ off, n int }{
		{-1, 10},
		{0, 0},
		{4 * 4096, 1},
		{4*4096 - 10, 11},
	} {
		_, err := p.Map(tc.off, tc.n)
		assert.Error(t, err, "Map(%d, %d)", tc.off, tc.n)
	}
}

func TestConcurrentFaults(t *testing.T) {
	p, err := New(8192)
	require.NoError(t, err)
	defer p.Close()

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			m, err := p.Map(0, 8192)
			if err != nil {
				t.Error(err)
				return
			}
			defer m.Unmap()
			for j := 0; j < 100; j++ {
				pg, err := m.Fault(j * 80)
				if err != nil {
					t.Error(err)
					return
				}
				p.Put(pg)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, p.Mappings())
	pg, err := mustMap(t, p).Fault(0)
	require.NoError(t, err)
	assert.Equal(t, 1, pg.Refs())
}

func TestClose(t *testing.T) {
	p, err := New(100)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	_, err = p.Map(0, 1)
	assert.Error(t, err)
}

func mustMap(t *testing.T, p *Pages) *Mapping {
	m, err := p.Map(0, len(p.Bytes()))
	require.NoError(t, err)
	return m
}
