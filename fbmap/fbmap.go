// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fbmap manages framebuffer memory and hands it out page by page.
//
// A Mapping is a window over the framebuffer. Its pages are only looked up
// when touched, through Fault, and each page counts the holders that
// faulted it in.
package fbmap

import (
	"container/list"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// ErrNoPage is returned by Fault for an offset outside of the mapping.
var ErrNoPage = errors.New("fbmap: no page at offset")

// Pages is a framebuffer split into pages.
type Pages struct {
	mem      []byte
	owned    bool
	pageSize int

	once  sync.Once
	table []*Page

	mu     sync.Mutex
	maps   *list.List
	closed bool
}

// Page is one page of framebuffer memory.
type Page struct {
	Index int
	Data  []byte

	refs atomic.Int32
}

// Refs returns the number of faults not yet matched by Put.
func (pg *Page) Refs() int {
	return int(pg.refs.Load())
}

// New allocates size bytes of page aligned memory.
func New(size int) (*Pages, error) {
	if size <= 0 {
		return nil, fmt.Errorf("fbmap: invalid size %d", size)
	}
	mem, err := alloc(size)
	if err != nil {
		return nil, fmt.Errorf("fbmap: allocating %d bytes: %w", size, err)
	}
	return newPages(mem, true), nil
}

// Wrap uses mem, typically memory shared with a display controller. Close
// leaves it alone.
func Wrap(mem []byte) (*Pages, error) {
	if len(mem) == 0 {
		return nil, errors.New("fbmap: empty memory")
	}
	return newPages(mem, false), nil
}

func newPages(mem []byte, owned bool) *Pages {
	return &Pages{
		mem:      mem,
		owned:    owned,
		pageSize: os.Getpagesize(),
		maps:     list.New(),
	}
}

// Bytes returns the whole memory.
func (p *Pages) Bytes() []byte {
	return p.mem
}

// PageSize returns the size of a page in bytes. The last page may be shorter.
func (p *Pages) PageSize() int {
	return p.pageSize
}

// Map returns a mapping of n bytes starting at off.
func (p *Pages) Map(off, n int) (*Mapping, error) {
	if off < 0 || n <= 0 || off+n > len(p.mem) {
		return nil, fmt.Errorf("fbmap: cannot map [%d, %d) of %d bytes", off, off+n, len(p.mem))
	}
	p.once.Do(p.buildTable)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("fbmap: closed")
	}
	m := &Mapping{p: p, off: off, n: n}
	m.elem = p.maps.PushBack(m)
	return m, nil
}

func (p *Pages) buildTable() {
	n := (len(p.mem) + p.pageSize - 1) / p.pageSize
	p.table = make([]*Page, n)
	for i := range p.table {
		end := (i + 1) * p.pageSize
		if end > len(p.mem) {
			end = len(p.mem)
		}
		p.table[i] = &Page{Index: i, Data: p.mem[i*p.pageSize : end]}
	}
}

// Mappings returns the number of live mappings.
func (p *Pages) Mappings() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maps.Len()
}

// Put releases a page returned by Fault.
func (p *Pages) Put(pg *Page) {
	if pg.refs.Add(-1) < 0 {
		panic("fbmap: Put of a page that was not faulted in")
	}
}

// Close releases the memory allocated by New. Mappings must not be used
// afterward.
func (p *Pages) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.maps.Init()
	if !p.owned {
		return nil
	}
	mem := p.mem
	p.mem = nil
	return free(mem)
}

// Mapping is a window over Pages.
type Mapping struct {
	p    *Pages
	off  int
	n    int
	elem *list.Element
}

// Len returns the mapping length in bytes.
func (m *Mapping) Len() int {
	return m.n
}

// Bytes returns the mapped memory.
func (m *Mapping) Bytes() []byte {
	return m.p.mem[m.off : m.off+m.n]
}

// Fault returns the page holding byte off of the mapping and takes a
// reference on it.
func (m *Mapping) Fault(off int) (*Page, error) {
	if off < 0 || off >= m.n {
		return nil, fmt.Errorf("%w %d", ErrNoPage, off)
	}
	pg := m.p.table[(m.off+off)/m.p.pageSize]
	pg.refs.Add(1)
	return pg, nil
}

// Unmap removes the mapping. It is safe to call more than once.
func (m *Mapping) Unmap() {
	m.p.mu.Lock()
	defer m.p.mu.Unlock()
	if m.elem != nil {
		m.p.maps.Remove(m.elem)
		m.elem = nil
	}
}
