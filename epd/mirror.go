// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"image"
	"runtime"
	"sync"
	"sync/atomic"
)

// rowsPerYield is how many rows a mirror copy moves before yielding.
const rowsPerYield = 64

// Event is posted to subscribers after every mirror update.
type Event struct {
	// Area is the updated rectangle, the whole panel when Full is set.
	Area   image.Rectangle
	Effect Effect
	Full   bool
}

// mirror is the off-screen copy of the image last sent to the panel.
type mirror struct {
	mu        sync.Mutex
	buf       []byte
	transform func(byte) byte

	subMu sync.Mutex
	subs  map[int]chan Event
	next  int
	drops *atomic.Uint64
}

func newMirror(size int, drops *atomic.Uint64) *mirror {
	return &mirror{
		buf:   make([]byte, size),
		subs:  map[int]chan Event{},
		drops: drops,
	}
}

// updateArea copies the rectangle of a into the mirror, from a.Buffer or,
// when nil, from fb.
func (m *mirror) updateArea(info *DisplayInfo, fb []byte, a *UpdateArea) {
	stride := info.Stride()
	rowBytes := a.Rect.Dx() * info.BPP / 8
	xoff := a.Rect.Min.X * info.BPP / 8

	m.mu.Lock()
	for y := a.Rect.Min.Y; y < a.Rect.Max.Y; y++ {
		o := y*stride + xoff
		dst := m.buf[o : o+rowBytes]
		if a.Buffer != nil {
			i := (y - a.Rect.Min.Y) * rowBytes
			copy(dst, a.Buffer[i:i+rowBytes])
		} else {
			copy(dst, fb[o:o+rowBytes])
		}
		if (y-a.Rect.Min.Y)%rowsPerYield == rowsPerYield-1 {
			m.mu.Unlock()
			runtime.Gosched()
			m.mu.Lock()
		}
	}
	m.mu.Unlock()
	m.notify(Event{Area: a.Rect, Effect: a.Effect})
}

// updateFull copies the whole framebuffer into the mirror, through the
// transform when one is set. When restoring the copy goes the other way and
// the transform is not used.
func (m *mirror) updateFull(info *DisplayInfo, fb []byte, effect Effect, restore bool) {
	m.mu.Lock()
	switch {
	case restore:
		copy(fb, m.buf)
	case m.transform != nil:
		for i, b := range fb[:len(m.buf)] {
			m.buf[i] = m.transform(b)
		}
	default:
		copy(m.buf, fb)
	}
	m.mu.Unlock()
	m.notify(Event{Area: info.Bounds(), Effect: effect, Full: true})
}

func (m *mirror) setTransform(f func(byte) byte) {
	m.mu.Lock()
	m.transform = f
	m.mu.Unlock()
}

// snapshot converts the mirror to an 8 bit gray image.
func (m *mirror) snapshot(info *DisplayInfo) *image.Gray {
	img := image.NewGray(info.Bounds())
	stride := info.Stride()
	m.mu.Lock()
	defer m.mu.Unlock()
	for y := 0; y < info.Height; y++ {
		row := m.buf[y*stride : (y+1)*stride]
		out := img.Pix[y*img.Stride:]
		for x := 0; x < info.Width; x++ {
			out[x] = valueToGray(pixelAt(row, x, info.BPP), info.BPP)
		}
	}
	return img
}

func (m *mirror) subscribe(n int) (<-chan Event, func()) {
	ch := make(chan Event, n)
	m.subMu.Lock()
	id := m.next
	m.next++
	m.subs[id] = ch
	m.subMu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

// notify never blocks; a subscriber that is not keeping up loses events.
func (m *mirror) notify(ev Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.drops.Add(1)
		}
	}
}
