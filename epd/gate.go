// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"context"
	"sync"
)

// gate is a single owner lock that can be tried without blocking and waited
// on with a context.
type gate struct {
	ch chan struct{}

	mu    sync.Mutex
	owner string
}

func newGate() *gate {
	return &gate{ch: make(chan struct{}, 1)}
}

func (g *gate) tryLock(op string) bool {
	select {
	case g.ch <- struct{}{}:
		g.setOwner(op)
		return true
	default:
		return false
	}
}

func (g *gate) lock(ctx context.Context, op string) error {
	select {
	case g.ch <- struct{}{}:
		g.setOwner(op)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) unlock() {
	g.setOwner("")
	select {
	case <-g.ch:
	default:
		panic("epd: unlock of unlocked gate")
	}
}

func (g *gate) holder() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owner
}

func (g *gate) setOwner(op string) {
	g.mu.Lock()
	g.owner = op
	g.mu.Unlock()
}
