// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"context"
	"fmt"
)

// HookPoint is a checkpoint of command dispatch where the hook is called.
type HookPoint int

// Hook checkpoints, in the order they are reached.
const (
	// HookBefore is reached before the command is interpreted. Returning true
	// means the hook satisfied the command; dispatch stops there.
	HookBefore HookPoint = iota
	// HookInSituBegin and HookInSituEnd surround each hardware bracket of the
	// command. The argument is the request as sent to the hardware.
	HookInSituBegin
	HookInSituEnd
	// HookAfter is reached once the command completed. Returning true turns a
	// failure into success.
	HookAfter
)

var hookPointNames = [...]string{"before", "in-situ-begin", "in-situ-end", "after"}

func (p HookPoint) String() string {
	if p < 0 || int(p) >= len(hookPointNames) {
		return fmt.Sprintf("HookPoint(%d)", int(p))
	}
	return hookPointNames[p]
}

// Hook observes, and may take over, commands sent to a Dev.
//
// A hook is called with the gate held at the in-situ checkpoints. It must not
// call back into the Dev from there.
type Hook interface {
	Hook(ctx context.Context, p HookPoint, cmd Cmd, arg interface{}) bool
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(ctx context.Context, p HookPoint, cmd Cmd, arg interface{}) bool

// Hook implements Hook.
func (f HookFunc) Hook(ctx context.Context, p HookPoint, cmd Cmd, arg interface{}) bool {
	return f(ctx, p, cmd, arg)
}

// SetHook installs h, replacing the previous hook. A nil h removes it.
func (d *Dev) SetHook(h Hook) {
	d.hookMu.Lock()
	d.hook = h
	d.hookMu.Unlock()
}

func (d *Dev) callHook(ctx context.Context, p HookPoint, cmd Cmd, arg interface{}) bool {
	d.hookMu.RLock()
	h := d.hook
	d.hookMu.RUnlock()
	if h == nil {
		return false
	}
	return h.Hook(ctx, p, cmd, arg)
}
