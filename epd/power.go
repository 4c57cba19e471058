// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// power is the power state machine. level and saved only change inside a
// gate bracket, or from SetPowerLevel while the gate is held by someone else,
// in which case the new level is applied to the hardware before the gate is
// released. The gate is never waited on with mu held.
type power struct {
	mu sync.Mutex
	// level is the logical level, hw the one last applied to the controller.
	level PowerLevel
	hw    PowerLevel
	saved PowerLevel
	onAt  time.Time

	timer   *time.Timer
	after   time.Duration
	suspend PowerLevel
	closed  bool

	override atomic.Bool
}

// Lock takes the gate for op without blocking and powers the panel on.
//
// It fails with ErrBusy when another operation holds the gate and with
// ErrPowerLocked when the panel is in a lockout level. Every successful Lock
// must be paired with Unlock.
func (d *Dev) Lock(op string) error {
	return d.acquire(context.Background(), op, false)
}

// LockWait is like Lock but waits for the gate until ctx is done.
func (d *Dev) LockWait(ctx context.Context, op string) error {
	return d.acquire(ctx, op, true)
}

// Unlock restores the power level in effect before Lock and releases the
// gate. The gate is released even when restoring the level fails.
func (d *Dev) Unlock(op string) error {
	return d.release(op)
}

func (d *Dev) acquire(ctx context.Context, op string, wait bool) error {
	if wait {
		if err := d.gate.lock(ctx, op); err != nil {
			return fmt.Errorf("epd: %s: %w", op, err)
		}
	} else if !d.gate.tryLock(op) {
		d.stats.busy.Add(1)
		holder := d.gate.holder()
		d.log.Debug("gate busy", "op", op, "holder", holder)
		return fmt.Errorf("epd: %s: %w (held by %q)", op, ErrBusy, holder)
	}
	if err := d.beginPower(ctx); err != nil {
		d.unlockGate()
		return fmt.Errorf("epd: %s: %w", op, err)
	}
	return nil
}

func (d *Dev) release(op string) error {
	err := d.endPower(context.Background())
	d.unlockGate()
	if err != nil {
		return fmt.Errorf("epd: %s: %w", op, err)
	}
	return nil
}

// unlockGate releases the gate. A level forced by SetPowerLevel while the
// gate was held and not yet applied is sent to the controller first.
func (d *Dev) unlockGate() {
	p := &d.power
	p.mu.Lock()
	defer p.mu.Unlock()
	if l := p.level; l != p.hw && !p.closed {
		if err := d.applyPowerLocked(context.Background(), l); err != nil {
			d.log.Error("forced power level failed", "level", l, "err", err)
			p.level = p.hw
		} else {
			p.saved = l
			if l == PowerOn || l == PowerStandby {
				d.armSuspendLocked()
			}
		}
	}
	d.gate.unlock()
}

// bracket runs fn with the gate held and the panel powered.
func (d *Dev) bracket(ctx context.Context, op string, fn func() error) (err error) {
	if err := d.acquire(ctx, op, false); err != nil {
		return err
	}
	defer func() {
		if rerr := d.release(op); err == nil {
			err = rerr
		}
	}()
	return fn()
}

func (d *Dev) beginPower(ctx context.Context) error {
	p := &d.power
	p.mu.Lock()
	defer p.mu.Unlock()
	saved := p.level
	if p.override.Load() {
		p.saved = saved
		return nil
	}
	arm := true
	switch saved {
	case PowerInit:
		saved = PowerOn
	case PowerOn, PowerStandby:
	case PowerBlank:
		arm = false
	default:
		return fmt.Errorf("%w (%s)", ErrPowerLocked, saved)
	}
	if err := d.applyPowerLocked(ctx, PowerOn); err != nil {
		return err
	}
	p.saved = saved
	if arm {
		d.armSuspendLocked()
	}
	return nil
}

func (d *Dev) endPower(ctx context.Context) error {
	p := &d.power
	p.mu.Lock()
	defer p.mu.Unlock()
	target := p.level
	if p.level == PowerOn {
		target = p.saved
	} else {
		p.saved = p.level
	}
	return d.applyPowerLocked(ctx, target)
}

// applyPowerLocked moves the controller to l if it is not there yet.
func (d *Dev) applyPowerLocked(ctx context.Context, l PowerLevel) error {
	p := &d.power
	if p.hw != l {
		if err := d.eng.setPower(ctx, l); err != nil {
			return fmt.Errorf("power %s: %w", l, err)
		}
		d.log.Debug("power", "from", p.hw, "to", l)
		p.hw = l
		if l == PowerOn {
			p.onAt = time.Now()
		}
	}
	p.level = l
	if l.Locked() && p.timer != nil {
		p.timer.Stop()
	}
	return nil
}

func (d *Dev) armSuspendLocked() {
	p := &d.power
	if p.closed || p.after <= 0 {
		return
	}
	if p.timer == nil {
		p.timer = time.AfterFunc(p.after, d.autoSuspend)
		return
	}
	p.timer.Reset(p.after)
}

// autoSuspend runs on the timer goroutine. A busy gate means the panel is in
// use; try again later.
func (d *Dev) autoSuspend() {
	p := &d.power
	if !d.gate.tryLock("auto suspend") {
		p.mu.Lock()
		d.armSuspendLocked()
		p.mu.Unlock()
		return
	}
	defer d.unlockGate()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.level != PowerOn || p.override.Load() {
		return
	}
	if err := d.applyPowerLocked(context.Background(), p.suspend); err != nil {
		d.log.Error("auto suspend failed", "err", err)
		return
	}
	p.saved = p.suspend
}

// SetPowerLevel forces the power level.
//
// When no operation is in progress the level is applied right away. Otherwise
// it is recorded and the operation leaves the panel at that level instead of
// restoring the one it started from.
func (d *Dev) SetPowerLevel(l PowerLevel) error {
	if !l.valid() || l == PowerInit {
		return fmt.Errorf("%w: power level %s", ErrBadArgument, l)
	}
	p := &d.power
	p.mu.Lock()
	if !d.gate.tryLock("set power level") {
		p.level = l
		p.mu.Unlock()
		d.log.Debug("power level forced during operation", "level", l, "holder", d.gate.holder())
		return nil
	}
	err := d.applyPowerLocked(context.Background(), l)
	if err == nil {
		p.saved = l
		if l == PowerOn || l == PowerStandby {
			d.armSuspendLocked()
		}
	}
	p.mu.Unlock()
	d.unlockGate()
	if err != nil {
		return fmt.Errorf("epd: %w", err)
	}
	return nil
}

// PowerLevel returns the current power level.
func (d *Dev) PowerLevel() PowerLevel {
	d.power.mu.Lock()
	defer d.power.mu.Unlock()
	return d.power.level
}

// PoweredOnAt returns when the panel was last moved to PowerOn.
func (d *Dev) PoweredOnAt() time.Time {
	d.power.mu.Lock()
	defer d.power.mu.Unlock()
	return d.power.onAt
}

// SetPowerOverride makes brackets skip every power transition when set.
func (d *Dev) SetPowerOverride(on bool) {
	d.power.override.Store(on)
}

func (d *Dev) stopPower() {
	p := &d.power
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
	}
}
