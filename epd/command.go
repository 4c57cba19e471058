// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package epd

import (
	"context"
	"fmt"
)

// Cmd is a command code accepted by Dev.Command.
type Cmd int

// Commands and the type of their argument.
const (
	CmdUpdateDisplay     Cmd = iota // Effect
	CmdUpdateArea                   // *UpdateArea
	CmdRestoreDisplay               // Effect
	CmdSetOrientation               // Orientation
	CmdGetOrientation               // *Orientation
	CmdSetRebootBehavior            // RebootBehavior
	CmdGetRebootBehavior            // *RebootBehavior
	CmdSetPowerLevel                // PowerLevel
	CmdGetPowerLevel                // *PowerLevel
	CmdPowerOverride                // bool
	CmdClearScreen                  // nil
	CmdSplashScreen                 // hook defined
	CmdProgressBar                  // hook defined
)

var cmdNames = [...]string{
	"update-display",
	"update-area",
	"restore-display",
	"set-orientation",
	"get-orientation",
	"set-reboot-behavior",
	"get-reboot-behavior",
	"set-power-level",
	"get-power-level",
	"power-override",
	"clear-screen",
	"splash-screen",
	"progress-bar",
}

func (c Cmd) String() string {
	if c < 0 || int(c) >= len(cmdNames) {
		return fmt.Sprintf("Cmd(%d)", int(c))
	}
	return cmdNames[c]
}

// Command runs cmd with its argument through the hook chain.
//
// The hook sees the command before anything else happens and may satisfy it
// on its own. Splash screen and progress bar commands are only implemented
// by hooks.
func (d *Dev) Command(ctx context.Context, cmd Cmd, arg interface{}) error {
	return d.runCommand(ctx, cmd, arg, func() error {
		return d.dispatch(ctx, cmd, arg)
	})
}

func (d *Dev) runCommand(ctx context.Context, cmd Cmd, arg interface{}, run func() error) error {
	if d.callHook(ctx, HookBefore, cmd, arg) {
		return nil
	}
	err := run()
	if d.callHook(ctx, HookAfter, cmd, arg) {
		return nil
	}
	return err
}

func (d *Dev) dispatch(ctx context.Context, cmd Cmd, arg interface{}) error {
	bad := func() error {
		return fmt.Errorf("%w: %s does not take %T", ErrBadArgument, cmd, arg)
	}
	switch cmd {
	case CmdUpdateDisplay:
		e, ok := arg.(Effect)
		if !ok {
			return bad()
		}
		return d.updateDisplay(ctx, e)
	case CmdUpdateArea:
		a, ok := arg.(*UpdateArea)
		if !ok || a == nil {
			return bad()
		}
		return d.updateArea(ctx, a, nil)
	case CmdRestoreDisplay:
		e, ok := arg.(Effect)
		if !ok {
			return bad()
		}
		return d.restore(ctx, e)
	case CmdSetOrientation:
		o, ok := arg.(Orientation)
		if !ok {
			return bad()
		}
		return d.setOrientation(o)
	case CmdGetOrientation:
		o, ok := arg.(*Orientation)
		if !ok || o == nil {
			return bad()
		}
		*o = d.Orientation()
		return nil
	case CmdSetRebootBehavior:
		r, ok := arg.(RebootBehavior)
		if !ok || !r.valid() {
			return bad()
		}
		d.reboot.Store(int32(r))
		return nil
	case CmdGetRebootBehavior:
		r, ok := arg.(*RebootBehavior)
		if !ok || r == nil {
			return bad()
		}
		*r = d.RebootBehavior()
		return nil
	case CmdSetPowerLevel:
		l, ok := arg.(PowerLevel)
		if !ok {
			return bad()
		}
		return d.SetPowerLevel(l)
	case CmdGetPowerLevel:
		l, ok := arg.(*PowerLevel)
		if !ok || l == nil {
			return bad()
		}
		*l = d.PowerLevel()
		return nil
	case CmdPowerOverride:
		on, ok := arg.(bool)
		if !ok {
			return bad()
		}
		d.SetPowerOverride(on)
		return nil
	case CmdClearScreen:
		if arg != nil {
			return bad()
		}
		return d.clear(ctx)
	case CmdSplashScreen, CmdProgressBar:
		return fmt.Errorf("%w: %s needs a hook", ErrBadArgument, cmd)
	default:
		return fmt.Errorf("%w: unknown command %s", ErrBadArgument, cmd)
	}
}
