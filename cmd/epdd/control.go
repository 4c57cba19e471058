// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"io"
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/GermanBionicSystems/epdhal/epd"
)

const controlHelp = `commands:
  update EFFECT             refresh the whole panel
  restore EFFECT            redraw the image last sent
  area X0 Y0 X1 Y1 EFFECT   refresh a rectangle
  clear                     clear the panel to white
  splash                    draw the splash screen
  progress PERCENT          draw the progress bar
  power LEVEL               set the power level
  override on|off           force the power level
  orientation ORIENTATION   set the orientation
  reboot BEHAVIOR           set what is left on the panel on exit
  readback                  read the controller RAM back
  status                    print the state and counters
`

// serve runs the commands read from r, one per line, and writes the replies
// to w until r is exhausted or ctx is canceled.
func serve(ctx context.Context, d *epd.Dev, r io.Reader, w io.Writer) error {
	s := bufio.NewScanner(r)
	for s.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := execute(ctx, d, line, w); err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
		} else {
			fmt.Fprintln(w, "ok")
		}
	}
	return s.Err()
}

// execute runs a single command line.
func execute(ctx context.Context, d *epd.Dev, line string, w io.Writer) error {
	f := strings.Fields(line)
	args := f[1:]
	want := func(n int) error {
		if len(args) != n {
			return errors.NotValidf("%s with %d arguments", f[0], len(args))
		}
		return nil
	}
	switch f[0] {
	case "update", "restore":
		if err := want(1); err != nil {
			return err
		}
		var e epd.Effect
		if err := e.Set(args[0]); err != nil {
			return err
		}
		cmd := epd.CmdUpdateDisplay
		if f[0] == "restore" {
			cmd = epd.CmdRestoreDisplay
		}
		return d.Command(ctx, cmd, e)
	case "area":
		if err := want(5); err != nil {
			return err
		}
		var c [4]int
		for i := range c {
			v, err := strconv.Atoi(args[i])
			if err != nil {
				return errors.NewNotValid(err, "coordinate")
			}
			c[i] = v
		}
		a := &epd.UpdateArea{Rect: image.Rect(c[0], c[1], c[2], c[3])}
		if err := a.Effect.Set(args[4]); err != nil {
			return err
		}
		return d.Command(ctx, epd.CmdUpdateArea, a)
	case "clear", "splash":
		if err := want(0); err != nil {
			return err
		}
		cmd := epd.CmdClearScreen
		if f[0] == "splash" {
			cmd = epd.CmdSplashScreen
		}
		return d.Command(ctx, cmd, nil)
	case "progress":
		if err := want(1); err != nil {
			return err
		}
		pct, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.NewNotValid(err, "percentage")
		}
		return d.Command(ctx, epd.CmdProgressBar, pct)
	case "power":
		if err := want(1); err != nil {
			return err
		}
		var l epd.PowerLevel
		if err := l.Set(args[0]); err != nil {
			return err
		}
		return d.Command(ctx, epd.CmdSetPowerLevel, l)
	case "override":
		if err := want(1); err != nil {
			return err
		}
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return d.Command(ctx, epd.CmdPowerOverride, on)
	case "orientation":
		if err := want(1); err != nil {
			return err
		}
		var o epd.Orientation
		if err := o.Set(args[0]); err != nil {
			return err
		}
		return d.Command(ctx, epd.CmdSetOrientation, o)
	case "reboot":
		if err := want(1); err != nil {
			return err
		}
		var r epd.RebootBehavior
		if err := r.Set(args[0]); err != nil {
			return err
		}
		return d.Command(ctx, epd.CmdSetRebootBehavior, r)
	case "readback":
		if err := want(0); err != nil {
			return err
		}
		return d.ReadBack(ctx)
	case "status":
		if err := want(0); err != nil {
			return err
		}
		return status(ctx, d, w)
	case "help":
		_, err := io.WriteString(w, controlHelp)
		return err
	default:
		return errors.NotSupportedf("command %q", f[0])
	}
}

func status(ctx context.Context, d *epd.Dev, w io.Writer) error {
	var (
		l epd.PowerLevel
		o epd.Orientation
		r epd.RebootBehavior
	)
	for _, g := range []struct {
		cmd epd.Cmd
		arg interface{}
	}{
		{epd.CmdGetPowerLevel, &l},
		{epd.CmdGetOrientation, &o},
		{epd.CmdGetRebootBehavior, &r},
	} {
		if err := d.Command(ctx, g.cmd, g.arg); err != nil {
			return err
		}
	}
	s := d.Stats()
	_, err := fmt.Fprintf(w, "power=%s orientation=%s reboot=%s pio=%d dma=%d/%d refreshes=%d busy=%d dropped=%d\n",
		l, o, r, s.PIOBytes, s.DMABytes, s.DMATransfers, s.Refreshes, s.Busy, s.Dropped)
	return err
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, errors.NotValidf("%q, expected on or off", s)
	}
}
