// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/GermanBionicSystems/epdhal/epd"
	"github.com/GermanBionicSystems/epdhal/epd/epdtest"
)

func newDev(t *testing.T, w, h int) (*epd.Dev, *epdtest.Controller) {
	c := &epdtest.Controller{}
	d, err := epd.New(c, &epd.Opts{Width: w, Height: h, SuspendAfter: -1})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	d.SetHook(newScreen(d, slog.New(slog.NewTextHandler(io.Discard, nil)), "epdhal"))
	return d, c
}

// black counts the black pixels of the mirror inside r.
func black(d *epd.Dev, r image.Rectangle) int {
	img := d.Mirror()
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.GrayAt(x, y).Y < 0x80 {
				n++
			}
		}
	}
	return n
}

func TestSplash(t *testing.T) {
	d, _ := newDev(t, 128, 64)
	if err := d.Command(context.Background(), epd.CmdSplashScreen, nil); err != nil {
		t.Fatal(err)
	}
	if black(d, d.Bounds()) == 0 {
		t.Fatal("expected text")
	}
}

func TestProgress(t *testing.T) {
	d, _ := newDev(t, 64, 32)
	ctx := context.Background()
	if err := d.Command(ctx, epd.CmdProgressBar, 50); err != nil {
		t.Fatal(err)
	}
	r := progressRect(d.Bounds())
	if got := black(d, image.Rect(r.Min.X+1, r.Min.Y+1, 31, r.Max.Y-1)); got != 30*(r.Dy()-2) {
		t.Fatalf("left half has %d black pixels", got)
	}
	if got := black(d, image.Rect(34, r.Min.Y+1, 62, r.Max.Y-1)); got != 0 {
		t.Fatalf("right half has %d black pixels", got)
	}
	if got := black(d, image.Rect(0, 0, 64, r.Min.Y)); got != 0 {
		t.Fatalf("bar overflowed: %d", got)
	}
	if err := d.Command(ctx, epd.CmdProgressBar, "half"); !errors.Is(err, epd.ErrBadArgument) {
		t.Fatal(err)
	}
}

func TestProgressRect(t *testing.T) {
	data := []struct {
		in, want image.Rectangle
	}{
		{image.Rect(0, 0, 64, 32), image.Rect(0, 28, 64, 32)},
		{image.Rect(0, 0, 16, 8), image.Rect(0, 6, 16, 8)},
		{image.Rect(0, 0, 16, 1), image.Rect(0, 0, 16, 1)},
	}
	for _, line := range data {
		if got := progressRect(line.in); got != line.want {
			t.Fatalf("progressRect(%v) = %v, want %v", line.in, got, line.want)
		}
	}
}

func TestServe(t *testing.T) {
	d, c := newDev(t, 16, 2)
	in := strings.NewReader(`
# comment
orientation landscape
reboot clear
power standby
override on
bogus
update
area 0 0 8 2 partial
status
`)
	out := bytes.Buffer{}
	if err := serve(context.Background(), d, in, &out); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	want := []string{
		"ok",
		"ok",
		"ok",
		"ok",
		`error: command "bogus" not supported`,
		"error: update with 0 arguments not valid",
		"ok",
		"",
		"ok",
	}
	if len(lines) == len(want) {
		if !strings.Contains(lines[7], " orientation=landscape reboot=clear ") || !strings.HasPrefix(lines[7], "power=") {
			t.Fatalf("unexpected status %q", lines[7])
		}
		lines[7] = ""
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if d.Orientation() != epd.Landscape {
		t.Fatal(d.Orientation())
	}
	if len(c.Ops()) == 0 {
		t.Fatal("expected controller traffic")
	}
}

func TestExecuteErrors(t *testing.T) {
	d, _ := newDev(t, 16, 2)
	ctx := context.Background()
	for _, line := range []string{
		"update sideways",
		"area 0 0 8",
		"area a 0 8 2 full",
		"progress lots",
		"power max",
		"override maybe",
		"orientation up",
		"reboot never",
		"clear now",
	} {
		if err := execute(ctx, d, line, io.Discard); err == nil {
			t.Fatalf("%q: expected error", line)
		}
	}
	out := bytes.Buffer{}
	if err := execute(ctx, d, "help", &out); err != nil || out.String() != controlHelp {
		t.Fatal(err)
	}
}

func TestServeCanceled(t *testing.T) {
	d, _ := newDev(t, 16, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := serve(ctx, d, strings.NewReader("status\n"), io.Discard); err != context.Canceled {
		t.Fatal(err)
	}
}
