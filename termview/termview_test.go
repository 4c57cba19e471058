// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package termview

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/maruel/ansi256"

	"github.com/GermanBionicSystems/epdhal/epd"
)

func TestNew(t *testing.T) {
	d := New(&Opts{})
	if s := d.String(); s != "TermView" {
		t.Fatal(s)
	}
	if d.cols != 80 {
		t.Fatal(d.cols)
	}
	if d.w == nil {
		t.Fatal("expected stdout")
	}
}

func TestScale(t *testing.T) {
	d := New(&Opts{Columns: 10, W: &bytes.Buffer{}})
	for _, line := range []struct{ w, want int }{{0, 1}, {5, 1}, {10, 1}, {11, 2}, {250, 25}} {
		if got := d.Scale(line.w); got != line.want {
			t.Fatalf("Scale(%d) = %d, want %d", line.w, got, line.want)
		}
	}
}

func TestRender(t *testing.T) {
	buf := bytes.Buffer{}
	d := New(&Opts{Columns: 2, W: &buf})
	img := image.NewGray(image.Rect(0, 0, 4, 3))
	// Left half black, right half white.
	for y := 0; y < 3; y++ {
		img.SetGray(2, y, color.Gray{Y: 0xFF})
		img.SetGray(3, y, color.Gray{Y: 0xFF})
	}
	if err := d.Render(img); err != nil {
		t.Fatal(err)
	}
	p := ansi256.Default
	black := p.Block(color.NRGBA{A: 0xFF})
	white := p.Block(color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF})
	want := "\033[H\033[0m" +
		black + white + "\033[0m\n" +
		black + white + "\033[0m\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestRenderAverage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.Pix = []byte{0x00, 0xFF, 0xFF, 0xFF}
	if got, want := average(img, img.Bounds()), (color.NRGBA{R: 0xBF, G: 0xBF, B: 0xBF, A: 0xFF}); got != want {
		t.Fatalf("%#v != %#v", got, want)
	}
	if got, want := average(img, image.Rectangle{}), (color.NRGBA{A: 0xFF}); got != want {
		t.Fatalf("%#v != %#v", got, want)
	}
}

func TestHalt(t *testing.T) {
	buf := bytes.Buffer{}
	d := New(&Opts{W: &buf})
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if s := buf.String(); s != "\033[0m\n" {
		t.Fatalf("%q", s)
	}
}

func TestFollow(t *testing.T) {
	buf := frameWriter{c: make(chan string, 10)}
	d := New(&Opts{Columns: 4, W: &buf})
	src := &fakeSource{events: make(chan epd.Event, 4), img: image.NewGray(image.Rect(0, 0, 4, 1))}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- d.Follow(ctx, src) }()

	waitFrame(t, buf.c)
	src.events <- epd.Event{Full: true}
	waitFrame(t, buf.c)
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatal(err)
	}
	if !src.canceled {
		t.Fatal("subscription not canceled")
	}
}

func TestFollowClosed(t *testing.T) {
	buf := frameWriter{c: make(chan string, 10)}
	d := New(&Opts{W: &buf})
	src := &fakeSource{events: make(chan epd.Event), img: image.NewGray(image.Rect(0, 0, 1, 1))}
	close(src.events)
	src.closed = true
	if err := d.Follow(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	if s := <-buf.c; !strings.HasPrefix(s, "\033[H") {
		t.Fatalf("%q", s)
	}
}

//

type fakeSource struct {
	events   chan epd.Event
	img      *image.Gray
	canceled bool
	closed   bool
}

func (f *fakeSource) Subscribe(n int) (<-chan epd.Event, func()) {
	return f.events, func() {
		f.canceled = true
		if !f.closed {
			f.closed = true
			close(f.events)
		}
	}
}

func (f *fakeSource) Mirror() *image.Gray {
	return f.img
}

// frameWriter forwards every write as one frame.
type frameWriter struct {
	c chan string
}

func (l *frameWriter) Write(b []byte) (int, error) {
	l.c <- string(b)
	return len(b), nil
}

func waitFrame(t *testing.T, c <-chan string) {
	select {
	case s := <-c:
		if !strings.HasPrefix(s, "\033[H\033[0m") {
			t.Fatalf("%q", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a frame")
	}
}
