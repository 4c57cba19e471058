// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package termview previews the content of an e-paper panel on a terminal
// using ANSI 256 color codes.
//
// It renders the mirror of an epd.Dev, that is the image last sent to the
// panel, so it can be used with the simulated controller as a stand-in for
// the real glass.
package termview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"

	"github.com/GermanBionicSystems/epdhal/epd"
)

// Opts represents the options available for the preview.
type Opts struct {
	// Columns is the maximum number of terminal cells per row. Defaults to 80.
	Columns int
	// Palette defaults to ansi256.Default.
	Palette *ansi256.Palette
	// W defaults to a colorable stdout.
	W io.Writer

	_ struct{}
}

// Source is what Follow needs from a display.
type Source interface {
	Subscribe(n int) (<-chan epd.Event, func())
	Mirror() *image.Gray
}

// Dev writes gray images to a terminal.
type Dev struct {
	w       io.Writer
	cols    int
	palette ansi256.Palette

	buf bytes.Buffer
}

// New returns a Dev that renders at the console.
func New(opts *Opts) *Dev {
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.W
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	cols := opts.Columns
	if cols <= 0 {
		cols = 80
	}
	return &Dev{w: w, cols: cols, palette: *p}
}

func (d *Dev) String() string {
	return "TermView"
}

// Halt implements conn.Resource.
//
// It resets the terminal colors.
func (d *Dev) Halt() error {
	_, err := io.WriteString(d.w, "\033[0m\n")
	return err
}

// Scale returns how many pixels are averaged per terminal cell on each axis
// for an image of width w.
func (d *Dev) Scale(w int) int {
	s := (w + d.cols - 1) / d.cols
	if s < 1 {
		s = 1
	}
	return s
}

// Render writes img as one frame. The cursor is moved home first so
// consecutive frames overwrite each other.
func (d *Dev) Render(img *image.Gray) error {
	r := img.Bounds()
	s := d.Scale(r.Dx())
	d.buf.Reset()
	_, _ = d.buf.WriteString("\033[H\033[0m")
	for y := r.Min.Y; y < r.Max.Y; y += s {
		for x := r.Min.X; x < r.Max.X; x += s {
			_, _ = d.buf.WriteString(d.palette.Block(average(img, image.Rect(x, y, x+s, y+s).Intersect(r))))
		}
		_, _ = d.buf.WriteString("\033[0m\n")
	}
	_, err := d.buf.WriteTo(d.w)
	return err
}

// Follow renders src once, then again after every mirror update until ctx
// is canceled.
func (d *Dev) Follow(ctx context.Context, src Source) error {
	events, cancel := src.Subscribe(4)
	defer cancel()
	if err := d.Render(src.Mirror()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return nil
			}
			// Coalesce the updates that piled up while rendering.
			for n := len(events); n > 0; n-- {
				<-events
			}
			if err := d.Render(src.Mirror()); err != nil {
				return err
			}
		}
	}
}

// average returns the opaque mean gray of img over r.
func average(img *image.Gray, r image.Rectangle) color.NRGBA {
	sum, n := 0, 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		o := img.PixOffset(r.Min.X, y)
		for _, v := range img.Pix[o : o+r.Dx()] {
			sum += int(v)
			n++
		}
	}
	if n == 0 {
		return color.NRGBA{A: 0xFF}
	}
	y := uint8(sum / n)
	return color.NRGBA{R: y, G: y, B: y, A: 0xFF}
}

var _ fmt.Stringer = &Dev{}
