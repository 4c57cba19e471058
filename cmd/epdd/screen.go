// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"image"
	"image/color"
	"log/slog"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/GermanBionicSystems/epdhal/epd"
)

// screen draws the splash screen and the progress bar, the two commands epd
// leaves to a hook.
type screen struct {
	d     *epd.Dev
	log   *slog.Logger
	title string
	face  font.Face
}

func newScreen(d *epd.Dev, log *slog.Logger, title string) *screen {
	s := &screen{d: d, log: log, title: title}
	h := d.Bounds().Dy()
	f, err := truetype.Parse(goregular.TTF)
	if err != nil || h < 32 {
		// Small panels get the bitmap font.
		s.face = basicfont.Face7x13
	} else {
		s.face = truetype.NewFace(f, &truetype.Options{Size: float64(h) / 6})
	}
	return s
}

// Hook implements epd.Hook.
func (s *screen) Hook(ctx context.Context, p epd.HookPoint, cmd epd.Cmd, arg interface{}) bool {
	if p != epd.HookBefore {
		return false
	}
	var err error
	switch cmd {
	case epd.CmdSplashScreen:
		err = s.splash()
	case epd.CmdProgressBar:
		pct, ok := arg.(int)
		if !ok {
			return false
		}
		err = s.progress(pct)
	default:
		return false
	}
	if err != nil {
		s.log.Error("drawing failed", "cmd", cmd, "err", err)
		return false
	}
	return true
}

// splash draws the title centered on a white panel.
func (s *screen) splash() error {
	b := s.d.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.SetColor(color.White)
	dc.Clear()
	dc.SetColor(color.Black)
	dc.SetFontFace(s.face)
	dc.DrawStringAnchored(s.title, float64(b.Dx())/2, float64(b.Dy())/2, 0.5, 0.5)
	return s.d.Draw(b, dc.Image(), image.Point{})
}

// progress draws a bar filled to pct percent along the bottom of the panel.
func (s *screen) progress(pct int) error {
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}
	r := progressRect(s.d.Bounds())
	w, h := float64(r.Dx()), float64(r.Dy())
	dc := gg.NewContext(r.Dx(), r.Dy())
	dc.SetColor(color.White)
	dc.Clear()
	dc.SetColor(color.Black)
	dc.DrawRectangle(0, 0, w*float64(pct)/100, h)
	dc.Fill()
	dc.SetLineWidth(1)
	dc.DrawRectangle(0.5, 0.5, w-1, h-1)
	dc.Stroke()
	return s.d.Draw(r, dc.Image(), image.Point{})
}

// progressRect is the bottom eighth of b, at least 2 pixels high.
func progressRect(b image.Rectangle) image.Rectangle {
	h := b.Dy() / 8
	if h < 2 {
		h = 2
	}
	if h > b.Dy() {
		h = b.Dy()
	}
	return image.Rect(b.Min.X, b.Max.Y-h, b.Max.X, b.Max.Y)
}

var _ epd.Hook = &screen{}
