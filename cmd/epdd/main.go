// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// epdd brings up an e-paper panel described by an HCL profile and accepts
// commands on stdin.
//
// Run "help" on its stdin to list the commands. Under systemd it reports
// readiness once the panel is initialized.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/epdhal/epd"
	"github.com/GermanBionicSystems/epdhal/epdconfig"
	"github.com/GermanBionicSystems/epdhal/termview"
	"github.com/GermanBionicSystems/epdhal/webview"
)

func mainImpl() error {
	config := flag.String("config", "epdd.hcl", "panel profile")
	backend := flag.String("backend", "", "override the profile backend: ssd1675, epdc or sim")
	verbose := flag.Bool("v", false, "log debug records")
	preview := flag.Bool("preview", false, "render the panel on the terminal")
	title := flag.String("title", "epdhal", "splash screen text")
	addr := flag.String("http", "", "serve the panel content as an image stream on this address")
	format := webview.PNG
	flag.Var(&format, "format", "image format of the stream: png or jpeg")
	reboot := epd.RebootAsIs
	flag.Var(&reboot, "reboot", "what to leave on the panel on exit: as-is, clear or splash")
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.Errorf("unexpected arguments: %v", flag.Args())
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := epdconfig.Read(*config)
	if err != nil {
		return err
	}
	if *backend != "" {
		cfg.Backend.Kind = *backend
	}
	opts, err := cfg.Opts()
	if err != nil {
		return err
	}
	opts.Logger = log
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "reboot" {
			opts.Reboot = reboot
		}
	})
	if cfg.Backend.Kind != epdconfig.KindSim {
		if _, err := host.Init(); err != nil {
			return errors.Annotate(err, "host")
		}
	}
	ops, closer, err := cfg.Open()
	if err != nil {
		return err
	}
	defer closer.Close()

	d, err := epd.New(ops, &opts)
	if err != nil {
		return err
	}
	defer d.Close()
	d.SetHook(newScreen(d, log, *title))
	log.Info("display up", "dev", d, "backend", cfg.Backend.Kind, "info", fmt.Sprintf("%+v", d.Info()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := d.Command(ctx, epd.CmdSplashScreen, nil); err != nil {
		log.Warn("splash", "err", err)
	}

	out := io.Writer(os.Stdout)
	if *preview {
		if isatty.IsTerminal(os.Stdout.Fd()) {
			// The preview owns the terminal.
			out = io.Discard
			go func() {
				if err := termview.New(&termview.Opts{}).Follow(ctx, d); err != nil && ctx.Err() == nil {
					log.Error("preview", "err", err)
				}
			}()
		} else {
			log.Warn("preview needs a terminal")
		}
	}

	if *addr != "" {
		wv := webview.New(d, &webview.Opts{Format: format, Logger: log})
		defer wv.Halt()
		go wv.Follow(ctx)
		srv := &http.Server{Addr: *addr, Handler: wv}
		go func() {
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				log.Error("http", "err", err)
			}
		}()
		defer srv.Close()
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("sd_notify", "err", err)
	}

	go func() {
		if err := serve(ctx, d, os.Stdin, out); err != nil {
			log.Error("control", "err", err)
		}
	}()
	<-ctx.Done()
	log.Info("stopping", "stats", fmt.Sprintf("%+v", d.Stats()))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	return d.Halt()
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "epdd: %s\n", errors.ErrorStack(err))
		os.Exit(1)
	}
}
