// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package webview

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"net/textproto"
	"sort"
	"strconv"
)

// partWriter writes the parts of a multipart entity that never ends.
//
// mime/multipart.Writer only writes the closing boundary of a part when the
// next one starts, so a client would always be one image behind.
type partWriter struct {
	w        io.Writer
	boundary string
	started  bool
}

func newPartWriter(w io.Writer) *partWriter {
	var b [30]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		panic(err)
	}
	return &partWriter{w: w, boundary: fmt.Sprintf("%x", b[:])}
}

// writeFrame sends body as one part, followed by its closing boundary. It
// sets Content-Length in h.
func (p *partWriter) writeFrame(h textproto.MIMEHeader, body []byte) error {
	h.Set("Content-Length", strconv.Itoa(len(body)))
	var buf bytes.Buffer
	if !p.started {
		fmt.Fprintf(&buf, "--%s\r\n", p.boundary)
		p.started = true
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range h[k] {
			fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
		}
	}
	buf.WriteString("\r\n")
	buf.Write(body)
	fmt.Fprintf(&buf, "\r\n--%s\r\n", p.boundary)
	_, err := buf.WriteTo(p.w)
	return err
}
