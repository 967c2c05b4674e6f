// Copyright 2024 The Pylon Authors
// This file is part of the Pylon library.
//
// The Pylon library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The Pylon library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the Pylon library. If not, see <http://www.gnu.org/licenses/>.

package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Format renders a Record as bytes for a StreamHandler.
type Format func(r *Record) []byte

var levelColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgMagenta, color.Bold),
	LvlError: color.New(color.FgRed, color.Bold),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// TerminalFormat renders records as "LVL[time] msg key=value ..."
// optionally colorizing the level tag when colored is true.
func TerminalFormat(colored bool) Format {
	return func(r *Record) []byte {
		lvl := r.Lvl.String()
		if colored {
			lvl = levelColor[r.Lvl].Sprintf("%-5s", lvl)
		} else {
			lvl = fmt.Sprintf("%-5s", lvl)
		}
		b := fmt.Appendf(nil, "%s[%s] %s", lvl, r.Time.Format("2006-01-02T15:04:05.000-0700"), r.Msg)
		b = appendPairs(b, r.Ctx)
		if r.Call.Frame().Function != "" {
			b = fmt.Appendf(b, " caller=%s:%d", shortFile(r.Call.Frame().File), r.Call.Frame().Line)
		}
		return append(b, '\n')
	}
}

// JSONFormat renders records as newline-delimited JSON objects, one
// per record, suitable for ingestion by a log shipper.
func JSONFormat() Format {
	return func(r *Record) []byte {
		m := make(map[string]interface{}, 4+len(r.Ctx)/2)
		m["t"] = r.Time.Format("2006-01-02T15:04:05.000Z07:00")
		m["lvl"] = r.Lvl.String()
		m["msg"] = r.Msg
		for i := 0; i+1 < len(r.Ctx); i += 2 {
			key := fmt.Sprint(r.Ctx[i])
			m[key] = r.Ctx[i+1]
		}
		b, err := json.Marshal(m)
		if err != nil {
			b = []byte(fmt.Sprintf(`{"lvl":"ERROR","msg":"log marshal failed: %v"}`, err))
		}
		return append(b, '\n')
	}
}

func appendPairs(b []byte, ctx []interface{}) []byte {
	for i := 0; i+1 < len(ctx); i += 2 {
		b = fmt.Appendf(b, " %v=%v", ctx[i], ctx[i+1])
	}
	return b
}

func shortFile(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

type streamHandler struct {
	mu  sync.Mutex
	w   io.Writer
	fmt Format
}

func (h *streamHandler) Log(r *Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(h.fmt(r))
	return err
}

// StreamHandler writes formatted records to w, serializing concurrent
// writers so lines are never interleaved.
func StreamHandler(w io.Writer, format Format) Handler {
	return &streamHandler{w: w, fmt: format}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// MultiHandler fans a record out to every handler in hs.
func MultiHandler(hs ...Handler) Handler {
	return multiHandler(hs)
}

type multiHandler []Handler

func (m multiHandler) Log(r *Record) error {
	var firstErr error
	for _, h := range m {
		if err := h.Log(r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LvlFilterHandler drops records more verbose than maxLvl before
// passing them on to h.
func LvlFilterHandler(maxLvl Lvl, h Handler) Handler {
	return &lvlFilterHandler{maxLvl: maxLvl, h: h}
}

type lvlFilterHandler struct {
	maxLvl Lvl
	h      Handler
}

func (f *lvlFilterHandler) Log(r *Record) error {
	if r.Lvl > f.maxLvl {
		return nil
	}
	return f.h.Log(r)
}
