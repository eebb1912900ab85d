// Package logsite provides identities for log statements.
//
// A Key identifies a single log statement in the source code, optionally
// specialized by aggregation qualifiers (bucketed keys, scope tokens). All
// per-statement state held by rate limiters is keyed by a Key, so keys must be
// comparable Go values with stable equality.
package logsite

import (
	"fmt"
	"runtime"
	"strconv"
)

// Key identifies a log statement, possibly specialized by qualifiers.
//
// Implementations must be comparable (usable as map keys) and immutable.
// Two keys are equal iff they originate from the same call site and carry
// the same ordered sequence of qualifiers.
type Key interface {
	String() string
}

// Site is a static call site: function, file and line.
type Site struct {
	Function string
	File     string
	Line     int
}

// String returns "function (file:line)".
func (s Site) String() string {
	if s.Function == "" && s.File == "" {
		return "<unknown>"
	}
	return s.Function + " (" + s.File + ":" + strconv.Itoa(s.Line) + ")"
}

// Caller returns the Site of the caller of the function calling Caller.
// skip follows runtime.Caller semantics relative to the caller of Caller.
// The zero Site is returned when the stack cannot be inspected.
func Caller(skip int) Site {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Site{}
	}
	name := ""
	if fn := runtime.FuncForPC(pc); fn != nil {
		name = fn.Name()
	}
	return Site{Function: name, File: file, Line: line}
}

// PC is a Key backed by a program counter, as found in slog.Record.PC.
// Resolution to a Site is deferred until String or Site is called.
type PC uintptr

// Site resolves the program counter to its call site.
func (pc PC) Site() Site {
	if pc == 0 {
		return Site{}
	}
	frames := runtime.CallersFrames([]uintptr{uintptr(pc)})
	f, _ := frames.Next()
	return Site{Function: f.Function, File: f.File, Line: f.Line}
}

// String implements Key.
func (pc PC) String() string {
	if pc == 0 {
		return "<unknown>"
	}
	return pc.Site().String()
}

// Compile-time interface verification.
var (
	_ Key = Site{}
	_ Key = PC(0)
	_ Key = specialized{}
)

// Base returns the unspecialized key that key was derived from.
func Base(key Key) Key {
	for {
		sk, ok := key.(specialized)
		if !ok {
			return key
		}
		key = sk.parent
	}
}

// Qualifiers returns the qualifiers applied to key, oldest first.
func Qualifiers(key Key) []any {
	var out []any
	for {
		sk, ok := key.(specialized)
		if !ok {
			break
		}
		out = append(out, sk.qualifier)
		key = sk.parent
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func describe(q any) string {
	if s, ok := q.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", q)
}
