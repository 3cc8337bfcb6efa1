package gojabridge

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

var (
	// ErrClosed is returned by any operation attempted after [Context.Close],
	// and by waits on a [Future] that was still pending when its context
	// closed.
	ErrClosed = errors.New("gojabridge: context closed")

	// ErrTimeout indicates a [Future] was still pending when a non-blocking
	// or bounded get gave up. It is never the future's own failure.
	ErrTimeout = errors.New("gojabridge: future still pending")

	// ErrAwaitOnLoop is returned when a blocking wait on a pending [Future]
	// is attempted from the engine goroutine, which is the only goroutine
	// able to settle it.
	ErrAwaitOnLoop = errors.New("gojabridge: cannot block the engine goroutine waiting on a pending future")

	// ErrCloseOnLoop is returned by [Context.Close] when called from the
	// engine goroutine.
	ErrCloseOnLoop = errors.New("gojabridge: cannot close a context from its engine goroutine")

	// ErrForeignValue is returned when a [Value] is passed to a context other
	// than the one that produced it.
	ErrForeignValue = errors.New("gojabridge: value belongs to a different context")

	// ErrNotObject is returned by property and call operations on a [Value]
	// that holds a script primitive.
	ErrNotObject = errors.New("gojabridge: value is not an object")

	// ErrNotCallable is returned when calling a [Value] that is not a
	// function.
	ErrNotCallable = errors.New("gojabridge: value is not a function")

	// ErrNotAdaptable is returned by [Value.AdaptTo] when the value does not
	// structurally match the requested [Capability].
	ErrNotAdaptable = errors.New("gojabridge: value does not implement capability")
)

// ErrorKind classifies an uncaught script exception.
type ErrorKind int

const (
	// KindError is any thrown Error instance other than the kinds below.
	KindError ErrorKind = iota
	// KindSyntaxError is a SyntaxError, including compilation failures.
	KindSyntaxError
	// KindReferenceError is a ReferenceError.
	KindReferenceError
	// KindThrownValue is a thrown value that is not an Error instance,
	// e.g. `throw 'message'`.
	KindThrownValue
)

// String implements [fmt.Stringer].
func (k ErrorKind) String() string {
	switch k {
	case KindError:
		return "Error"
	case KindSyntaxError:
		return "SyntaxError"
	case KindReferenceError:
		return "ReferenceError"
	case KindThrownValue:
		return "ThrownValue"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinel line numbers used by [StackFrame].
const (
	// LineUnknown means no location could be recovered.
	LineUnknown = -1
	// LineNative means the frame is a native (host) function.
	LineNative = -2
)

// StackFrame is the location an uncaught exception originated from.
type StackFrame struct {
	// Script is the script name, "<eval>" for anonymous evaluations, or
	// "native".
	Script string
	// Function is the name of the function, empty at the top level.
	Function string
	// Line is 1-based, or one of [LineUnknown], [LineNative].
	Line int
	// Column is 1-based, or 0 if unknown.
	Column int
}

// String renders the frame in the engine's own stack format.
func (f StackFrame) String() string {
	var b strings.Builder
	if f.Function != "" {
		b.WriteString(f.Function)
		b.WriteString(" (")
	}
	switch f.Line {
	case LineNative:
		b.WriteString("native")
	case LineUnknown:
		b.WriteString(f.Script)
		b.WriteString(":?")
	default:
		b.WriteString(f.Script)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(f.Line))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(f.Column))
	}
	if f.Function != "" {
		b.WriteByte(')')
	}
	return b.String()
}

// ScriptError is an uncaught script exception, including promise rejections
// normalised by a [Future].
type ScriptError struct {
	cause error
	host  error

	// Thrown is the thrown value in its raw host form: a *[Value] for
	// objects, or a primitive.
	Thrown any

	// Name is the error's "name" property, empty for [KindThrownValue].
	Name string

	// Message is the engine's string rendering of the thrown value, e.g.
	// "Error: message", or "message" for `throw 'message'`.
	Message string

	Frame StackFrame

	Kind ErrorKind
}

// Error returns [ScriptError.Message].
func (e *ScriptError) Error() string { return e.Message }

// Unwrap returns the underlying engine exception, if any, and the host
// error carried by the thrown value, if it was a GoError.
func (e *ScriptError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	if e.host != nil {
		errs = append(errs, e.host)
	}
	return errs
}

// ConversionError indicates a value could not be coerced to a target type
// after every applicable converter declined.
type ConversionError struct {
	Target reflect.Type
	Value  any
	Cause  error
}

func (e *ConversionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("gojabridge: cannot convert %T to %v: %v", e.Value, e.Target, e.Cause)
	}
	return fmt.Sprintf("gojabridge: cannot convert %T to %v", e.Value, e.Target)
}

func (e *ConversionError) Unwrap() error { return e.Cause }

// PanicError wraps a panic recovered while running on the engine
// goroutine, e.g. from a converter.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("gojabridge: panic on engine goroutine: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

var (
	frameRe       = regexp.MustCompile(`^at (?:(.*?) \()?(.*?):(\d+):(\d+)(?:\(\d+\))?\)?$`)
	nativeFrameRe = regexp.MustCompile(`^at (?:(.*?) \()?native\)?$`)
	syntaxLineRe  = regexp.MustCompile(`Line (\d+):(\d+)`)
)

// scriptError converts an engine exception. Must run on the engine goroutine.
func (c *Context) scriptError(ex *goja.Exception) *ScriptError {
	val := ex.Value()
	if val == nil {
		return &ScriptError{
			cause:   ex,
			Message: ex.Error(),
			Frame:   StackFrame{Script: "<eval>", Line: LineUnknown},
			Kind:    KindThrownValue,
		}
	}
	return c.thrownError(val, ex.String(), ex)
}

// thrownError classifies a thrown value. The stack is only consulted when
// the value does not carry its own. Must run on the engine goroutine.
func (c *Context) thrownError(val goja.Value, stack string, cause error) *ScriptError {
	e := &ScriptError{
		cause:   cause,
		host:    hostError(val),
		Thrown:  c.fromScript(val),
		Message: val.String(),
		Frame:   StackFrame{Script: "<eval>", Line: LineUnknown},
		Kind:    KindThrownValue,
	}

	if obj, ok := val.(*goja.Object); ok && obj.ClassName() == "Error" {
		if name := obj.Get("name"); name != nil && !goja.IsUndefined(name) {
			e.Name = name.String()
		}
		switch e.Name {
		case "SyntaxError":
			e.Kind = KindSyntaxError
		case "ReferenceError":
			e.Kind = KindReferenceError
		default:
			e.Kind = KindError
		}
		if s := obj.Get("stack"); s != nil && !goja.IsUndefined(s) && strings.Contains(s.String(), "at ") {
			stack = s.String()
		}
	}

	if frame, ok := parseFrame(stack); ok {
		e.Frame = frame
	} else if e.Kind == KindSyntaxError {
		if m := syntaxLineRe.FindStringSubmatch(e.Message); m != nil {
			e.Frame.Line, _ = strconv.Atoi(m[1])
			e.Frame.Column, _ = strconv.Atoi(m[2])
		}
	}
	return e
}

// hostError returns the host error carried by a GoError, which is what the
// engine throws when a host function returns a non-nil error.
func hostError(val goja.Value) error {
	obj, ok := val.(*goja.Object)
	if !ok {
		return nil
	}
	if name := obj.Get("name"); name == nil || name.String() != "GoError" {
		return nil
	}
	if v := obj.Get("value"); v != nil {
		if err, ok := v.Export().(error); ok {
			return err
		}
	}
	return nil
}

// parseFrame extracts the innermost frame from a rendered stack.
func parseFrame(stack string) (StackFrame, bool) {
	for _, line := range strings.Split(stack, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "at ") {
			continue
		}
		if m := nativeFrameRe.FindStringSubmatch(line); m != nil {
			return StackFrame{Script: "native", Function: m[1], Line: LineNative}, true
		}
		if m := frameRe.FindStringSubmatch(line); m != nil {
			lineNo, _ := strconv.Atoi(m[3])
			col, _ := strconv.Atoi(m[4])
			return StackFrame{Script: m[2], Function: m[1], Line: lineNo, Column: col}, true
		}
		return StackFrame{}, false
	}
	return StackFrame{}, false
}

// engineError normalises errors surfaced by the engine. Must run on the
// engine goroutine.
func (c *Context) engineError(err error) error {
	if err == nil {
		return nil
	}
	var se *ScriptError
	if errors.As(err, &se) {
		return err
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return c.scriptError(ex)
	}
	return err
}
