package gojabridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

const defaultRethrowScript = `(function(e){throw e})`

// contextOptions holds configuration for a [Context] instance.
type contextOptions struct {
	logger            *logiface.Logger[logiface.Event]
	consoleLimiter    *catrate.Limiter
	registry          *require.Registry
	fieldNameMapper   goja.FieldNameMapper
	rethrowScript     string
	console           bool
	standardCoercions bool
}

// Option configures a [Context] instance. Options are applied during
// context construction.
type Option interface {
	applyOption(*contextOptions) error
}

// optionFunc implements [Option] via a closure.
type optionFunc struct {
	fn func(*contextOptions) error
}

func (o *optionFunc) applyOption(opts *contextOptions) error {
	return o.fn(opts)
}

// WithLogger configures structured logging. Script console output is also
// written to this logger, when the console is enabled. A nil logger
// disables logging, which is the default.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionFunc{fn: func(opts *contextOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithRegistry configures the [require.Registry] enabled on the engine,
// making native modules registered on it available to script `require`
// and to [Context.Require]. A fresh registry is used by default.
func WithRegistry(registry *require.Registry) Option {
	return &optionFunc{fn: func(opts *contextOptions) error {
		if registry == nil {
			return errors.New("registry must not be nil")
		}
		opts.registry = registry
		return nil
	}}
}

// WithConsole controls whether the `console` global is installed. It is
// enabled by default, and writes to the logger configured by [WithLogger].
func WithConsole(enabled bool) Option {
	return &optionFunc{fn: func(opts *contextOptions) error {
		opts.console = enabled
		return nil
	}}
}

// WithConsoleRateLimits limits script console output written to the logger,
// per console method (log, warn and error are separate categories), using
// sliding windows of the given durations. Output over the limit is dropped.
// The first event to reach a limit carries a "console_limited_until" field.
//
// Rates must be positive, and each longer window must allow more events,
// at a lower rate, than every shorter one.
func WithConsoleRateLimits(rates map[time.Duration]int) Option {
	return &optionFunc{fn: func(opts *contextOptions) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("invalid console rate limits: %v", rates)
			}
		}()
		opts.consoleLimiter = catrate.NewLimiter(rates)
		return nil
	}}
}

// WithStandardCoercions controls whether [PutStandardCoercions] is applied
// to the new context. Enabled by default. When disabled, the registry starts
// empty and only the engine's built-in conversions apply.
func WithStandardCoercions(enabled bool) Option {
	return &optionFunc{fn: func(opts *contextOptions) error {
		opts.standardCoercions = enabled
		return nil
	}}
}

// WithFieldNameMapper sets the [goja.FieldNameMapper] the engine uses when
// reflecting host structs into script and when exporting script objects
// into host types the registry did not handle.
func WithFieldNameMapper(mapper goja.FieldNameMapper) Option {
	return &optionFunc{fn: func(opts *contextOptions) error {
		opts.fieldNameMapper = mapper
		return nil
	}}
}

// WithJSONFieldNames is shorthand for a [WithFieldNameMapper] that uses
// `json` struct tags, and lower-cases the first letter of untagged methods.
func WithJSONFieldNames() Option {
	return WithFieldNameMapper(goja.TagFieldNameMapper("json", true))
}

// WithRethrowScript replaces the script used to normalise promise
// rejections into [ScriptError] values. It must evaluate to a function that
// throws its first argument.
func WithRethrowScript(script string) Option {
	return &optionFunc{fn: func(opts *contextOptions) error {
		if script == "" {
			return errors.New("rethrow script must not be empty")
		}
		opts.rethrowScript = script
		return nil
	}}
}

// resolveOptions applies the given options to a default [contextOptions].
func resolveOptions(opts []Option) (*contextOptions, error) {
	cfg := &contextOptions{
		console:           true,
		standardCoercions: true,
		rethrowScript:     defaultRethrowScript,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
