package gojabridge

import (
	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// consolePrinter routes the script console to a logger. If limiter is set,
// each console method is a rate limit category, and output over the limit
// is dropped.
type consolePrinter struct {
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
}

func (p *consolePrinter) Log(s string) {
	p.print(p.logger.Info(), "log", s)
}

func (p *consolePrinter) Warn(s string) {
	p.print(p.logger.Warning(), "warn", s)
}

func (p *consolePrinter) Error(s string) {
	p.print(p.logger.Err(), "error", s)
}

func (p *consolePrinter) print(b *logiface.Builder[logiface.Event], method, s string) {
	if !b.Enabled() {
		return
	}
	if p.limiter != nil {
		next, ok := p.limiter.Allow(method)
		if !ok {
			b.Release()
			return
		}
		if !next.IsZero() {
			b = b.Time("console_limited_until", next)
		}
	}
	b.Str("source", "console").Log(s)
}
