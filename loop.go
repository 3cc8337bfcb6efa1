package gojabridge

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"

	"github.com/dop251/goja"
	gojaloop "github.com/dop251/goja_nodejs/eventloop"
)

// loop owns the goja_nodejs event loop that serialises all engine access.
//
// goja's runtime is not goroutine safe, so every engine operation runs as a
// loop job. Promise continuations and timers run on the same goroutine,
// which is how callers on other goroutines observe asynchronous settlement.
type loop struct {
	inner *gojaloop.EventLoop
	// vm is only touched on the loop goroutine
	vm *goja.Runtime
	// loopGoroutineID is zero while the loop is not running
	loopGoroutineID atomic.Uint64
	stopped         atomic.Bool
}

func newLoop(opts ...gojaloop.Option) *loop {
	return &loop{inner: gojaloop.NewEventLoop(opts...)}
}

// start runs the loop in the background, then blocks until the first job
// has recorded the loop goroutine and runtime.
func (l *loop) start(setup func(vm *goja.Runtime)) error {
	l.inner.Start()
	ready := make(chan struct{})
	if !l.inner.RunOnLoop(func(vm *goja.Runtime) {
		l.vm = vm
		l.loopGoroutineID.Store(getGoroutineID())
		if setup != nil {
			setup(vm)
		}
		close(ready)
	}) {
		return ErrClosed
	}
	<-ready
	return nil
}

// submit schedules fn as a loop job, returning false if the loop has been
// terminated.
func (l *loop) submit(fn func(vm *goja.Runtime)) bool {
	if l.stopped.Load() {
		return false
	}
	return l.inner.RunOnLoop(fn)
}

// terminate stops the loop and clears its timers. Jobs not yet started are
// dropped.
func (l *loop) terminate() {
	if l.stopped.Swap(true) {
		return
	}
	l.inner.Terminate()
	l.loopGoroutineID.Store(0)
}

// onLoop checks if we're on the loop goroutine.
func (l *loop) onLoop() bool {
	loopID := l.loopGoroutineID.Load()
	if loopID == 0 {
		return false
	}
	return getGoroutineID() == loopID
}

// getGoroutineID parses the current goroutine's ID from the header of its
// stack trace, "goroutine N [...]", returning 0 if it cannot.
func getGoroutineID() uint64 {
	var buf [64]byte
	header := buf[:runtime.Stack(buf[:], false)]
	header = bytes.TrimPrefix(header, []byte("goroutine "))
	if i := bytes.IndexByte(header, ' '); i >= 0 {
		header = header[:i]
	}
	id, err := strconv.ParseUint(string(header), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
