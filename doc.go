// Package gojabridge moves values between Go and an embedded goja runtime.
//
// A [Context] owns one runtime, driven by a goja_nodejs event loop, and a
// [Registry] of converter chains, one per direction and target type. The
// most recently added converter is tried first, falling back to older ones,
// then to converters registered against [AnyType], then to the runtime's own
// export rules. Script objects cross the boundary as *[Value] handles, one
// per object, which can be viewed as a live [List] or a snapshotting [Map].
//
// Script calls that may return promises are wrapped in a [Future], which
// can be waited on from any goroutine other than the loop's. Rejections are
// normalised to [ScriptError], unless the reason was already a Go error.
package gojabridge
