package bridge

// GuestRuntime abstracts the scripting engine (V8 or QuickJS) behind the
// surface the bridge needs. Adapters live in internal/v8engine and
// internal/quickjs and are selected by build tag; tests supply their own.
type GuestRuntime interface {
	// Eval evaluates JavaScript source and discards the result.
	Eval(js string) error

	// EvalString evaluates JavaScript and returns the result as a Go string.
	EvalString(js string) (string, error)

	// EvalBool evaluates JavaScript and returns the result as a Go bool.
	EvalBool(js string) (bool, error)

	// EvalInt evaluates JavaScript and returns the result as a Go int.
	EvalInt(js string) (int, error)

	// RegisterFunc registers a Go function as a global JavaScript function.
	// Go (T, error) returns are unwrapped: on error the JS wrapper throws
	// instead of returning a pair.
	RegisterFunc(name string, fn any) error

	// SetGlobal sets a global variable on the guest context. Basic Go
	// types (string, int, float64, bool) are converted to JS values.
	SetGlobal(name string, value any) error

	// RunMicrotasks pumps the engine's microtask queue so that deferred
	// values settle on the current turn.
	RunMicrotasks()
}

// Terminator is an optional interface for runtimes that support forced
// termination of running guest code (V8's TerminateExecution).
type Terminator interface {
	Terminate()
}

// OpHandler is a host-native operation exposed to guest scripts under a
// numeric id. The control buffer is borrowed: it is valid only for the
// duration of the call and must not be retained. zeroCopy is nil when the
// guest supplied no auxiliary buffer; when present the handler may write
// results into it in place.
//
// A handler returns (response, nil) for a synchronous result, (nil, nil)
// to signal that it will complete later through the completion channel,
// or (nil, err) to raise err into the guest as an exception.
type OpHandler func(ctx *ExecutionContext, control []byte, zeroCopy []byte) ([]byte, error)

// ImportHook receives dynamic-import requests. The module-loading work is
// the host's: it must eventually call ExecutionContext.CompleteImport or
// FailImport exactly once with the given id.
type ImportHook func(specifier, referrer string, importID uint64)

// ResolveFunc maps a static import specifier and a referrer module id to
// the id of an already-registered module. It is a pure function provided
// by the host and consulted during linking.
type ResolveFunc func(specifier string, referrerID uint64) uint64

// DiagnosticSink receives every diagnostic record the context encodes.
// The inspector tap implements this; nil sinks are skipped.
type DiagnosticSink interface {
	Diagnostic(rec DiagnosticRecord)
}
