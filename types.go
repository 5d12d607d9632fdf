package bridge

import "time"

// OperationID identifies a registered host operation. IDs are stable for
// the lifetime of the dispatch table.
type OperationID uint32

// OutcomeKind classifies the result of a dispatch call.
type OutcomeKind int

const (
	// OutcomeImmediate means the operation completed synchronously and the
	// outcome carries the response bytes.
	OutcomeImmediate OutcomeKind = iota
	// OutcomePending means the operation will complete later through the
	// completion channel, tagged with its operation id.
	OutcomePending
	// OutcomeRaised means an exception was raised into the guest engine
	// during the call. There is no response value.
	OutcomeRaised
)

// Outcome is the result of dispatching an operation. Exactly one of the
// three kinds applies; Response is meaningful only for OutcomeImmediate.
type Outcome struct {
	Kind     OutcomeKind
	Response *BufferHandle
}

// DeferredHandle references an unresolved asynchronous value inside the
// guest engine. The ID is meaningful only while the value is pending;
// engines may reuse identity numbers after a value settles and is
// collected.
type DeferredHandle struct {
	ID uint64
}

// ModuleInfo describes a module registered with the context. Entries are
// never removed for the lifetime of the context.
type ModuleInfo struct {
	ID       uint64
	Name     string
	Main     bool
	Requests []string
	Handle   any
}

// StackFrame is one frame of a diagnostic stack trace.
type StackFrame struct {
	Line          int    `json:"line"`
	Column        int    `json:"column"`
	FunctionName  string `json:"functionName,omitempty"`
	ScriptName    string `json:"scriptName"`
	IsEval        bool   `json:"isEval"`
	IsConstructor bool   `json:"isConstructor"`
	IsInternal    bool   `json:"isInternal"`
}

// DiagnosticRecord is the structured form of an engine exception or
// diagnostic message, shaped for JSON serialization by the host.
type DiagnosticRecord struct {
	Message             string       `json:"message"`
	ScriptResourceName  string       `json:"scriptResourceName"`
	SourceLine          string       `json:"sourceLine"`
	LineNumber          int          `json:"lineNumber"`
	StartPosition       int          `json:"startPosition"`
	EndPosition         int          `json:"endPosition"`
	ErrorLevel          int          `json:"errorLevel"`
	StartColumn         int          `json:"startColumn"`
	EndColumn           int          `json:"endColumn"`
	IsSharedCrossOrigin bool         `json:"isSharedCrossOrigin"`
	IsOpaque            bool         `json:"isOpaque"`
	Frames              []StackFrame `json:"frames"`
}

// ErrInfo describes a failure from EvalInContext, distinguishing compile
// errors from runtime throws.
type ErrInfo struct {
	Thrown         string `json:"thrown"`
	IsNativeError  bool   `json:"isNativeError"`
	IsCompileError bool   `json:"isCompileError"`
}

// LogEntry is a single guest print/console line captured by the context.
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}
