package bridge

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// evalOutput is the JSON shape produced by the evaluation wrapper.
type evalOutput struct {
	Result json.RawMessage `json:"result"`
	Err    *ErrInfo        `json:"err"`
}

// EvalInContext evaluates source in the guest's global scope and returns
// the completion value as JSON together with structured error info.
// Compile failures and runtime throws are distinguished in ErrInfo; the
// error return is reserved for bridge-level failures (a broken runtime,
// unserializable wrapper output), never for guest errors.
//
// origin names the source in diagnostics; "<unknown>" is used when empty.
func (c *ExecutionContext) EvalInContext(source, origin string) (json.RawMessage, *ErrInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, ErrContextClosed
	}
	if origin == "" {
		origin = unknownScriptName
	}

	js := fmt.Sprintf(`(function() {
	var src = %s;
	var out = { result: null, err: null };
	function errInfo(e, compile) {
		return {
			thrown: String(e && e.message !== undefined ? e.message : e),
			isNativeError: e instanceof Error,
			isCompileError: compile,
		};
	}
	try {
		new Function(src);
	} catch (e) {
		out.err = errInfo(e, true);
		return JSON.stringify(out);
	}
	try {
		var r = (0, eval)(src);
		try {
			out.result = r === undefined ? null : JSON.parse(JSON.stringify(r) || 'null');
		} catch (e) {
			out.result = String(r);
		}
	} catch (e) {
		out.err = errInfo(e, false);
	}
	return JSON.stringify(out);
})()`, jsQuote(source))

	var timedOut atomic.Bool
	if c.cfg.ExecutionTimeout > 0 {
		if term, ok := c.rt.(Terminator); ok {
			watchdog := time.AfterFunc(c.cfg.ExecutionTimeout, func() {
				timedOut.Store(true)
				term.Terminate()
			})
			defer watchdog.Stop()
		}
	}

	encoded, err := c.rt.EvalString(js)
	if err != nil {
		if timedOut.Load() {
			c.recordDiagnosticLocked(terminationDiagnostic(origin))
		}
		return nil, nil, fmt.Errorf("evaluating %s: %w", origin, err)
	}
	var out evalOutput
	if err := json.Unmarshal([]byte(encoded), &out); err != nil {
		return nil, nil, fmt.Errorf("decoding evaluation output for %s: %w", origin, err)
	}
	if out.Err != nil {
		rec := EncodeDiagnostic(ExceptionReport{Message: out.Err.Thrown, ResourceName: origin})
		c.recordDiagnosticLocked(rec)
		return nil, out.Err, nil
	}
	return out.Result, nil, nil
}
