package bridge

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrContextClosed is returned by host-facing calls after Teardown.
var ErrContextClosed = errors.New("execution context is closed")

// contextSeq numbers contexts process-wide for log correlation.
var contextSeq atomic.Uint64

// ExecutionContext binds one guest engine instance to the host. It owns
// the completion-channel registration, the shared response slot, the
// rejection map, the dynamic-import map and its id counter, the module
// registry, and the last captured diagnostic.
//
// Exported methods take the context's exclusive lock and may be called
// from any goroutine, one at a time. The guest-facing hooks installed by
// the constructor run re-entrantly inside Eval calls on the engine's own
// turn and therefore do not lock; per-context state is only ever touched
// while that turn owns the context.
type ExecutionContext struct {
	id  uint64
	mu  sync.Mutex
	rt  GuestRuntime
	cfg ContextConfig

	ops        *OpTable
	arena      *responseArena
	channel    *completionChannel
	rejections *rejectionTracker
	imports    *dynamicImports
	modules    *moduleRegistry

	importHook ImportHook
	resolveFn  ResolveFunc
	sink       DiagnosticSink
	cache      *ModuleCache

	lastDiagnostic *DiagnosticRecord
	logs           []LogEntry
	closed         bool
}

// bridgeJS installs the guest-side bridge surface: base64 helpers, the
// deferred-value registry for dynamic imports, the completion callback
// slot, and promise rejection tracking that reports transitions to the
// host hook. Mirrors the Bridge.{send,recv,evalContext,errorToJSON,print}
// surface the guest programs against.
const bridgeJS = `
(function() {

var _b64e = 'ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/';
var _b64d = new Uint8Array(128);
for (var i = 0; i < _b64e.length; i++) _b64d[_b64e.charCodeAt(i)] = i;

function b64Encode(bytes) {
	var out = '';
	for (var i = 0; i < bytes.length; i += 3) {
		var a = bytes[i], b = bytes[i + 1], c = bytes[i + 2];
		out += _b64e[a >> 2];
		out += _b64e[((a & 3) << 4) | (b === undefined ? 0 : b >> 4)];
		out += b === undefined ? '=' : _b64e[((b & 15) << 2) | (c === undefined ? 0 : c >> 6)];
		out += c === undefined ? '=' : _b64e[c & 63];
	}
	return out;
}

function b64Decode(b64) {
	var pad = 0;
	if (b64.length > 0 && b64[b64.length - 1] === '=') pad++;
	if (b64.length > 1 && b64[b64.length - 2] === '=') pad++;
	var outLen = (b64.length * 3 / 4) - pad;
	var out = new Uint8Array(outLen);
	var j = 0;
	for (var i = 0; i < b64.length; i += 4) {
		var a = _b64d[b64.charCodeAt(i)];
		var b = _b64d[b64.charCodeAt(i + 1)];
		var c = _b64d[b64.charCodeAt(i + 2)];
		var d = _b64d[b64.charCodeAt(i + 3)];
		out[j++] = (a << 2) | (b >> 4);
		if (j < outLen) out[j++] = ((b & 15) << 4) | (c >> 2);
		if (j < outLen) out[j++] = ((c & 3) << 6) | d;
	}
	return out;
}

var bridge = {
	recvCb: null,
	deferred: {},     // importId -> {resolve, reject}
	modules: {},      // moduleId -> {ns: namespace object}
	rejectSeq: 0,
};

function toBytes(v) {
	if (v === undefined || v === null) return new Uint8Array(0);
	if (v instanceof Uint8Array) return v;
	if (v instanceof ArrayBuffer) return new Uint8Array(v);
	if (ArrayBuffer.isView(v)) return new Uint8Array(v.buffer, v.byteOffset, v.byteLength);
	throw new TypeError('expected a buffer');
}

// send dispatches an operation. Returns the response bytes for a
// synchronous result (possibly empty), or undefined when the result will
// arrive through the registered completion callback. The host marks
// synchronous results with a '+' prefix so an empty immediate response
// stays distinguishable from a pending one.
bridge.send = function(opId, control, zeroCopy) {
	if (typeof opId !== 'number' || opId < 0) throw new TypeError('invalid op id');
	var resp = __bridge_send(opId, b64Encode(toBytes(control)),
		zeroCopy === undefined ? '' : b64Encode(toBytes(zeroCopy)));
	if (resp === '') return undefined;
	return b64Decode(resp.slice(1));
};

// recv registers the single completion callback. A second call throws.
bridge.recv = function(cb) {
	if (typeof cb !== 'function') throw new TypeError('recv requires a function');
	__bridge_recv_register();
	bridge.recvCb = cb;
};

// deliver is invoked from the host to push one completion into the guest.
bridge.deliver = function(opId, payloadB64) {
	if (bridge.recvCb === null) return;
	bridge.recvCb(opId, b64Decode(payloadB64));
};

bridge.print = function(msg, isErr) {
	__bridge_print(String(msg), isErr === true);
};

bridge.errorToJSON = function(err) {
	var report = {
		message: err && err.message !== undefined ? String(err.message) : String(err),
		stack: err && err.stack ? String(err.stack) : '',
	};
	return __bridge_error_to_json(JSON.stringify(report));
};

// evalContext evaluates source in the global scope and returns
// [result, errInfo]. Compile failures are distinguished from runtime
// throws; errInfo is null on success.
bridge.evalContext = function(src) {
	function info(e, compile) {
		return {
			thrown: e && e.message !== undefined ? String(e.message) : String(e),
			isNativeError: e instanceof Error,
			isCompileError: compile,
		};
	}
	try {
		new Function(src);
	} catch (e) {
		return [null, info(e, true)];
	}
	try {
		return [(0, eval)(src), null];
	} catch (e) {
		return [null, info(e, false)];
	}
};

// dynamicImport requests a module load from the host and returns a
// promise that settles when the host completes the request.
bridge.dynamicImport = function(specifier, referrer) {
	var id = __bridge_import(String(specifier), String(referrer || ''));
	return new Promise(function(resolve, reject) {
		bridge.deferred[id] = { resolve: resolve, reject: reject };
	});
};

// settle resolves or rejects the deferred value for one import id.
// Unknown ids are ignored; the Go side already logged the violation.
bridge.settle = function(id, ok, payload) {
	var d = bridge.deferred[id];
	if (d === undefined) return;
	delete bridge.deferred[id];
	if (ok) { d.resolve(payload); } else { d.reject(new Error(payload)); }
};

bridge.ns = function(moduleId) {
	var m = bridge.modules[moduleId];
	if (m === undefined) throw new Error('module ' + moduleId + ' is not instantiated');
	return m.ns;
};

bridge.importMeta = function(moduleId) {
	return JSON.parse(__bridge_meta(moduleId));
};

// Rejection tracking: promises get a bridge-assigned identity on first
// rejection; transitions are reported to the host state machine. Late
// handler attachment via then/catch reports the handler-added event.
var origThen = Promise.prototype.then;
Promise.prototype.then = function(onFulfilled, onRejected) {
	var p = this;
	if (typeof onRejected === 'function' && p.__bridgeRejectId !== undefined && !p.__bridgeSettledReported) {
		p.__bridgeSettledReported = true;
		__bridge_reject_event(1, p.__bridgeRejectId, '');
	}
	return origThen.call(p, onFulfilled, onRejected);
};
Promise.prototype.catch = function(onRejected) {
	return Promise.prototype.then.call(this, undefined, onRejected);
};

bridge.trackRejection = function(promise, reason) {
	if (promise.__bridgeRejectId !== undefined) {
		__bridge_reject_event(2, promise.__bridgeRejectId, '');
		return;
	}
	var id = ++bridge.rejectSeq;
	try {
		Object.defineProperty(promise, '__bridgeRejectId', { value: id, writable: false, configurable: true });
	} catch (e) {
		return;
	}
	__bridge_reject_event(0, id, String(reason));
};

bridge.trackResolveSettled = function(promise) {
	if (promise.__bridgeRejectId !== undefined) {
		__bridge_reject_event(3, promise.__bridgeRejectId, '');
	}
};

globalThis.Bridge = bridge;
globalThis.__bridge = bridge;

})();
`

// NewExecutionContext wires the bridge into one engine instance. The op
// table is sealed here; registration is startup-only. rt must be exclusive
// to this context.
func NewExecutionContext(rt GuestRuntime, ops *OpTable, cfg ContextConfig) (*ExecutionContext, error) {
	if rt == nil {
		return nil, fmt.Errorf("nil guest runtime")
	}
	if ops == nil {
		ops = NewOpTable()
	}
	cfg = cfg.withDefaults()
	ops.Seal()

	ctx := &ExecutionContext{
		id:         contextSeq.Add(1),
		rt:         rt,
		cfg:        cfg,
		ops:        ops,
		arena:      newResponseArena(cfg.SharedBufferSize),
		channel:    &completionChannel{},
		rejections: newRejectionTracker(),
		imports:    newDynamicImports(),
		modules:    newModuleRegistry(),
	}

	if cfg.ModuleCacheDir != "" {
		cache, err := OpenModuleCache(cfg.ModuleCacheDir)
		if err != nil {
			return nil, fmt.Errorf("opening module cache: %w", err)
		}
		ctx.cache = cache
	}

	if err := ctx.installHooks(); err != nil {
		if ctx.cache != nil {
			_ = ctx.cache.Close()
		}
		return nil, err
	}
	return ctx, nil
}

// installHooks registers the Go-backed guest functions and evaluates the
// bridge surface script.
func (c *ExecutionContext) installHooks() error {
	hooks := []struct {
		name string
		fn   any
	}{
		{"__bridge_send", c.guestSend},
		{"__bridge_recv_register", c.guestRecvRegister},
		{"__bridge_reject_event", c.guestRejectEvent},
		{"__bridge_print", c.guestPrint},
		{"__bridge_error_to_json", c.guestErrorToJSON},
		{"__bridge_import", c.guestImport},
		{"__bridge_meta", c.guestMeta},
	}
	for _, h := range hooks {
		if err := c.rt.RegisterFunc(h.name, h.fn); err != nil {
			return fmt.Errorf("registering %s: %w", h.name, err)
		}
	}
	if err := c.rt.Eval(bridgeJS); err != nil {
		return fmt.Errorf("evaluating bridge surface: %w", err)
	}
	return nil
}

// ID returns the context's process-wide sequence number.
func (c *ExecutionContext) ID() uint64 { return c.id }

// Runtime returns the underlying guest runtime.
func (c *ExecutionContext) Runtime() GuestRuntime { return c.rt }

// SetImportHook installs the host-side receiver for dynamic-import
// requests. Must be set before guest code uses dynamic import.
func (c *ExecutionContext) SetImportHook(h ImportHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.importHook = h
}

// SetResolveFunc installs the host resolution callback consulted during
// static module linking.
func (c *ExecutionContext) SetResolveFunc(fn ResolveFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolveFn = fn
}

// SetDiagnosticSink installs an observer for every encoded diagnostic.
func (c *ExecutionContext) SetDiagnosticSink(s DiagnosticSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = s
}

// Dispatch routes one operation call from the host's side of the turn.
// The control buffer is borrowed for the duration of the call only.
func (c *ExecutionContext) Dispatch(id OperationID, control, zeroCopy []byte) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Outcome{Kind: OutcomeRaised}, ErrContextClosed
	}
	return c.ops.dispatch(c, id, control, zeroCopy)
}

// Complete queues an asynchronous operation result for FIFO delivery to
// the guest's registered completion callback on the next Pump.
func (c *ExecutionContext) Complete(id OperationID, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	c.channel.push(id, buf)
	return nil
}

// Pump delivers all queued completions into the guest in FIFO order and
// runs the engine's microtask queue so dependent deferred values settle.
func (c *ExecutionContext) Pump() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	deliveries := c.channel.take()
	for i, d := range deliveries {
		js := fmt.Sprintf("__bridge.deliver(%d, %q);", d.opID, base64.StdEncoding.EncodeToString(d.payload))
		if err := c.rt.Eval(js); err != nil {
			// The failed delivery is spent; keep the rest for the next pump.
			c.channel.requeue(deliveries[i+1:])
			return fmt.Errorf("delivering completion for op %d: %w", d.opID, err)
		}
	}
	c.rt.RunMicrotasks()
	return nil
}

// PendingCompletions reports queued, undelivered completions.
func (c *ExecutionContext) PendingCompletions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel.pending()
}

// RequestImport starts a dynamic module load on behalf of the host (the
// guest path goes through the same machinery via the bridge surface). The
// returned handle identifies the deferred value the guest observes.
func (c *ExecutionContext) RequestImport(specifier, referrer string) (DeferredHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return DeferredHandle{}, ErrContextClosed
	}
	return c.requestImportLocked(specifier, referrer)
}

func (c *ExecutionContext) requestImportLocked(specifier, referrer string) (DeferredHandle, error) {
	e := c.imports.request(specifier, referrer)
	js := fmt.Sprintf("new Promise(function(resolve, reject) { __bridge.deferred[%d] = { resolve: resolve, reject: reject }; });", e.id)
	if err := c.rt.Eval(js); err != nil {
		c.imports.consume(e.id)
		return DeferredHandle{}, fmt.Errorf("creating deferred for import %d: %w", e.id, err)
	}
	if hook := c.importHook; hook != nil {
		go hook(e.specifier, e.referrer, e.id)
	}
	return DeferredHandle{ID: e.id}, nil
}

// CompleteImport resolves the dynamic import identified by id with the
// namespace of a registered module. Unknown or already-consumed ids are
// logged no-ops. An unregistered moduleID fails without consuming the
// entry, so the host can still settle the import with FailImport.
func (c *ExecutionContext) CompleteImport(id uint64, moduleID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	if _, ok := c.modules.get(moduleID); !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownModule, moduleID)
	}
	if _, ok := c.imports.consume(id); !ok {
		return nil
	}
	js := fmt.Sprintf("__bridge.settle(%d, true, __bridge.ns(%d));", id, moduleID)
	if err := c.rt.Eval(js); err != nil {
		return fmt.Errorf("resolving import %d: %w", id, err)
	}
	c.rt.RunMicrotasks()
	return nil
}

// FailImport rejects the dynamic import identified by id with the given
// host-supplied error text. Unknown ids are logged no-ops.
func (c *ExecutionContext) FailImport(id uint64, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	if _, ok := c.imports.consume(id); !ok {
		return nil
	}
	js := fmt.Sprintf("__bridge.settle(%d, false, %s);", id, jsQuote(reason))
	if err := c.rt.Eval(js); err != nil {
		return fmt.Errorf("rejecting import %d: %w", id, err)
	}
	c.rt.RunMicrotasks()
	return nil
}

// PendingImports reports in-flight dynamic imports.
func (c *ExecutionContext) PendingImports() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.imports.pending()
}

// UnhandledRejections returns a snapshot of deferred-value identities that
// are currently rejected with no handler attached, with their reasons.
func (c *ExecutionContext) UnhandledRejections() map[uint64]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rejections.snapshot()
}

// LastDiagnostic returns the most recently captured diagnostic, or nil.
func (c *ExecutionContext) LastDiagnostic() *DiagnosticRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastDiagnostic
}

// Logs returns the captured guest print output.
func (c *ExecutionContext) Logs() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LogEntry, len(c.logs))
	copy(out, c.logs)
	return out
}

// Terminate forcibly stops guest execution when the runtime supports it
// and records a final structured diagnostic, so the host never sees an
// abrupt, unexplained failure.
func (c *ExecutionContext) Terminate(resource string) {
	if t, ok := c.rt.(Terminator); ok {
		t.Terminate()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := terminationDiagnostic(resource)
	c.recordDiagnosticLocked(rec)
}

// Teardown closes the context. Pending completions and in-flight imports
// are dropped along with their resolver handles; resources owned by
// still-running native operations remain those operations' responsibility.
func (c *ExecutionContext) Teardown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if n := c.imports.drop(); n > 0 {
		log.Printf("bridge: context %d: dropping %d pending dynamic import(s) at teardown", c.id, n)
	}
	if n := c.channel.pending(); n > 0 {
		log.Printf("bridge: context %d: dropping %d undelivered completion(s) at teardown", c.id, n)
		c.channel.take()
	}
	c.rejections.clear()
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}

// recordDiagnosticLocked stores rec as the last diagnostic and forwards
// it to the sink if one is installed. Caller holds c.mu.
func (c *ExecutionContext) recordDiagnosticLocked(rec DiagnosticRecord) {
	c.lastDiagnostic = &rec
	if c.sink != nil {
		c.sink.Diagnostic(rec)
	}
}

// ---------------------------------------------------------------------------
// Guest-facing hooks. These run re-entrantly inside Eval on the engine's
// turn and must not take c.mu.
// ---------------------------------------------------------------------------

// guestSend is the guest's dispatch entry point. A pending operation
// returns the empty string; an immediate result returns '+' followed by
// the base64 response, so the guest can tell an empty synchronous result
// from a pending one. Errors surface in the guest as thrown exceptions.
func (c *ExecutionContext) guestSend(opID int, controlB64, zeroCopyB64 string) (string, error) {
	if opID < 0 {
		return "", fmt.Errorf("invalid op id %d", opID)
	}
	control, err := base64.StdEncoding.DecodeString(controlB64)
	if err != nil {
		return "", fmt.Errorf("malformed control buffer: %w", err)
	}
	var zeroCopy []byte
	if zeroCopyB64 != "" {
		if zeroCopy, err = base64.StdEncoding.DecodeString(zeroCopyB64); err != nil {
			return "", fmt.Errorf("malformed zero-copy buffer: %w", err)
		}
	}
	outcome, err := c.ops.dispatch(c, OperationID(opID), control, zeroCopy)
	if err != nil {
		return "", err
	}
	if outcome.Kind != OutcomeImmediate {
		return "", nil
	}
	return "+" + base64.StdEncoding.EncodeToString(outcome.Response.Bytes()), nil
}

// guestRecvRegister records the completion-callback registration. Exactly
// one registration is permitted per context, ever.
func (c *ExecutionContext) guestRecvRegister() (int, error) {
	if err := c.channel.register(); err != nil {
		return 0, err
	}
	return 1, nil
}

// guestRejectEvent feeds the rejection tracker. kind follows the engine's
// notification order: 0 reject-no-handler, 1 handler-added-late,
// 2 reject-after-settled, 3 resolve-after-settled.
func (c *ExecutionContext) guestRejectEvent(kind int, promiseID int, reason string) {
	if kind < int(rejectWithNoHandler) || kind > int(resolveAfterResolved) {
		return
	}
	c.rejections.observe(rejectEvent(kind), uint64(promiseID), reason)
}

// guestPrint captures guest output into the context log, mirroring it to
// the host process log.
func (c *ExecutionContext) guestPrint(msg string, isErr bool) {
	level := "info"
	if isErr {
		level = "error"
	}
	if len(c.logs) >= c.cfg.MaxLogEntries {
		return
	}
	if len(msg) > c.cfg.MaxLogMessageSize {
		msg = msg[:c.cfg.MaxLogMessageSize] + "...(truncated)"
	}
	c.logs = append(c.logs, LogEntry{Level: level, Message: msg, Time: time.Now()})
	log.Printf("bridge: context %d: guest %s: %s", c.id, level, msg)
}

// guestErrorToJSON encodes a guest exception report into the serialized
// DiagnosticRecord and records it as the last diagnostic.
func (c *ExecutionContext) guestErrorToJSON(reportJSON string) (string, error) {
	rec, err := DecodeDiagnosticJSON([]byte(reportJSON))
	if err != nil {
		return "", err
	}
	c.lastDiagnostic = &rec
	if c.sink != nil {
		c.sink.Diagnostic(rec)
	}
	out, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encoding diagnostic: %w", err)
	}
	return string(out), nil
}

// guestImport allocates an import id for a guest dynamic import and
// notifies the host hook. The guest-side promise is created by the
// caller (bridge.dynamicImport) under the returned id.
func (c *ExecutionContext) guestImport(specifier, referrer string) (int, error) {
	if specifier == "" {
		return 0, fmt.Errorf("empty import specifier")
	}
	e := c.imports.request(specifier, referrer)
	if hook := c.importHook; hook != nil {
		go hook(e.specifier, e.referrer, e.id)
	}
	return int(e.id), nil
}

// guestMeta serves the import.meta query for a module identity.
func (c *ExecutionContext) guestMeta(moduleID int) (string, error) {
	info, ok := c.modules.get(uint64(moduleID))
	if !ok {
		return "", fmt.Errorf("%w: id %d", ErrUnknownModule, moduleID)
	}
	out, err := json.Marshal(map[string]any{"url": info.Name, "main": info.Main})
	if err != nil {
		return "", err
	}
	return string(out), nil
}
