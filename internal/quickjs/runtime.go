//go:build !v8

// Package quickjs adapts the QuickJS engine (modernc.org/quickjs) to the
// bridge's GuestRuntime surface. This is the default backend; build with
// -tags v8 for the V8 backend.
package quickjs

import (
	"fmt"

	"modernc.org/quickjs"
)

// Runtime wraps one QuickJS VM. Not safe for concurrent use; the owning
// execution context serializes access.
type Runtime struct {
	vm *quickjs.VM
}

// New creates a fresh VM.
func New() (*Runtime, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}
	return &Runtime{vm: vm}, nil
}

// Close releases the VM.
func (r *Runtime) Close() {
	if r.vm != nil {
		r.vm.Close()
	}
}

// Eval evaluates JavaScript and discards the result.
func (r *Runtime) Eval(js string) error {
	v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

// EvalString evaluates JavaScript and returns the result as a Go string.
func (r *Runtime) EvalString(js string) (string, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprint(result), nil
}

// EvalBool evaluates JavaScript and returns the result as a Go bool.
func (r *Runtime) EvalBool(js string) (bool, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", result)
	}
	return b, nil
}

// EvalInt evaluates JavaScript and returns the result as a Go int.
func (r *Runtime) EvalInt(js string) (int, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return 0, err
	}
	switch v := result.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected int, got %T", result)
	}
}

// RegisterFunc registers a Go function as a global JavaScript function.
// Multi-value Go returns (T, error) are unwrapped in a JS shim: on
// success the call returns T, on error it throws a TypeError. The
// QuickJS Go wrapper would otherwise return [value, error] arrays.
func (r *Runtime) RegisterFunc(name string, fn any) error {
	rawName := "__raw_" + name
	if err := r.vm.RegisterFunc(rawName, fn, false); err != nil {
		return err
	}
	wrapJS := fmt.Sprintf(`(function() {
	var raw = globalThis[%q];
	globalThis[%q] = function() {
		var r = raw.apply(this, arguments);
		if (Array.isArray(r)) {
			if (r[1] !== null && r[1] !== undefined) throw new TypeError("calling %s: " + r[1]);
			return r[0];
		}
		return r;
	};
	delete globalThis[%q];
})()`, rawName, name, name, rawName)
	return r.Eval(wrapJS)
}

// SetGlobal sets a global property on the VM's global object.
func (r *Runtime) SetGlobal(name string, value any) error {
	atom, err := r.vm.NewAtom(name)
	if err != nil {
		return fmt.Errorf("creating atom %q: %w", name, err)
	}
	glob := r.vm.GlobalObject()
	defer glob.Free()
	return glob.SetProperty(atom, value)
}

// RunMicrotasks pumps the QuickJS job queue.
func (r *Runtime) RunMicrotasks() {
	executePendingJobs(r.vm)
}

// VM returns the underlying QuickJS VM for engine-specific wiring.
func (r *Runtime) VM() *quickjs.VM { return r.vm }
