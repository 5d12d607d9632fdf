package bridge

import (
	"fmt"
	"strings"
	"testing"
)

// fakeRuntime implements GuestRuntime in-process for tests. It records
// every evaluated script and registered function; canned results drive
// the EvalString/EvalBool/EvalInt paths.
type fakeRuntime struct {
	evals      []string
	registered map[string]any
	globals    map[string]any

	evalErr            error
	failEvalContaining string
	evalStringOut      string
	evalStringErr      error

	microtaskRuns int
	terminated    bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		registered: make(map[string]any),
		globals:    make(map[string]any),
	}
}

func (f *fakeRuntime) Eval(js string) error {
	if f.evalErr != nil {
		return f.evalErr
	}
	if f.failEvalContaining != "" && strings.Contains(js, f.failEvalContaining) {
		return fmt.Errorf("eval rejected script containing %q", f.failEvalContaining)
	}
	f.evals = append(f.evals, js)
	return nil
}

func (f *fakeRuntime) EvalString(js string) (string, error) {
	if f.evalStringErr != nil {
		return "", f.evalStringErr
	}
	f.evals = append(f.evals, js)
	return f.evalStringOut, nil
}

func (f *fakeRuntime) EvalBool(js string) (bool, error) {
	f.evals = append(f.evals, js)
	return false, nil
}

func (f *fakeRuntime) EvalInt(js string) (int, error) {
	f.evals = append(f.evals, js)
	return 0, nil
}

func (f *fakeRuntime) RegisterFunc(name string, fn any) error {
	f.registered[name] = fn
	return nil
}

func (f *fakeRuntime) SetGlobal(name string, value any) error {
	f.globals[name] = value
	return nil
}

func (f *fakeRuntime) RunMicrotasks() { f.microtaskRuns++ }

func (f *fakeRuntime) Terminate() { f.terminated = true }

// evaledContaining reports whether any recorded script contains substr.
func (f *fakeRuntime) evaledContaining(substr string) bool {
	for _, js := range f.evals {
		if strings.Contains(js, substr) {
			return true
		}
	}
	return false
}

// newTestContext builds a context over a fake runtime with the given op
// table (nil for an empty one).
func newTestContext(t *testing.T, ops *OpTable) (*ExecutionContext, *fakeRuntime) {
	t.Helper()
	rt := newFakeRuntime()
	ctx, err := NewExecutionContext(rt, ops, ContextConfig{})
	if err != nil {
		t.Fatalf("NewExecutionContext: %v", err)
	}
	t.Cleanup(func() { _ = ctx.Teardown() })
	return ctx, rt
}
