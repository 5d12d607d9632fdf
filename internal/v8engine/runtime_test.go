//go:build v8

package v8engine

import (
	"errors"
	"testing"
)

var errTest = errors.New("test failure")

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(rt.Close)
	return rt
}

func TestRuntime_EvalRoundTrips(t *testing.T) {
	rt := newTestRuntime(t)

	n, err := rt.EvalInt("6 * 7")
	if err != nil || n != 42 {
		t.Errorf("EvalInt = %d, %v, want 42", n, err)
	}
	s, err := rt.EvalString("'a' + 'b'")
	if err != nil || s != "ab" {
		t.Errorf("EvalString = %q, %v, want ab", s, err)
	}
	b, err := rt.EvalBool("1 < 2")
	if err != nil || !b {
		t.Errorf("EvalBool = %v, %v, want true", b, err)
	}
}

func TestRuntime_RegisterFunc(t *testing.T) {
	rt := newTestRuntime(t)

	if err := rt.RegisterFunc("shout", func(s string) string { return s + "!" }); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	got, err := rt.EvalString("shout('hey')")
	if err != nil {
		t.Fatalf("EvalString: %v", err)
	}
	if got != "hey!" {
		t.Errorf("shout = %q, want hey!", got)
	}
}

func TestRuntime_RegisterFuncErrorThrows(t *testing.T) {
	rt := newTestRuntime(t)

	rt.RegisterFunc("failer", func(s string) (string, error) {
		return "", errTest
	})
	caught, err := rt.EvalBool("(function() { try { failer('x'); return false; } catch (e) { return true; } })()")
	if err != nil {
		t.Fatalf("EvalBool: %v", err)
	}
	if !caught {
		t.Error("handler error was not thrown into the guest")
	}
}

func TestRuntime_SetGlobal(t *testing.T) {
	rt := newTestRuntime(t)

	if err := rt.SetGlobal("answer", int32(42)); err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}
	n, err := rt.EvalInt("answer")
	if err != nil || n != 42 {
		t.Errorf("answer = %d, %v, want 42", n, err)
	}
}
