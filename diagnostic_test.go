package bridge

import (
	"encoding/json"
	"testing"
)

func TestEncodeDiagnostic_ParsesFrames(t *testing.T) {
	raw := ExceptionReport{
		Message:      "Uncaught TypeError: x is not a function",
		ResourceName: "app.js",
		Line:         12,
		StartColumn:  4,
		Stack: `TypeError: x is not a function
    at handler (app.js:12:5)
    at dispatch (lib/router.js:40:13)
    at main.js:3:1`,
	}

	rec := EncodeDiagnostic(raw)
	if len(rec.Frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(rec.Frames))
	}

	want := []StackFrame{
		{Line: 12, Column: 5, FunctionName: "handler", ScriptName: "app.js"},
		{Line: 40, Column: 13, FunctionName: "dispatch", ScriptName: "lib/router.js"},
		{Line: 3, Column: 1, ScriptName: "main.js"},
	}
	for i, w := range want {
		g := rec.Frames[i]
		if g.Line != w.Line || g.Column != w.Column || g.FunctionName != w.FunctionName || g.ScriptName != w.ScriptName {
			t.Errorf("frame %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestEncodeDiagnostic_SyntheticFrameWithoutStack(t *testing.T) {
	raw := ExceptionReport{
		Message:      "boom",
		ResourceName: "worker.js",
		Line:         7,
		StartColumn:  2,
	}

	rec := EncodeDiagnostic(raw)
	if len(rec.Frames) != 1 {
		t.Fatalf("frames = %d, want 1 synthetic frame", len(rec.Frames))
	}
	f := rec.Frames[0]
	if f.Line != 7 || f.Column != 2 || f.ScriptName != "worker.js" {
		t.Errorf("synthetic frame = %+v", f)
	}
}

func TestEncodeDiagnostic_UnknownScriptName(t *testing.T) {
	rec := EncodeDiagnostic(ExceptionReport{Message: "boom"})
	if rec.Frames[0].ScriptName != unknownScriptName {
		t.Errorf("script name = %q, want %q", rec.Frames[0].ScriptName, unknownScriptName)
	}
}

func TestEncodeDiagnostic_FrameFlags(t *testing.T) {
	raw := ExceptionReport{
		Message: "boom",
		Stack: `Error: boom
    at new Widget (app.js:5:10)
    at async run (app.js:9:3)
    at internal/process:1:1`,
	}

	rec := EncodeDiagnostic(raw)
	if len(rec.Frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(rec.Frames))
	}
	if !rec.Frames[0].IsConstructor || rec.Frames[0].FunctionName != "Widget" {
		t.Errorf("constructor frame = %+v", rec.Frames[0])
	}
	if rec.Frames[1].FunctionName != "run" {
		t.Errorf("async frame function = %q, want run", rec.Frames[1].FunctionName)
	}
	if !rec.Frames[2].IsInternal {
		t.Errorf("internal frame = %+v", rec.Frames[2])
	}
}

func TestEncodeDiagnostic_Deterministic(t *testing.T) {
	raw := ExceptionReport{
		Message: "boom",
		Stack:   "Error: boom\n    at f (a.js:1:2)",
	}
	a, _ := json.Marshal(EncodeDiagnostic(raw))
	b, _ := json.Marshal(EncodeDiagnostic(raw))
	if string(a) != string(b) {
		t.Error("same report must encode to the same record")
	}
}

func TestDecodeDiagnosticJSON_RoundTrip(t *testing.T) {
	in := `{"message":"oops","resourceName":"m.js","line":2,"startColumn":1,"stack":"Error: oops\n    at m.js:2:1"}`
	rec, err := DecodeDiagnosticJSON([]byte(in))
	if err != nil {
		t.Fatalf("DecodeDiagnosticJSON: %v", err)
	}
	if rec.Message != "oops" || rec.ScriptResourceName != "m.js" {
		t.Errorf("record = %+v", rec)
	}

	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back DiagnosticRecord
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back.Frames) != len(rec.Frames) {
		t.Errorf("frames after round trip = %d, want %d", len(back.Frames), len(rec.Frames))
	}
}

func TestDecodeDiagnosticJSON_Malformed(t *testing.T) {
	if _, err := DecodeDiagnosticJSON([]byte("{not json")); err == nil {
		t.Error("malformed report should error")
	}
}

func TestTerminationDiagnostic(t *testing.T) {
	rec := terminationDiagnostic("worker.js")
	if rec.Message != "execution terminated" {
		t.Errorf("message = %q", rec.Message)
	}
	if rec.ScriptResourceName != "worker.js" {
		t.Errorf("resource = %q, want worker.js", rec.ScriptResourceName)
	}
	if len(rec.Frames) != 1 {
		t.Errorf("frames = %d, want 1 synthetic frame", len(rec.Frames))
	}
}
