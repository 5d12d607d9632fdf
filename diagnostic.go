package bridge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// unknownScriptName is the placeholder used when a frame carries no script
// name or source URL.
const unknownScriptName = "<unknown>"

// ExceptionReport is the engine-shaped exception report produced by the
// guest-side hook: top-level message location plus the raw stack text.
type ExceptionReport struct {
	Message       string `json:"message"`
	ResourceName  string `json:"resourceName"`
	SourceLine    string `json:"sourceLine"`
	Line          int    `json:"line"`
	StartPosition int    `json:"startPosition"`
	EndPosition   int    `json:"endPosition"`
	StartColumn   int    `json:"startColumn"`
	EndColumn     int    `json:"endColumn"`
	ErrorLevel    int    `json:"errorLevel"`
	Stack         string `json:"stack"`
}

// reStackFrame matches one engine stack line of the form
// "at fn (script:line:col)" or "at script:line:col".
var reStackFrame = regexp.MustCompile(`^\s*at\s+(?:(.+?)\s+\()?(.*?):(\d+):(\d+)\)?\s*$`)

// EncodeDiagnostic converts an engine-native exception report into a
// structured DiagnosticRecord. The transformation is pure: the same input
// always yields the same record.
//
// If the report carries no stack trace, the record still contains a single
// synthetic frame built from the message's own location, so downstream
// consumers never special-case the no-stack case.
func EncodeDiagnostic(raw ExceptionReport) DiagnosticRecord {
	rec := DiagnosticRecord{
		Message:            raw.Message,
		ScriptResourceName: raw.ResourceName,
		SourceLine:         raw.SourceLine,
		LineNumber:         raw.Line,
		StartPosition:      raw.StartPosition,
		EndPosition:        raw.EndPosition,
		ErrorLevel:         raw.ErrorLevel,
		StartColumn:        raw.StartColumn,
		EndColumn:          raw.EndColumn,
		Frames:             parseStackFrames(raw.Stack),
	}
	if len(rec.Frames) == 0 {
		rec.Frames = []StackFrame{{
			Line:       raw.Line,
			Column:     raw.StartColumn,
			ScriptName: frameScriptName(raw.ResourceName),
		}}
	}
	return rec
}

// DecodeDiagnosticJSON parses an exception report serialized by the
// guest-side errorToJSON hook and encodes it.
func DecodeDiagnosticJSON(data []byte) (DiagnosticRecord, error) {
	var raw ExceptionReport
	if err := json.Unmarshal(data, &raw); err != nil {
		return DiagnosticRecord{}, fmt.Errorf("decoding exception report: %w", err)
	}
	return EncodeDiagnostic(raw), nil
}

// parseStackFrames converts engine stack text into ordered frames. Lines
// that do not look like frames (the leading "Error: ..." line, blank
// lines) are skipped.
func parseStackFrames(stack string) []StackFrame {
	if stack == "" {
		return nil
	}
	var frames []StackFrame
	for _, line := range strings.Split(stack, "\n") {
		m := reStackFrame.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		fn := m[1]
		script := m[2]
		lineNo, _ := strconv.Atoi(m[3])
		col, _ := strconv.Atoi(m[4])

		frame := StackFrame{
			Line:       lineNo,
			Column:     col,
			ScriptName: frameScriptName(script),
			IsEval:     strings.Contains(line, "eval at"),
		}
		if strings.HasPrefix(fn, "new ") {
			frame.IsConstructor = true
			fn = strings.TrimPrefix(fn, "new ")
		}
		fn = strings.TrimPrefix(fn, "async ")
		frame.FunctionName = fn
		frame.IsInternal = script == "native" || strings.HasPrefix(script, "internal/")
		frames = append(frames, frame)
	}
	return frames
}

func frameScriptName(script string) string {
	if script == "" {
		return unknownScriptName
	}
	return script
}

// terminationDiagnostic is the structured record emitted when guest
// execution is forcibly terminated, so the host always sees a final
// diagnostic instead of an abrupt failure.
func terminationDiagnostic(resource string) DiagnosticRecord {
	return EncodeDiagnostic(ExceptionReport{
		Message:      "execution terminated",
		ResourceName: resource,
	})
}
