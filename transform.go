package bridge

import (
	"fmt"
	"path"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// loaderForSpecifier picks the esbuild loader from the specifier's
// extension. Plain JS passes through untouched.
func loaderForSpecifier(specifier string) (esbuild.Loader, bool) {
	switch strings.ToLower(path.Ext(specifier)) {
	case ".ts", ".mts":
		return esbuild.LoaderTS, true
	case ".tsx":
		return esbuild.LoaderTSX, true
	case ".jsx":
		return esbuild.LoaderJSX, true
	case ".json":
		return esbuild.LoaderJSON, true
	default:
		return esbuild.LoaderJS, false
	}
}

// TransformModuleSource lowers TypeScript/JSX/JSON sources to plain
// JavaScript before module registration. JavaScript sources are returned
// as-is. Transform failures carry the first esbuild message with its
// location, shaped like any other bridge diagnostic.
func TransformModuleSource(specifier, source string) (string, error) {
	loader, needed := loaderForSpecifier(specifier)
	if !needed {
		return source, nil
	}
	result := esbuild.Transform(source, esbuild.TransformOptions{
		Loader:     loader,
		Format:     esbuild.FormatESModule,
		Sourcefile: specifier,
	})
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("transforming %q: %s", specifier, transformError(result.Errors[0]))
	}
	return string(result.Code), nil
}

// transformError formats one esbuild message with its source location.
func transformError(msg esbuild.Message) string {
	if msg.Location == nil {
		return msg.Text
	}
	return fmt.Sprintf("%s (%s:%d:%d)", msg.Text, msg.Location.File, msg.Location.Line, msg.Location.Column)
}

// TransformDiagnostic converts an esbuild failure message into the bridge
// diagnostic shape, so compile-time and runtime failures serialize alike.
func TransformDiagnostic(msg esbuild.Message) DiagnosticRecord {
	raw := ExceptionReport{Message: msg.Text}
	if msg.Location != nil {
		raw.ResourceName = msg.Location.File
		raw.SourceLine = msg.Location.LineText
		raw.Line = msg.Location.Line
		raw.StartColumn = msg.Location.Column
		raw.EndColumn = msg.Location.Column + msg.Location.Length
	}
	return EncodeDiagnostic(raw)
}
