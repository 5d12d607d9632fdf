package bridge

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/andybalholm/brotli"
)

// Built-in operation ids. Hosts register their own ops above OpUserBase.
const (
	OpEcho       OperationID = 1
	OpTimestamp  OperationID = 2
	OpCompress   OperationID = 3
	OpDecompress OperationID = 4

	OpUserBase OperationID = 64
)

// maxDecompressedBytes caps OpDecompress output to keep a hostile payload
// from ballooning host memory.
const maxDecompressedBytes = 128 * 1024 * 1024 // 128 MB

// RegisterBuiltinOps installs the reference operations on a table. They
// double as the dispatch path's standard handlers: echo for loopback
// testing, timestamp for guest clocks, and brotli compress/decompress for
// large opaque payloads.
func RegisterBuiltinOps(t *OpTable) error {
	builtins := map[OperationID]OpHandler{
		OpEcho:       opEcho,
		OpTimestamp:  opTimestamp,
		OpCompress:   opCompress,
		OpDecompress: opDecompress,
	}
	for id, h := range builtins {
		if err := t.Register(id, h); err != nil {
			return err
		}
	}
	return nil
}

// opEcho returns the control payload unchanged. When a zero-copy buffer
// is supplied it is filled in place as well, up to its length.
func opEcho(_ *ExecutionContext, control, zeroCopy []byte) ([]byte, error) {
	if zeroCopy != nil {
		copy(zeroCopy, control)
	}
	out := make([]byte, len(control))
	copy(out, control)
	return out, nil
}

// opTimestamp returns the current time as big-endian unix nanoseconds.
func opTimestamp(_ *ExecutionContext, _, _ []byte) ([]byte, error) {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(time.Now().UnixNano()))
	return out, nil
}

// opCompress brotli-compresses the control payload.
func opCompress(_ *ExecutionContext, control, _ []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(control); err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finishing compression: %w", err)
	}
	return buf.Bytes(), nil
}

// opDecompress brotli-decompresses the control payload.
func opDecompress(_ *ExecutionContext, control, _ []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(control))
	out, err := io.ReadAll(io.LimitReader(r, maxDecompressedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if len(out) > maxDecompressedBytes {
		return nil, fmt.Errorf("decompressed payload exceeds %d bytes", maxDecompressedBytes)
	}
	return out, nil
}
