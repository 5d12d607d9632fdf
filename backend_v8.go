//go:build v8

package bridge

import "github.com/covalt/bridge/internal/v8engine"

// NewGuestRuntime creates the V8-backed runtime (build tag v8). The
// returned closer disposes the isolate and context.
func NewGuestRuntime(memoryLimitMB int) (GuestRuntime, func(), error) {
	rt, err := v8engine.New(memoryLimitMB)
	if err != nil {
		return nil, nil, err
	}
	return rt, rt.Close, nil
}
