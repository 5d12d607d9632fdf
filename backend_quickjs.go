//go:build !v8

package bridge

import "github.com/covalt/bridge/internal/quickjs"

// NewGuestRuntime creates the QuickJS-backed runtime (default build;
// memoryLimitMB is accepted for signature parity with the V8 backend and
// ignored). The returned closer releases the VM.
func NewGuestRuntime(memoryLimitMB int) (GuestRuntime, func(), error) {
	_ = memoryLimitMB
	rt, err := quickjs.New()
	if err != nil {
		return nil, nil, err
	}
	return rt, rt.Close, nil
}
