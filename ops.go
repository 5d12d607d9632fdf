package bridge

import (
	"errors"
	"fmt"
)

// ErrUnknownOp is raised into the guest when dispatch is called with an
// operation id that was never registered.
var ErrUnknownOp = errors.New("unknown operation id")

// OpTable maps operation ids to host-side handlers. The table is built
// once at startup and is immutable afterwards; registration is not safe
// for concurrent use and is expected to happen before any dispatch.
type OpTable struct {
	handlers map[OperationID]OpHandler
	sealed   bool
}

// NewOpTable returns an empty dispatch table.
func NewOpTable() *OpTable {
	return &OpTable{handlers: make(map[OperationID]OpHandler)}
}

// Register adds a handler under id. Registering a duplicate id or
// registering after the table is sealed is a programming error.
func (t *OpTable) Register(id OperationID, h OpHandler) error {
	if t.sealed {
		return fmt.Errorf("op table is sealed, cannot register op %d", id)
	}
	if h == nil {
		return fmt.Errorf("nil handler for op %d", id)
	}
	if _, dup := t.handlers[id]; dup {
		return fmt.Errorf("op %d already registered", id)
	}
	t.handlers[id] = h
	return nil
}

// Seal freezes the table. Called by the context constructor.
func (t *OpTable) Seal() { t.sealed = true }

// Len returns the number of registered operations.
func (t *OpTable) Len() int { return len(t.handlers) }

// dispatch invokes the handler for id with the borrowed control buffer and
// optional zero-copy buffer. The returned outcome is one of:
//
//   - Immediate: the handler produced bytes; they are placed through the
//     arena and the handle is attached to the outcome.
//   - Pending: the handler returned no bytes and no error; a completion
//     tagged with id will arrive on the completion channel later.
//   - Raised: the handler failed, or id is unknown. The returned error is
//     what the caller raises into the guest; dispatch itself never wraps
//     or swallows handler failures.
func (t *OpTable) dispatch(ctx *ExecutionContext, id OperationID, control, zeroCopy []byte) (Outcome, error) {
	h, ok := t.handlers[id]
	if !ok {
		return Outcome{Kind: OutcomeRaised}, fmt.Errorf("%w: %d", ErrUnknownOp, id)
	}
	resp, err := h(ctx, control, zeroCopy)
	if err != nil {
		return Outcome{Kind: OutcomeRaised}, err
	}
	if resp == nil {
		return Outcome{Kind: OutcomePending}, nil
	}
	return Outcome{Kind: OutcomeImmediate, Response: ctx.arena.place(resp)}, nil
}
