package bridge

import "errors"

// ErrChannelRegistered is raised into the guest when a second completion
// callback registration is attempted on the same context.
var ErrChannelRegistered = errors.New("completion callback already registered")

// completionDelivery is one queued asynchronous result: an op completion
// or a dynamic-import settlement, delivered FIFO on the context's turn.
type completionDelivery struct {
	opID    OperationID
	payload []byte
}

// completionChannel holds the single guest-side callback registration and
// the FIFO queue of undelivered completions. Delivery ordering is FIFO
// within the queue; it is otherwise unordered relative to synchronous
// dispatch calls on the same context.
type completionChannel struct {
	registered bool
	queue      []completionDelivery
}

// register marks the guest callback as installed. A second registration
// fails without touching the first.
func (c *completionChannel) register() error {
	if c.registered {
		return ErrChannelRegistered
	}
	c.registered = true
	return nil
}

// push enqueues a completion for the next pump.
func (c *completionChannel) push(opID OperationID, payload []byte) {
	c.queue = append(c.queue, completionDelivery{opID: opID, payload: payload})
}

// take removes and returns all queued deliveries in FIFO order.
func (c *completionChannel) take() []completionDelivery {
	out := c.queue
	c.queue = nil
	return out
}

// requeue puts undelivered completions back at the head of the queue,
// ahead of anything pushed since they were taken.
func (c *completionChannel) requeue(ds []completionDelivery) {
	if len(ds) == 0 {
		return
	}
	c.queue = append(append([]completionDelivery(nil), ds...), c.queue...)
}

func (c *completionChannel) pending() int { return len(c.queue) }
