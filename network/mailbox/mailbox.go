// Package mailbox implements the Mailbox external collaborator (§6): a
// per-site inbound queue the arbiter driver drains during its receive
// phase, and an outbound send path used during its send phase.
package mailbox

import "time"

// Mailbox is the contract the arbiter driver depends on. It never knows
// whether the transport underneath is a live TCP peer or a fake used in
// tests.
type Mailbox interface {
	// Send delivers msg to the site addressed by `to`, tagged with subject.
	// Send is fire-and-forget: a transport error is logged, never returned,
	// matching the teacher's sendMsg (network/participant/conn.go) which
	// treats a dead peer as something the protocol must tolerate, not an
	// exceptional condition.
	Send(to string, subject string, msg []byte)

	// Recv returns the next queued message and its subject, or ok=false if
	// the queue is currently empty. Non-blocking.
	Recv() (subject string, msg []byte, ok bool)

	// RecvBlocking waits up to timeout for a message, returning ok=false if
	// none arrived in that window. Used by the driver's receive-phase tick
	// loop (§4.4): it is called once per ReceiveTick rather than blocking
	// indefinitely, so the driver can re-check its stall clock between calls.
	RecvBlocking(timeout time.Duration) (subject string, msg []byte, ok bool)

	// DeliverFront re-queues a message at the head of the inbound queue.
	// Used when the driver reads a message meant for a later round than the
	// one currently in progress, and must put it back without losing FIFO
	// order for everything already queued behind it.
	DeliverFront(subject string, msg []byte)

	// Close releases the underlying transport.
	Close() error
}
