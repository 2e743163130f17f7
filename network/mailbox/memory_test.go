package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryMailboxSendRecv(t *testing.T) {
	sb := NewSwitchboard()
	a := sb.NewMailbox("a")
	b := sb.NewMailbox("b")

	a.Send("b", "SUBJ", []byte("hello"))
	subject, msg, ok := b.RecvBlocking(100 * time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, "SUBJ", subject)
	assert.Equal(t, []byte("hello"), msg)
}

func TestInMemoryMailboxRecvBlockingTimesOut(t *testing.T) {
	sb := NewSwitchboard()
	a := sb.NewMailbox("a")
	_, _, ok := a.RecvBlocking(10 * time.Millisecond)
	assert.False(t, ok)
}

func TestInMemoryMailboxDeliverFrontPreservesFIFOForRest(t *testing.T) {
	sb := NewSwitchboard()
	a := sb.NewMailbox("a")
	b := sb.NewMailbox("b")

	a.Send("b", "FIRST", []byte("1"))
	a.Send("b", "SECOND", []byte("2"))

	subject, msg, ok := b.Recv()
	assert.True(t, ok)
	assert.Equal(t, "FIRST", subject)

	b.DeliverFront(subject, msg)

	subject, _, ok = b.Recv()
	assert.True(t, ok)
	assert.Equal(t, "FIRST", subject)

	subject, _, ok = b.Recv()
	assert.True(t, ok)
	assert.Equal(t, "SECOND", subject)
}

func TestInMemoryMailboxSendToUnknownAddressIsNoOp(t *testing.T) {
	sb := NewSwitchboard()
	a := sb.NewMailbox("a")
	assert.NotPanics(t, func() {
		a.Send("ghost", "SUBJ", []byte("x"))
	})
}
