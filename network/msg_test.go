package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestFaultMessageRoundTrip checks P5: Encode/Decode round-trips to a
// byte-identical message.
func TestFaultMessageRoundTrip(t *testing.T) {
	survivors := NewHSIDSet(3, 1, 2)
	fm := NewFaultMessage(7, 9, true, survivors)

	decoded, err := DecodeFaultMessage(fm.Encode())
	assert.NoError(t, err)
	assert.Equal(t, fm, decoded)
	assert.Equal(t, []HSID{1, 2, 3}, decoded.Survivors)
}

func TestSiteFailureMessageRoundTrip(t *testing.T) {
	survivors := NewHSIDSet(5, 4)
	safe := map[HSID]int64{2: 100, 1: -5}
	m := NewSiteFailureMessage(6, survivors, safe)

	decoded, err := DecodeSiteFailureMessage(m.Encode())
	assert.NoError(t, err)
	assert.Equal(t, m, decoded)
	assert.Equal(t, []HSID{4, 5}, decoded.Survivors)
	assert.Equal(t, []SafeTxnEntry{{Site: 1, Txn: -5}, {Site: 2, Txn: 100}}, decoded.SafeTxnIDs)
}

func TestSiteFailureForwardMessageRoundTrip(t *testing.T) {
	inner := NewSiteFailureMessage(6, NewHSIDSet(5, 4), map[HSID]int64{1: 10})
	fwd := NewSiteFailureForwardMessage(9, inner)

	decoded, err := DecodeSiteFailureForwardMessage(fwd.Encode())
	assert.NoError(t, err)
	assert.Equal(t, fwd, decoded)
}

func TestPeekTagDistinguishesEnvelopes(t *testing.T) {
	fm := NewFaultMessage(1, 2, false, NewHSIDSet())
	sm := NewSiteFailureMessage(1, NewHSIDSet(), nil)
	fwd := NewSiteFailureForwardMessage(1, sm)

	tag, err := PeekTag(fm.Encode())
	assert.NoError(t, err)
	assert.Equal(t, tagFaultMessage, tag)

	tag, err = PeekTag(sm.Encode())
	assert.NoError(t, err)
	assert.Equal(t, tagSiteFailureMessage, tag)

	tag, err = PeekTag(fwd.Encode())
	assert.NoError(t, err)
	assert.Equal(t, tagSiteFailureForwardMessage, tag)
}

func TestDecodeRejectsWrongTag(t *testing.T) {
	fm := NewFaultMessage(1, 2, false, NewHSIDSet())
	_, err := DecodeSiteFailureMessage(fm.Encode())
	assert.Error(t, err)
}

func TestDecodeRejectsTruncatedBuffer(t *testing.T) {
	fm := NewFaultMessage(1, 2, false, NewHSIDSet(4, 5, 6))
	buf := fm.Encode()
	_, err := DecodeFaultMessage(buf[:len(buf)-3])
	assert.Error(t, err)
}
