package arbiter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"meshfail/configs"
	"meshfail/meshaide"
	"meshfail/network"
)

func TestLedgerSeedFromOracleUsesSentinelWhenMissing(t *testing.T) {
	l := NewLedger(1)
	aide := meshaide.NewInMemoryAide()
	aide.Set(3, 42)
	l.SeedFromOracle(map[network.HSID]bool{3: true, 4: false}, aide)

	txn, ok := l.Lookup(1, 3)
	assert.True(t, ok)
	assert.Equal(t, int64(42), txn)

	txn, ok = l.Lookup(1, 4)
	assert.True(t, ok)
	assert.Equal(t, configs.I64Min, txn)
}

func TestLedgerIngestSiteFailureSkipsSelfAndUnknown(t *testing.T) {
	l := NewLedger(1)
	hsIds := network.NewHSIDSet(1, 2, 3)
	msg := network.NewSiteFailureMessage(2, network.NewHSIDSet(2), map[network.HSID]int64{
		1:  99, // self, skipped
		3:  7,
		99: 5, // unknown to mesh, skipped
	})
	l.IngestSiteFailure(hsIds, msg)

	_, ok := l.Lookup(2, 1)
	assert.False(t, ok)
	_, ok = l.Lookup(2, 99)
	assert.False(t, ok)
	txn, ok := l.Lookup(2, 3)
	assert.True(t, ok)
	assert.Equal(t, int64(7), txn)
}

func TestLedgerCovers(t *testing.T) {
	l := NewLedger(1)
	l.Insert(2, 3, 5)
	survivors := network.NewHSIDSet(2, 4)
	subjects := network.NewHSIDSet(3)
	assert.False(t, l.Covers(survivors, subjects))

	l.Insert(4, 3, 9)
	assert.True(t, l.Covers(survivors, subjects))
}

func TestLedgerExtractMaxTakesMaxAcrossReporters(t *testing.T) {
	l := NewLedger(1)
	hsIds := network.NewHSIDSet(1, 2, 3, 4)
	l.Insert(2, 3, 5)
	l.Insert(4, 3, 11)
	l.Insert(2, 1, 100) // self as subject, must not appear in result

	result := l.ExtractMax(hsIds, network.NewHSIDSet(3, 1))
	assert.Equal(t, int64(11), result[3])
	_, hasSelf := result[1]
	assert.False(t, hasSelf)
}

func TestLedgerClearForSubjectsKeepsSurvivors(t *testing.T) {
	l := NewLedger(1)
	l.Insert(2, 3, 5)
	l.Insert(2, 4, 9)
	l.ClearForSubjects(network.NewHSIDSet(3))

	_, ok := l.Lookup(2, 3)
	assert.False(t, ok)
	txn, ok := l.Lookup(2, 4)
	assert.True(t, ok)
	assert.Equal(t, int64(9), txn)
}
