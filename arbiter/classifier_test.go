package arbiter

import (
	"testing"

	mapset "github.com/deckarep/golang-set"
	"github.com/stretchr/testify/assert"

	"meshfail/network"
)

func baseState(self network.HSID) ClassifierState {
	return ClassifierState{
		Self:             self,
		HSIDs:            network.NewHSIDSet(1, 2, 3, 4),
		FailedSites:      mapset.NewThreadUnsafeSet(),
		InTrouble:        map[network.HSID]bool{},
		StaleUnwitnessed: mapset.NewThreadUnsafeSet(),
		SeekerSurvivors:  network.NewHSIDSet(1, 2, 4),
	}
}

func TestClassifySuicide(t *testing.T) {
	st := baseState(1)
	fm := network.NewFaultMessage(2, 1, true, network.NewHSIDSet(1, 2, 4))
	assert.Equal(t, Suicide, Classify(st, fm))
}

func TestClassifyAlreadyFailed(t *testing.T) {
	st := baseState(1)
	st.FailedSites = network.NewHSIDSet(3)
	fm := network.NewFaultMessage(2, 3, true, network.NewHSIDSet(1, 2, 4))
	assert.Equal(t, AlreadyFailed, Classify(st, fm))
}

func TestClassifyReporterFailed(t *testing.T) {
	st := baseState(1)
	st.FailedSites = network.NewHSIDSet(2)
	fm := network.NewFaultMessage(2, 3, true, network.NewHSIDSet(1, 4))
	assert.Equal(t, ReporterFailed, Classify(st, fm))
}

func TestClassifyUnknown(t *testing.T) {
	st := baseState(1)
	fm := network.NewFaultMessage(2, 99, true, network.NewHSIDSet(1, 2, 4))
	assert.Equal(t, Unknown, Classify(st, fm))
}

func TestClassifyReporterUnknown(t *testing.T) {
	st := baseState(1)
	fm := network.NewFaultMessage(99, 3, true, network.NewHSIDSet(1, 2, 4))
	assert.Equal(t, ReporterUnknown, Classify(st, fm))
}

func TestClassifySelfUnwitnessed(t *testing.T) {
	st := baseState(1)
	fm := network.NewFaultMessage(1, 3, false, network.NewHSIDSet(1, 2, 4))
	assert.Equal(t, SelfUnwitnessed, Classify(st, fm))
}

func TestClassifyAlreadyKnowWitnessed(t *testing.T) {
	st := baseState(1)
	st.InTrouble = map[network.HSID]bool{3: true}
	fm := network.NewFaultMessage(2, 3, false, network.NewHSIDSet(1, 2, 4))
	assert.Equal(t, AlreadyKnow, Classify(st, fm))
}

func TestClassifyAlreadyKnowSameWitnessState(t *testing.T) {
	st := baseState(1)
	st.InTrouble = map[network.HSID]bool{3: false}
	fm := network.NewFaultMessage(2, 3, false, network.NewHSIDSet(1, 2, 4))
	assert.Equal(t, AlreadyKnow, Classify(st, fm))
}

func TestClassifyStaleUnwitnessed(t *testing.T) {
	st := baseState(1)
	st.StaleUnwitnessed = network.NewHSIDSet(3)
	st.FailedSites = network.NewHSIDSet(4)
	fm := network.NewFaultMessage(2, 3, false, network.NewHSIDSet(4))
	assert.Equal(t, StaleUnwitnessed, Classify(st, fm))
}

func TestClassifyDoNot(t *testing.T) {
	st := baseState(1)
	fm := network.NewFaultMessage(2, 3, true, network.NewHSIDSet(1, 2, 4))
	assert.Equal(t, DoNot, Classify(st, fm))
}

// TestClassifyIdempotent checks P6: unchanged state yields the same verdict
// on repeated application.
func TestClassifyIdempotent(t *testing.T) {
	st := baseState(1)
	fm := network.NewFaultMessage(2, 3, true, network.NewHSIDSet(1, 2, 4))
	first := Classify(st, fm)
	second := Classify(st, fm)
	assert.Equal(t, first, second)
}
