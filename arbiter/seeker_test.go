package arbiter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"meshfail/network"
)

func TestSeekerStartSeekingForExcludesWitnessed(t *testing.T) {
	s := NewSeeker(MatchingCardinality)
	alive := network.NewHSIDSet(1, 2, 3, 4)
	s.StartSeekingFor(alive, map[network.HSID]bool{3: true})
	assert.Equal(t, []network.HSID{1, 2, 4}, network.SortHSIDs(s.Survivors()))
}

func TestSeekerNextKillMatchingCardinality(t *testing.T) {
	s := NewSeeker(MatchingCardinality)
	alive := network.NewHSIDSet(1, 2, 3, 4)
	s.StartSeekingFor(alive, map[network.HSID]bool{3: true})

	// Two survivors agree S3 is the only dead site; one disagrees.
	s.Add(1, network.NewHSIDSet(1, 2, 4))
	s.Add(2, network.NewHSIDSet(1, 2, 4))
	s.Add(4, network.NewHSIDSet(1, 4))

	kill := s.NextKill()
	assert.Equal(t, []network.HSID{3}, network.SortHSIDs(kill))
}

func TestSeekerNextKillTieBreaksAscendingHSID(t *testing.T) {
	s := NewSeeker(MatchingCardinality)
	alive := network.NewHSIDSet(1, 2, 3, 4)
	s.StartSeekingFor(alive, map[network.HSID]bool{})

	// Two disjoint single-reporter opinions of equal cardinality (1 vote
	// each): smaller kill set wins first; both are singletons here, so
	// ascending hsid decides.
	s.Add(1, network.NewHSIDSet(1, 2, 3)) // declares 4 dead
	s.Add(2, network.NewHSIDSet(1, 2, 4)) // declares 3 dead

	kill := s.NextKill()
	assert.Equal(t, []network.HSID{3}, network.SortHSIDs(kill))
}

func TestSeekerNextKillEmptyWhenNoReports(t *testing.T) {
	s := NewSeeker(MatchingCardinality)
	s.StartSeekingFor(network.NewHSIDSet(1, 2, 3), map[network.HSID]bool{})
	assert.Equal(t, 0, s.NextKill().Cardinality())
}

func TestSeekerForwardingConvergesAfterMarkNotified(t *testing.T) {
	s := NewSeeker(MatchingCardinality)
	alive := network.NewHSIDSet(1, 2, 3, 4)
	s.StartSeekingFor(alive, map[network.HSID]bool{})
	s.Add(2, network.NewHSIDSet(1, 2, 4))

	assert.True(t, s.NeedForward())
	unseen := s.ForWhomSiteIsDead(2)
	assert.ElementsMatch(t, []network.HSID{1, 4}, network.SortHSIDs(unseen))

	s.MarkNotified(2, unseen)
	assert.False(t, s.NeedForward())
}

func TestSeekerClearResetsState(t *testing.T) {
	s := NewSeeker(MatchingCardinality)
	s.StartSeekingFor(network.NewHSIDSet(1, 2), map[network.HSID]bool{})
	s.Add(1, network.NewHSIDSet(1, 2))
	s.Clear()
	// Reset to empty, not nil: Survivors() must stay callable (the driver's
	// classifierState calls it) before the next StartSeekingFor.
	assert.Empty(t, s.reports)
	assert.NotPanics(t, func() { s.Survivors() })
	assert.Equal(t, 0, s.Survivors().Cardinality())
}
