package arbiter

import (
	"sort"

	mapset "github.com/deckarep/golang-set"

	"meshfail/network"
)

// Seeker is the Agreement Seeker (§4.2): a pure data structure that
// aggregates per-peer witness reports and computes the kill set under the
// configured arbitration Strategy.
type Seeker struct {
	strategy  Strategy
	universe  mapset.Set // alive set as of startSeekingFor
	survivors mapset.Set // universe minus witnessed in_trouble, fixed for the round

	// reports holds, for each reporter who has add()-ed a report, the
	// survivor set that reporter claims. The reporter's declared-dead set
	// is universe minus this.
	reports map[network.HSID]mapset.Set

	// notified tracks, for each reporter, which sites are already known to
	// have received that reporter's report (seeded with the reporter
	// itself). forWhomSiteIsDead/needForward derive from the gap between
	// this and survivors.
	notified map[network.HSID]mapset.Set
}

func NewSeeker(strategy Strategy) *Seeker {
	return &Seeker{
		strategy:  strategy,
		universe:  mapset.NewThreadUnsafeSet(),
		survivors: mapset.NewThreadUnsafeSet(),
		reports:   make(map[network.HSID]mapset.Set),
		notified:  make(map[network.HSID]mapset.Set),
	}
}

// StartSeekingFor initializes the seeker for a new round (§4.2).
func (s *Seeker) StartSeekingFor(alive mapset.Set, inTrouble map[network.HSID]bool) {
	witnessed := mapset.NewThreadUnsafeSet()
	for hsid, w := range inTrouble {
		if w {
			witnessed.Add(hsid)
		}
	}
	s.universe = alive.Clone()
	s.survivors = alive.Difference(witnessed)
	s.reports = make(map[network.HSID]mapset.Set)
	s.notified = make(map[network.HSID]mapset.Set)
}

// Add records a reporter's asserted survivor view, from either a
// SiteFailureMessage or the inner message of a SiteFailureForwardMessage.
func (s *Seeker) Add(reporter network.HSID, claimedSurvivors mapset.Set) {
	s.reports[reporter] = claimedSurvivors.Intersect(s.universe)
	if _, ok := s.notified[reporter]; !ok {
		s.notified[reporter] = mapset.NewThreadUnsafeSet()
	}
	s.notified[reporter].Add(reporter)
}

// Survivors returns the round's current best-known survivor set.
func (s *Seeker) Survivors() mapset.Set {
	return s.survivors.Clone()
}

// ForWhomSiteIsDead returns the survivors that have not yet been told
// reporter's report, to drive forwarding (§4.2, §4.4 step 4).
func (s *Seeker) ForWhomSiteIsDead(reporter network.HSID) mapset.Set {
	known, ok := s.notified[reporter]
	if !ok {
		return s.survivors.Clone()
	}
	return s.survivors.Difference(known)
}

// MarkNotified records that recipients now know reporter's report. This is
// the minimal addition needed to make ForWhomSiteIsDead/NeedForward
// converge once the driver has actually forwarded a message (§4.4 step 4's
// "send msg to unseenBy and remove the candidate"); it does not change the
// seven named operations, only how their state advances.
func (s *Seeker) MarkNotified(reporter network.HSID, recipients mapset.Set) {
	if _, ok := s.notified[reporter]; !ok {
		s.notified[reporter] = mapset.NewThreadUnsafeSet()
	}
	s.notified[reporter] = s.notified[reporter].Union(recipients)
}

// NeedForward reports whether any reporter still has uncovered recipients.
func (s *Seeker) NeedForward() bool {
	for reporter := range s.reports {
		if s.ForWhomSiteIsDead(reporter).Cardinality() > 0 {
			return true
		}
	}
	return false
}

// Clear drops all per-round state (§4.2). survivors/universe are reset to
// empty sets, not nil: the driver's classifierState calls Survivors() at the
// start of the next round, before the next StartSeekingFor, and
// mapset.Set is an interface — a nil value has no
// concrete type to dispatch Clone()/Difference() on and would panic.
func (s *Seeker) Clear() {
	s.universe = mapset.NewThreadUnsafeSet()
	s.survivors = mapset.NewThreadUnsafeSet()
	s.reports = make(map[network.HSID]mapset.Set)
	s.notified = make(map[network.HSID]mapset.Set)
}

// NextKill applies the configured strategy and returns the set of sites to
// evict (§4.2). For MatchingCardinality: group reports by their declared-dead
// set, pick the group with the most surviving reporters in agreement; ties
// break toward the smaller kill set, further ties toward ascending-hsid
// lexicographic order (§9 Open Question, pinned here).
func (s *Seeker) NextKill() mapset.Set {
	switch s.strategy {
	case MatchingCardinality:
		return s.nextKillMatchingCardinality()
	default:
		return mapset.NewThreadUnsafeSet()
	}
}

type killCandidate struct {
	deadSet mapset.Set
	sorted  []network.HSID
	count   int
}

func (s *Seeker) nextKillMatchingCardinality() mapset.Set {
	groups := make(map[string]*killCandidate)
	for reporter, claimedSurvivors := range s.reports {
		if !s.survivors.Contains(reporter) {
			// only surviving reporters' agreement counts toward cardinality.
			continue
		}
		dead := s.universe.Difference(claimedSurvivors)
		sorted := network.SortHSIDs(dead)
		key := keyOf(sorted)
		if g, ok := groups[key]; ok {
			g.count++
		} else {
			groups[key] = &killCandidate{deadSet: dead, sorted: sorted, count: 1}
		}
	}

	if len(groups) == 0 {
		return mapset.NewThreadUnsafeSet()
	}

	candidates := make([]*killCandidate, 0, len(groups))
	for _, g := range groups {
		candidates = append(candidates, g)
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.count != b.count {
			return a.count > b.count // higher agreement wins
		}
		if len(a.sorted) != len(b.sorted) {
			return len(a.sorted) < len(b.sorted) // smaller kill set wins
		}
		return lexLess(a.sorted, b.sorted) // ascending hsid tie-break
	})
	return candidates[0].deadSet
}

func keyOf(ids []network.HSID) string {
	b := make([]byte, 0, len(ids)*9)
	for _, id := range ids {
		b = append(b, byte(id), byte(id>>8), byte(id>>16), byte(id>>24),
			byte(id>>32), byte(id>>40), byte(id>>48), byte(id>>56), '|')
	}
	return string(b)
}

func lexLess(a, b []network.HSID) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
