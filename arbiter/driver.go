// Package arbiter implements the Mesh Failure Arbiter: the Agreement
// Seeker, Ledger, Discard Classifier and the top-level Arbiter Driver that
// ties them together (§4).
package arbiter

import (
	"time"

	mapset "github.com/deckarep/golang-set"
	lock "github.com/viney-shih/go-lock"
	"golang.org/x/sync/errgroup"

	"meshfail/configs"
	"meshfail/meshaide"
	"meshfail/network"
	"meshfail/network/mailbox"
)

// Arbiter is the single-threaded state machine driving reconfigureOnFault
// (§4.4). It owns the in-trouble table, stale-unwitnessed set, and
// forward-candidate table (§2). A CAS mutex (github.com/viney-shih/go-lock)
// guards that mutable state, grounded on the teacher's
// network/detector/rlsm.go LevelStateMachine and storage/txn.go DBTxn: both
// use lock.NewCASMutex() to guard a single-writer state machine where a
// blocked TryLock is itself diagnostic information, which §4.4's stall
// reporting requirement can surface. Broadcast fan-outs (send phase,
// forwarding, dangler notification) run each peer's send concurrently via
// golang.org/x/sync/errgroup rather than a sequential loop, so one slow
// dial doesn't serialize behind the others.
type Arbiter struct {
	self      network.HSID
	addresses map[network.HSID]string // hsid -> dialable mailbox address

	mb   mailbox.Mailbox
	aide meshaide.MeshAide
	log  *RoundLog

	latch lock.CASMutex

	failedSites       mapset.Set
	staleUnwitnessed  mapset.Set
	inTrouble         map[network.HSID]bool
	forwardCandidates map[network.HSID]*network.SiteFailureForwardMessage

	ledger *Ledger
	seeker *Seeker
	probe  *Probe
}

// New constructs an Arbiter for site self, communicating through mb and
// consulting aide for safe-txn watermarks. addresses maps every peer hsid
// to its dialable mailbox address (membership discovery is out of scope,
// §1 Non-goals — the caller owns how that table is populated and kept
// current). walDir enables the round audit log; pass "" to disable it
// (tests typically do).
func New(self network.HSID, addresses map[network.HSID]string, mb mailbox.Mailbox, aide meshaide.MeshAide, walDir string) (*Arbiter, error) {
	roundLog, err := NewRoundLog(walDir)
	if err != nil {
		return nil, err
	}
	return &Arbiter{
		self:              self,
		addresses:         addresses,
		mb:                mb,
		aide:              aide,
		log:               roundLog,
		latch:             lock.NewCASMutex(),
		failedSites:       mapset.NewThreadUnsafeSet(),
		staleUnwitnessed:  mapset.NewThreadUnsafeSet(),
		inTrouble:         make(map[network.HSID]bool),
		forwardCandidates: make(map[network.HSID]*network.SiteFailureForwardMessage),
		ledger:            NewLedger(self),
		seeker:            NewSeeker(MatchingCardinality),
		probe:             &Probe{},
	}, nil
}

// IsInArbitration reports whether a round is currently open (§6).
func (a *Arbiter) IsInArbitration() bool {
	return a.probe.IsInArbitration()
}

// FailedSitesCount returns the monotone count of evicted sites (§6).
func (a *Arbiter) FailedSitesCount() uint32 {
	return a.probe.FailedSitesCount()
}

// ReconfigureOnFault is the protocol's top-level loop (§4.4). Returns a
// non-empty map on a committed decision, or an empty map when the caller
// should retain its message pump and try again.
func (a *Arbiter) ReconfigureOnFault(hsIds mapset.Set, fm *network.FaultMessage) map[network.HSID]int64 {
	a.latch.Lock()
	defer a.latch.Unlock()

	if !a.drainFaultQueue(hsIds, fm) {
		return map[network.HSID]int64{}
	}

	a.seeker.StartSeekingFor(hsIds.Difference(a.failedSites), a.inTrouble)
	a.ledger.SeedFromOracle(a.inTrouble, a.aide)

	a.sendPhase()

	if !a.receivePhase(hsIds) {
		// concurrent fault forced an abort; the pushed-back message will
		// drive the next call.
		return map[network.HSID]int64{}
	}

	result := a.extractDecision(hsIds)
	a.notifyDanglers(result)
	a.commit(hsIds, result)
	return result
}

// drainFaultQueue applies the classifier to fm and any further FaultMessages
// waiting on the FAILURE subject, folding actionable ones into in_trouble.
// Returns false if nothing passed the classifier (§4.4 step 1).
func (a *Arbiter) drainFaultQueue(hsIds mapset.Set, fm *network.FaultMessage) bool {
	any := false
	next := fm
	for next != nil {
		st := a.classifierState(hsIds)
		verdict := Classify(st, next)
		LogVerdict(verdict, next)
		if verdict == DoNot {
			existing, known := a.inTrouble[next.FailedSite]
			if !known || (!existing && next.Witnessed) {
				a.inTrouble[next.FailedSite] = next.Witnessed
			}
			any = true
		}
		next = a.pollFaultSubject()
	}
	a.probe.setInTroubleCount(len(a.inTrouble))
	return any
}

func (a *Arbiter) classifierState(hsIds mapset.Set) ClassifierState {
	return ClassifierState{
		Self:             a.self,
		HSIDs:            hsIds,
		FailedSites:      a.failedSites,
		InTrouble:        a.inTrouble,
		StaleUnwitnessed: a.staleUnwitnessed,
		SeekerSurvivors:  a.seeker.Survivors(),
	}
}

func (a *Arbiter) pollFaultSubject() *network.FaultMessage {
	subject, msg, ok := a.mb.Recv()
	if !ok || subject != configs.Failure {
		if ok {
			a.mb.DeliverFront(subject, msg)
		}
		return nil
	}
	fm, err := network.DecodeFaultMessage(msg)
	if err != nil {
		configs.Warn(false, err.Error())
		return nil
	}
	return fm
}

// sendPhase builds and broadcasts this site's SiteFailureMessage to every
// survivor, including self (§4.4 step 3).
func (a *Arbiter) sendPhase() {
	safe := make(map[network.HSID]int64, len(a.inTrouble))
	for peer := range a.inTrouble {
		if peer == a.self {
			continue
		}
		txn, ok := a.ledger.Lookup(a.self, peer)
		if !ok {
			txn = configs.I64Min
		}
		safe[peer] = txn
	}
	msg := network.NewSiteFailureMessage(a.self, a.seeker.Survivors(), safe)
	encoded := msg.Encode()
	var eg errgroup.Group
	for s := range a.seeker.Survivors().Iter() {
		dest := s.(network.HSID)
		eg.Go(func() error {
			a.mb.Send(a.addresses[dest], configs.SiteFailureUpdate, encoded)
			return nil
		})
	}
	eg.Wait()
}

// receivePhase blocks on the mailbox with a 5ms tick, filtered on FAILURE,
// SITE_FAILURE_UPDATE and SITE_FAILURE_FORWARD, until either the round has
// enough ledger coverage and nothing left to forward, or a concurrent fault
// forces an abort (§4.4 step 4). Returns false on abort.
func (a *Arbiter) receivePhase(hsIds mapset.Set) bool {
	start := time.Now()
	lastStallLog := time.Time{}

	for {
		subject, msg, ok := a.mb.RecvBlocking(configs.ReceiveTick)
		if ok {
			switch subject {
			case configs.SiteFailureUpdate:
				a.handleSiteFailureUpdate(hsIds, msg)
			case configs.SiteFailureForward:
				a.handleSiteFailureForward(hsIds, msg)
			case configs.Failure:
				if !a.handleConcurrentFault(hsIds, subject, msg) {
					return false
				}
			}
		} else {
			a.aide.SendHeartbeats(network.SortHSIDs(hsIds))
		}

		if time.Since(start) >= configs.StallThreshold &&
			time.Since(lastStallLog) >= configs.StallLogInterval {
			a.logStall(hsIds)
			lastStallLog = time.Now()
		}

		if a.haveEnough(hsIds) {
			a.forwardOutstanding()
			if !a.seeker.NeedForward() {
				return true
			}
		}
	}
}

func (a *Arbiter) handleSiteFailureUpdate(hsIds mapset.Set, raw []byte) {
	msg, err := network.DecodeSiteFailureMessage(raw)
	if err != nil {
		configs.Warn(false, err.Error())
		return
	}
	if !hsIds.Contains(msg.Source) || a.failedSites.Contains(msg.Source) {
		return
	}
	a.ledger.IngestSiteFailure(hsIds, msg)
	a.seeker.Add(msg.Source, msg.SurvivorSet())
	a.forwardCandidates[msg.Source] = network.NewSiteFailureForwardMessage(msg.Source, msg)
}

func (a *Arbiter) handleSiteFailureForward(hsIds mapset.Set, raw []byte) {
	fwd, err := network.DecodeSiteFailureForwardMessage(raw)
	if err != nil {
		configs.Warn(false, err.Error())
		return
	}
	a.forwardCandidates[fwd.Reporter] = fwd
	survivors := a.seeker.Survivors()
	if hsIds.Contains(fwd.Inner.Source) && !survivors.Contains(fwd.Reporter) &&
		!a.failedSites.Contains(fwd.Reporter) {
		a.seeker.Add(fwd.Inner.Source, fwd.Inner.SurvivorSet())
	}
}

// handleConcurrentFault applies the classifier to an in-round FaultMessage;
// a DoNot verdict forces an abort per §4.4 step 4's FAILURE branch.
func (a *Arbiter) handleConcurrentFault(hsIds mapset.Set, subject string, raw []byte) bool {
	fm, err := network.DecodeFaultMessage(raw)
	if err != nil {
		configs.Warn(false, err.Error())
		return true
	}
	st := a.classifierState(hsIds)
	verdict := Classify(st, fm)
	LogVerdict(verdict, fm)
	if verdict == DoNot {
		a.mb.DeliverFront(subject, raw)
		return false
	}
	return true
}

func (a *Arbiter) haveEnough(hsIds mapset.Set) bool {
	subjects := mapset.NewThreadUnsafeSet()
	for peer := range a.inTrouble {
		subjects.Add(peer)
	}
	return a.ledger.Covers(a.seeker.Survivors(), subjects)
}

func (a *Arbiter) forwardOutstanding() {
	for reporter, msg := range a.forwardCandidates {
		unseenBy := a.seeker.ForWhomSiteIsDead(reporter)
		if unseenBy.Cardinality() == 0 {
			delete(a.forwardCandidates, reporter)
			continue
		}
		encoded := msg.Encode()
		var eg errgroup.Group
		for s := range unseenBy.Iter() {
			dest := s.(network.HSID)
			eg.Go(func() error {
				a.mb.Send(a.addresses[dest], configs.SiteFailureForward, encoded)
				return nil
			})
		}
		eg.Wait()
		a.seeker.MarkNotified(reporter, unseenBy)
		delete(a.forwardCandidates, reporter)
	}
}

func (a *Arbiter) logStall(hsIds mapset.Set) {
	for s := range a.seeker.Survivors().Iter() {
		survivor := s.(network.HSID)
		for peer := range a.inTrouble {
			if survivor == peer {
				continue
			}
			if _, ok := a.ledger.Lookup(survivor, peer); !ok {
				configs.StallPrintf("receive phase stalled: missing (%d,%d)", survivor, peer)
			}
		}
	}
}

// extractDecision applies the strategy and computes the final watermark map
// (§4.4 step 5).
func (a *Arbiter) extractDecision(hsIds mapset.Set) map[network.HSID]int64 {
	toBeKilled := a.seeker.NextKill()
	return a.ledger.ExtractMax(hsIds, toBeKilled)
}

// notifyDanglers tells other survivors we are severing links to sites we
// merely relayed (never witnessed) for ourselves (§4.4 step 6).
func (a *Arbiter) notifyDanglers(result map[network.HSID]int64) {
	hasUnwitnessed := false
	for _, witnessed := range a.inTrouble {
		if !witnessed {
			hasUnwitnessed = true
			break
		}
	}
	if !hasUnwitnessed {
		return
	}
	killed := mapset.NewThreadUnsafeSet()
	for subj := range result {
		killed.Add(subj)
	}
	remaining := a.seeker.Survivors().Difference(killed)
	msg := network.NewSiteFailureMessage(a.self, remaining, result)
	encoded := msg.Encode()
	var eg errgroup.Group
	for s := range a.seeker.Survivors().Iter() {
		dest := s.(network.HSID)
		if dest == a.self {
			continue
		}
		eg.Go(func() error {
			a.mb.Send(a.addresses[dest], configs.SiteFailureUpdate, encoded)
			return nil
		})
	}
	eg.Wait()
}

// commit folds the round's result into permanent state and clears
// transient round state (§4.4 step 7).
func (a *Arbiter) commit(hsIds mapset.Set, result map[network.HSID]int64) {
	killed := mapset.NewThreadUnsafeSet()
	for subj := range result {
		a.failedSites.Add(subj)
		killed.Add(subj)
	}

	for peer, witnessed := range a.inTrouble {
		if !witnessed && !a.failedSites.Contains(peer) {
			a.staleUnwitnessed.Add(peer)
		}
	}

	if a.log != nil {
		configs.CheckError(a.log.Append(killed, result))
	}

	a.inTrouble = make(map[network.HSID]bool)
	a.forwardCandidates = make(map[network.HSID]*network.SiteFailureForwardMessage)
	a.ledger.ClearForSubjects(killed)
	a.seeker.Clear()

	a.probe.setInTroubleCount(0)
	a.probe.setFailedCount(a.failedSites.Cardinality())
}
