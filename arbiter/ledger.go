package arbiter

import (
	mapset "github.com/deckarep/golang-set"

	"meshfail/configs"
	"meshfail/meshaide"
	"meshfail/network"
)

type ledgerKey struct {
	reporter network.HSID
	subject  network.HSID
}

// Ledger is the failure_site_update_ledger (§3, §4.3): a key/value store
// mapping (reporter, subject) -> safe_txn_id.
type Ledger struct {
	self    network.HSID
	entries map[ledgerKey]int64
}

func NewLedger(self network.HSID) *Ledger {
	return &Ledger{self: self, entries: make(map[ledgerKey]int64)}
}

// Insert overwrites the entry for (reporter, subject). The driver's call
// sites never insert an entry whose subject is self or whose reporter equals
// its subject; entries with reporter == self are the local seeds written by
// SeedFromOracle and by ingesting this site's own SiteFailureMessage. Insert
// itself checks none of this and trusts its caller.
func (l *Ledger) Insert(reporter, subject network.HSID, txn int64) {
	l.entries[ledgerKey{reporter, subject}] = txn
}

func (l *Ledger) Lookup(reporter, subject network.HSID) (int64, bool) {
	txn, ok := l.entries[ledgerKey{reporter, subject}]
	return txn, ok
}

// SeedFromOracle seeds local entries for every site currently in trouble,
// using aide.NewestSafeTransactionForInitiator, falling back to I64Min when
// the oracle has no record (§4.3).
func (l *Ledger) SeedFromOracle(inTrouble map[network.HSID]bool, aide meshaide.MeshAide) {
	for subject := range inTrouble {
		txn, ok := aide.NewestSafeTransactionForInitiator(subject)
		if !ok {
			txn = configs.I64Min
		}
		l.Insert(l.self, subject, txn)
	}
}

// IngestSiteFailure records every (source, failedPeer) -> txn entry from an
// incoming SiteFailureMessage, skipping entries where failedPeer is unknown
// to the mesh or is self (§4.4 step 4, SITE_FAILURE_UPDATE branch).
func (l *Ledger) IngestSiteFailure(hsIds mapset.Set, msg *network.SiteFailureMessage) {
	for _, e := range msg.SafeTxnIDs {
		if e.Site == l.self || !hsIds.Contains(e.Site) {
			continue
		}
		l.Insert(msg.Source, e.Site, e.Txn)
	}
}

// Covers reports whether the ledger holds an entry for every (survivor,
// subject) pair, excluding pairs where survivor == subject (§4.4 step 4's
// haveEnough test).
func (l *Ledger) Covers(survivors mapset.Set, subjects mapset.Set) bool {
	for s := range survivors.Iter() {
		survivor := s.(network.HSID)
		for subj := range subjects.Iter() {
			subject := subj.(network.HSID)
			if survivor == subject {
				continue
			}
			if _, ok := l.Lookup(survivor, subject); !ok {
				return false
			}
		}
	}
	return true
}

// ExtractMax computes, for each subject in toBeKilled, the max txn id
// vouched for by any reporter in hsIds, asserting none remain at I64Min
// (§4.4 step 5, §7.4). The assertion runs over every subject in toBeKilled,
// including self if it were ever (wrongly) present — self has no ledger
// entries keyed as a subject, so that case is exactly what the invariant is
// meant to catch. self is only removed from the result after the assertion
// has run, never before.
func (l *Ledger) ExtractMax(hsIds mapset.Set, toBeKilled mapset.Set) map[network.HSID]int64 {
	result := make(map[network.HSID]int64)
	for subj := range toBeKilled.Iter() {
		result[subj.(network.HSID)] = configs.I64Min
	}
	for key, txn := range l.entries {
		if _, wanted := result[key.subject]; !wanted {
			continue
		}
		if !hsIds.Contains(key.reporter) {
			continue
		}
		if txn > result[key.subject] {
			result[key.subject] = txn
		}
	}
	for _, txn := range result {
		configs.Assert(txn != configs.I64Min, "ledger incomplete for killed subject")
	}
	delete(result, l.self)
	return result
}

// ClearForSubjects removes every entry whose subject is in the given set,
// leaving entries for surviving subjects for reuse in a future round
// (§4.3, §4.4 step 7).
func (l *Ledger) ClearForSubjects(subjects mapset.Set) {
	for key := range l.entries {
		if subjects.Contains(key.subject) {
			delete(l.entries, key)
		}
	}
}
