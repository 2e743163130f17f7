package arbiter

import (
	mapset "github.com/deckarep/golang-set"

	"meshfail/configs"
	"meshfail/network"
)

// Verdict is the classifier's outcome for one FaultMessage (§4.1).
type Verdict int

const (
	Suicide Verdict = iota
	AlreadyFailed
	ReporterFailed
	Unknown
	ReporterUnknown
	SelfUnwitnessed
	AlreadyKnow
	StaleUnwitnessed
	DoNot
)

func (v Verdict) String() string {
	switch v {
	case Suicide:
		return "Suicide"
	case AlreadyFailed:
		return "AlreadyFailed"
	case ReporterFailed:
		return "ReporterFailed"
	case Unknown:
		return "Unknown"
	case ReporterUnknown:
		return "ReporterUnknown"
	case SelfUnwitnessed:
		return "SelfUnwitnessed"
	case AlreadyKnow:
		return "AlreadyKnow"
	case StaleUnwitnessed:
		return "StaleUnwitnessed"
	default:
		return "DoNot"
	}
}

// ClassifierState is the slice of driver state the classifier needs to
// render a verdict. It is passed in rather than held, so the classifier
// stays a pure function of its inputs (P6: idempotent for unchanged state).
type ClassifierState struct {
	Self             network.HSID
	HSIDs            mapset.Set
	FailedSites      mapset.Set
	InTrouble        map[network.HSID]bool
	StaleUnwitnessed mapset.Set
	SeekerSurvivors  mapset.Set
}

// Classify applies the ordered waterfall of §4.1. Earlier tests win; every
// non-DoNot outcome is logged by the caller via configs.ClassifierPrintf.
func Classify(st ClassifierState, fm *network.FaultMessage) Verdict {
	switch {
	case fm.FailedSite == st.Self:
		return Suicide
	case st.FailedSites.Contains(fm.FailedSite):
		return AlreadyFailed
	case st.FailedSites.Contains(fm.ReportingSite):
		return ReporterFailed
	case !st.HSIDs.Contains(fm.FailedSite):
		return Unknown
	case !st.HSIDs.Contains(fm.ReportingSite):
		return ReporterUnknown
	case !fm.Witnessed && fm.ReportingSite == st.Self:
		return SelfUnwitnessed
	}

	if witnessed, known := st.InTrouble[fm.FailedSite]; known {
		if witnessed || witnessed == fm.Witnessed {
			return AlreadyKnow
		}
	}

	if !fm.Witnessed && len(st.InTrouble) == 0 && st.StaleUnwitnessed.Contains(fm.FailedSite) {
		survivors := fm.SurvivorSet()
		if survivors.Intersect(st.FailedSites).Cardinality() > 0 || setsEqual(survivors, st.SeekerSurvivors) {
			return StaleUnwitnessed
		}
	}

	return DoNot
}

func setsEqual(a, b mapset.Set) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

// LogVerdict records every non-DoNot outcome, per §4.1's "every non-DoNot
// outcome is logged" requirement.
func LogVerdict(v Verdict, fm *network.FaultMessage) {
	if v != DoNot {
		configs.ClassifierPrintf("discarding fault report reporter=%d failed=%d: %s",
			fm.ReportingSite, fm.FailedSite, v.String())
	}
}
