package arbiter

import "sync/atomic"

// Probe exposes the two monotone counters §5/§6 require to be externally
// observable without blocking the arbitration thread: in_trouble_count and
// failed_sites_count. Grounded on configs/timestamp.go's atomic.AddUint64
// counter, rather than the teacher's detector.Add_th/GetReward mutex pattern,
// per §5's explicit "tearing-safe 32-bit reads" requirement — a mutex would
// make a reader contend with the arbitration thread, which a lock-free
// counter need not.
type Probe struct {
	inTroubleCount uint32
	failedCount    uint32
}

func (p *Probe) setInTroubleCount(n int) {
	atomic.StoreUint32(&p.inTroubleCount, uint32(n))
}

func (p *Probe) setFailedCount(n int) {
	atomic.StoreUint32(&p.failedCount, uint32(n))
}

// IsInArbitration reports true iff in_trouble_count > 0 (§6).
func (p *Probe) IsInArbitration() bool {
	return atomic.LoadUint32(&p.inTroubleCount) > 0
}

// FailedSitesCount returns the monotone count of evicted sites (§6).
func (p *Probe) FailedSitesCount() uint32 {
	return atomic.LoadUint32(&p.failedCount)
}
