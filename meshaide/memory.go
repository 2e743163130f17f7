package meshaide

import (
	"sync"

	"meshfail/network"
)

// InMemoryAide is a hand-written fake MeshAide, grounded on the teacher's
// practice of hand-writing fakes (storage.Testkit, network/participant/utils.go)
// rather than reaching for a mocking framework.
type InMemoryAide struct {
	mu       sync.Mutex
	watermark map[network.HSID]int64
	pings    []network.HSID
}

func NewInMemoryAide() *InMemoryAide {
	return &InMemoryAide{watermark: make(map[network.HSID]int64)}
}

// Set seeds the watermark a test expects the oracle to report for site.
func (a *InMemoryAide) Set(site network.HSID, txn int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.watermark[site] = txn
}

func (a *InMemoryAide) NewestSafeTransactionForInitiator(site network.HSID) (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	txn, ok := a.watermark[site]
	return txn, ok
}

func (a *InMemoryAide) SendHeartbeats(hsIds []network.HSID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pings = append(a.pings, hsIds...)
}

// Pings returns every hsid passed to SendHeartbeats so far, concatenated in
// call order into one slice, for test assertions.
func (a *InMemoryAide) Pings() []network.HSID {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]network.HSID, len(a.pings))
	copy(out, a.pings)
	return out
}
