package configs

import "sync/atomic"

var roundSeq = uint64(0)

// NextRoundSeq returns a monotonically increasing sequence number, one per
// logged arbitration round, stored as the seq field of each round audit log
// record (the WAL index itself is RoundLog's own lsn).
func NextRoundSeq() uint64 {
	return atomic.AddUint64(&roundSeq, 1)
}
