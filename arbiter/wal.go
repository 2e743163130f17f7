package arbiter

import (
	"sync"

	mapset "github.com/deckarep/golang-set"
	"github.com/goccy/go-json"
	"github.com/tidwall/wal"

	"meshfail/configs"
	"meshfail/network"
)

// RoundLog is the round audit log (SPEC_FULL.md §12): every resolved round's
// killed set and safe txn ids are appended before reconfigureOnFault
// returns. stale_unwitnessed is not recorded, and nothing in this module
// reads the log back: a restarted Arbiter starts with empty failed_sites and
// stale_unwitnessed. Grounded on the teacher's
// network/coordinator/log_manager.go LogManager: same tidwall/wal.Log,
// same monotone lsn-as-index, same "skip entirely if disabled" escape
// hatch, but synchronous (one WriteBatch per round, not a batched
// background flusher) since an arbitration round already happens at most
// once per ReceiveTick and durability here gates the return value, unlike
// the teacher's fire-and-forget txn-state log.
type RoundLog struct {
	mu   sync.Mutex
	lsn  uint64
	logs *wal.Log
}

// roundRecord is what gets appended per resolved round.
type roundRecord struct {
	Seq      uint64                  `json:"seq"`
	Killed   []network.HSID          `json:"killed"`
	SafeTxns map[network.HSID]int64  `json:"safe_txns"`
}

// NewRoundLog opens (or creates) the WAL at dir. With dir=="" it returns a
// RoundLog with no underlying WAL, whose Append and Close are no-ops,
// disabling persistence entirely, mirroring the teacher's `configs.UseWAL`
// escape hatch for tests that don't want a logs/ directory on disk.
func NewRoundLog(dir string) (*RoundLog, error) {
	if dir == "" {
		return &RoundLog{}, nil
	}
	opts := &wal.Options{SegmentSize: configs.WALSegmentSize}
	log, err := wal.Open(dir, opts)
	if err != nil {
		return nil, err
	}
	lsn, err := log.LastIndex()
	if err != nil {
		return nil, err
	}
	return &RoundLog{logs: log, lsn: lsn}, nil
}

// Append persists one resolved round. A no-op when the log is disabled.
func (r *RoundLog) Append(killed mapset.Set, result map[network.HSID]int64) error {
	if r.logs == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lsn++
	rec := roundRecord{Seq: configs.NextRoundSeq(), Killed: network.SortHSIDs(killed), SafeTxns: result}
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.logs.Write(r.lsn, body)
}

func (r *RoundLog) Close() error {
	if r.logs == nil {
		return nil
	}
	return r.logs.Close()
}
