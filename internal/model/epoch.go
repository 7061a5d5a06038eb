package model

import "github.com/ethereum/go-ethereum/common"

// EpochRecord tallies accepted proposals per participant for one reward window.
// Paid is set as the record leaves the pending queue.
type EpochRecord struct {
	StartTime      uint64                    `json:"start_time"`
	ProposerCounts map[common.Address]uint64 `json:"proposer_counts"`
	ApproverCounts map[common.Address]uint64 `json:"approver_counts"`
	TotalAccepted  uint64                    `json:"total_accepted"`
	Paid           bool                      `json:"paid"`
}

// NewEpochRecord opens an empty epoch starting at start.
func NewEpochRecord(start uint64) EpochRecord {
	return EpochRecord{
		StartTime:      start,
		ProposerCounts: make(map[common.Address]uint64),
		ApproverCounts: make(map[common.Address]uint64),
	}
}

// Clone returns a deep copy of the record.
func (e EpochRecord) Clone() EpochRecord {
	out := e
	out.ProposerCounts = copyCounts(e.ProposerCounts)
	out.ApproverCounts = copyCounts(e.ApproverCounts)
	return out
}

// EpochLedger holds the open epoch and the closed epochs awaiting payout, oldest first.
type EpochLedger struct {
	Current EpochRecord   `json:"current"`
	Pending []EpochRecord `json:"pending"`
}

// Clone returns a deep copy of the ledger.
func (l EpochLedger) Clone() EpochLedger {
	out := EpochLedger{Current: l.Current.Clone()}
	if l.Pending != nil {
		out.Pending = make([]EpochRecord, len(l.Pending))
		for i, rec := range l.Pending {
			out.Pending[i] = rec.Clone()
		}
	}
	return out
}

func copyCounts(in map[common.Address]uint64) map[common.Address]uint64 {
	out := make(map[common.Address]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
