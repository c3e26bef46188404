package ledger

import (
	"context"
	"fmt"
)

// ChainError describes the first entry that breaks the hash chain.
type ChainError struct {
	Seq    uint64
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("ledger chain broken at seq %d: %s", e.Seq, e.Reason)
}

// VerifyLink checks that e is a correctly sealed successor of prev (the zero
// Entry when e is first).
func VerifyLink(prev, e Entry) error {
	if e.Seq != prev.Seq+1 {
		return &ChainError{Seq: e.Seq, Reason: fmt.Sprintf("expected seq %d", prev.Seq+1)}
	}
	wantPrev := prev.Hash
	if prev.Seq == 0 {
		wantPrev = GenesisHash
	}
	if e.PrevHash != wantPrev {
		return &ChainError{Seq: e.Seq, Reason: "prev_hash does not match predecessor"}
	}
	if e.At.Before(prev.At) {
		return &ChainError{Seq: e.Seq, Reason: "timestamp runs backwards"}
	}
	if ComputeHash(e) != e.Hash {
		return &ChainError{Seq: e.Seq, Reason: "hash does not match contents"}
	}
	return nil
}

// Verify checks a contiguous run of entries that follows prev.
func Verify(prev Entry, entries []Entry) error {
	for _, e := range entries {
		if err := VerifyLink(prev, e); err != nil {
			return err
		}
		prev = e
	}
	return nil
}

// Report summarizes a full-chain verification.
type Report struct {
	Valid    bool   `json:"valid"`
	Height   uint64 `json:"height"`
	HeadHash string `json:"head_hash"`
	BrokenAt uint64 `json:"broken_at,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

const verifyPageSize = 500

// VerifyStore walks the whole log inside one snapshot and checks every link
// and that the head matches the last entry.
func VerifyStore(ctx context.Context, store Store) (Report, error) {
	var report Report
	err := store.View(ctx, func(ctx context.Context, r Reader) error {
		head, err := r.Head(ctx)
		if err != nil {
			return err
		}
		report.Height = head.Seq
		report.HeadHash = head.Hash

		var prev Entry
		for {
			page, err := r.Entries(ctx, prev.Seq, verifyPageSize)
			if err != nil {
				return err
			}
			if len(page) == 0 {
				break
			}
			if err := Verify(prev, page); err != nil {
				ce := err.(*ChainError)
				report.BrokenAt = ce.Seq
				report.Reason = ce.Reason
				return nil
			}
			prev = page[len(page)-1]
		}
		if prev.Seq != head.Seq || prev.Hash != head.Hash {
			report.BrokenAt = prev.Seq + 1
			report.Reason = "head does not match last entry"
			return nil
		}
		report.Valid = true
		return nil
	})
	return report, err
}
