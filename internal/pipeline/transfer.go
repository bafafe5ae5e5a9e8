package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/sells-group/parity/internal/model"
	"github.com/sells-group/parity/internal/version"
)

// transferWindowDays is the maximum calendar-day gap between the two legs
// of a transfer pair.
const transferWindowDays = 2

// MatchTransfers detects intra-deal account-to-account transfers and flags
// both legs. A pair forms only when the legs share an absolute amount, sit
// on different accounts within the day window, and are mutually unique: each
// leg must be the only candidate for the other, otherwise neither is marked.
// Ambiguity is never resolved by guessing.
func MatchTransfers(txns []model.Transaction) []model.TransferLink {
	byAbs := make(map[int64][]*model.Transaction)
	for i := range txns {
		byAbs[txns[i].AbsAmountCents()] = append(byAbs[txns[i].AbsAmountCents()], &txns[i])
	}

	var links []model.TransferLink
	for _, group := range byAbs {
		var positives, negatives []*model.Transaction
		for _, t := range group {
			if t.AmountCents > 0 {
				positives = append(positives, t)
			} else {
				negatives = append(negatives, t)
			}
		}

		for _, pos := range positives {
			candidates := matchCandidates(pos, negatives)
			if len(candidates) != 1 {
				continue
			}
			neg := candidates[0]

			// Symmetry: pos must also be neg's only candidate.
			reverse := matchCandidates(neg, positives)
			if len(reverse) != 1 || reverse[0] != pos {
				continue
			}

			pos.IsTransfer = true
			neg.IsTransfer = true
			links = append(links, model.TransferLink{
				ID:               linkID(pos.DealID, neg.TxnID, pos.TxnID),
				DealID:           pos.DealID,
				TxnOutID:         neg.TxnID,
				TxnInID:          pos.TxnID,
				AbsAmountCents:   pos.AbsAmountCents(),
				MatchRuleVersion: version.TransferRuleVersion,
			})
		}
	}

	model.SortTransferLinks(links)
	return links
}

// matchCandidates returns the counter-transactions pairable with t: other
// account, within the day window, opposite sign already guaranteed by the
// caller's grouping.
func matchCandidates(t *model.Transaction, others []*model.Transaction) []*model.Transaction {
	var out []*model.Transaction
	for _, o := range others {
		if o.AccountID == t.AccountID {
			continue
		}
		if dayGap(t.Date, o.Date) > transferWindowDays {
			continue
		}
		out = append(out, o)
	}
	return out
}

// dayGap returns the absolute calendar-day distance between two ISO dates.
// Dates are validated at parse time, so a malformed date here means a bug
// upstream; it is treated as out of window.
func dayGap(a, b string) int {
	ta, errA := time.Parse("2006-01-02", a)
	tb, errB := time.Parse("2006-01-02", b)
	if errA != nil || errB != nil {
		return transferWindowDays + 1
	}
	d := int(ta.Sub(tb).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}

// linkID is a content-derived identifier so the transfer-links hash is
// reproducible across runs.
func linkID(dealID, outID, inID string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{dealID, outID, inID}, "|")))
	return hex.EncodeToString(sum[:])
}
