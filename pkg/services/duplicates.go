package services

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/vpnda/bankpoll/pkg/models"
)

// DuplicatePair holds two transactions suspected to be the same event. A has
// the smaller ID.
type DuplicatePair struct {
	A, B *models.Transaction
	// Similarity of the labels in [0, 1]; informative only
	Similarity float64
}

// FindDuplicates returns candidate duplicate pairs: same account, dates at
// most thresholdHours apart and amounts within epsilon. Transactions sharing
// an ID are considered once; unsaved ones (empty ID) are kept apart. The
// result does not depend on the order of txs.
func FindDuplicates(txs []*models.Transaction, thresholdHours int, epsilon decimal.Decimal) []DuplicatePair {
	threshold := time.Duration(max(thresholdHours, 0)) * time.Hour
	epsilon = epsilon.Abs()

	saved, unsaved := lo.FilterReject(txs, func(tx *models.Transaction, _ int) bool { return tx.ID != "" })
	unique := append(lo.UniqBy(saved, func(tx *models.Transaction) string { return tx.ID }), lo.Uniq(unsaved)...)
	groups := lo.GroupBy(unique, func(tx *models.Transaction) string { return tx.AccountID })

	var pairs []DuplicatePair
	for _, group := range groups {
		slices.SortFunc(group, func(a, b *models.Transaction) int {
			return cmp.Or(a.Date.Compare(b.Date), cmp.Compare(a.ID, b.ID))
		})

		for i, a := range group {
			for _, b := range group[i+1:] {
				if b.Date.Sub(a.Date) > threshold {
					break
				}
				if a.Amount.Sub(b.Amount).Abs().GreaterThan(epsilon) {
					continue
				}
				pairs = append(pairs, newDuplicatePair(a, b))
			}
		}
	}

	slices.SortFunc(pairs, func(p, q DuplicatePair) int {
		return cmp.Or(
			cmp.Compare(p.A.AccountID, q.A.AccountID),
			earliest(p).Compare(earliest(q)),
			cmp.Compare(p.A.ID, q.A.ID),
			cmp.Compare(p.B.ID, q.B.ID),
		)
	})
	return pairs
}

func newDuplicatePair(a, b *models.Transaction) DuplicatePair {
	if b.ID < a.ID {
		a, b = b, a
	}
	return DuplicatePair{A: a, B: b, Similarity: labelSimilarity(a.DisplayLabel(), b.DisplayLabel())}
}

func earliest(p DuplicatePair) time.Time {
	if p.B.Date.Before(p.A.Date) {
		return p.B.Date
	}
	return p.A.Date
}

func labelSimilarity(a, b string) float64 {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
