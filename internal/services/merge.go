package services

import (
	"sort"

	"fintrack/internal/core"
)

// mergeByID overlays pending onto base, one record per id. A pending record replaces the base
// copy unless both carry UpdatedAt and the base one is strictly newer.
func mergeByID(base, pending []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, 0, len(base)+len(pending))
	pos := make(map[int64]int, len(base)+len(pending))

	for _, t := range base {
		if i, ok := pos[t.ID]; ok {
			out[i] = t
			continue
		}
		pos[t.ID] = len(out)
		out = append(out, t)
	}
	for _, p := range pending {
		i, ok := pos[p.ID]
		if !ok {
			pos[p.ID] = len(out)
			out = append(out, p)
			continue
		}
		if newerThan(out[i], p) {
			continue
		}
		out[i] = p
	}

	sortByDate(out)
	return out
}

func newerThan(a, b core.Transaction) bool {
	return a.UpdatedAt != nil && b.UpdatedAt != nil && a.UpdatedAt.After(*b.UpdatedAt)
}

// sortByDate orders newest first, ties broken by descending id.
func sortByDate(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].TransactionDate.Equal(txs[j].TransactionDate) {
			return txs[i].TransactionDate.After(txs[j].TransactionDate)
		}
		return txs[i].ID > txs[j].ID
	})
}
