package store

import (
	"sort"
	"strings"
)

// Match scoring: the query is lowercased once and matched as a substring
// against name (+10), description (+5) and each keyword (+3). Keywords are
// normalized at match time, not at storage time.
const (
	nameScore        = 10
	descriptionScore = 5
	keywordScore     = 3
)

func scoreEntry(queryLower string, e KnowledgeEntry) int {
	score := 0
	if strings.Contains(strings.ToLower(e.Name), queryLower) {
		score += nameScore
	}
	if strings.Contains(strings.ToLower(e.Description), queryLower) {
		score += descriptionScore
	}
	for _, kw := range e.Keywords {
		if strings.Contains(strings.ToLower(kw), queryLower) {
			score += keywordScore
		}
	}
	return score
}

// rankEntries filters zero-score entries and sorts the rest by descending
// score. The sort is stable so equal scores keep the storage order the
// caller passed in.
func rankEntries(entries []KnowledgeEntry, query string, n int) []KnowledgeEntry {
	q := strings.ToLower(strings.TrimSpace(query))
	type scored struct {
		score int
		entry KnowledgeEntry
	}
	matches := make([]scored, 0, len(entries))
	for _, e := range entries {
		if s := scoreEntry(q, e); s > 0 {
			matches = append(matches, scored{score: s, entry: e})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if n > 0 && len(matches) > n {
		matches = matches[:n]
	}
	out := make([]KnowledgeEntry, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.entry)
	}
	return out
}

// bestEntry returns the first entry with the strictly highest positive
// score, or nil. Ties resolve to the earliest entry encountered.
func bestEntry(entries []KnowledgeEntry, query string) *KnowledgeEntry {
	q := strings.ToLower(strings.TrimSpace(query))
	var best *KnowledgeEntry
	bestScore := 0
	for i := range entries {
		if s := scoreEntry(q, entries[i]); s > bestScore {
			bestScore = s
			best = &entries[i]
		}
	}
	if best == nil {
		return nil
	}
	c := *best
	return &c
}
