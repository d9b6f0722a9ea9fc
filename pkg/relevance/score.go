// Package relevance implements the token-containment score shared by memory
// retrieval and keyword-based schema retrieval.
//
// The score is asymmetric: it measures how much of the query is contained in a
// candidate, so a long candidate that covers a short query scores highly even
// when it carries unrelated text.
package relevance

import (
	"sort"
	"strings"
)

// Tokenize lower-cases s and splits it on whitespace.
func Tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// Score returns |q ∩ c| / max(|q|, 1) where q and c are the token multisets of
// query and content. The result is in [0, 1].
//
// Example:
//
//	relevance.Score("stock price", "the closing price of the stock") // 1.0
//	relevance.Score("stock price", "bond yield")                     // 0.0
func Score(query, content string) float64 {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return 0
	}

	counts := make(map[string]int)
	for _, tok := range Tokenize(content) {
		counts[tok]++
	}

	matched := 0
	for _, tok := range queryTokens {
		if counts[tok] > 0 {
			counts[tok]--
			matched++
		}
	}

	return float64(matched) / float64(len(queryTokens))
}

// Scored pairs an item with its relevance score.
type Scored[T any] struct {
	Item  T
	Score float64
}

// Rank scores every item against query and returns at most topK of them in
// non-increasing score order. Items scoring exactly 0 are dropped and ties
// keep their input order. A non-positive topK yields nil.
func Rank[T any](query string, items []T, topK int, text func(T) string) []Scored[T] {
	if topK <= 0 || len(items) == 0 {
		return nil
	}

	scored := make([]Scored[T], 0, len(items))
	for _, item := range items {
		s := Score(query, text(item))
		if s <= 0 {
			continue
		}
		scored = append(scored, Scored[T]{Item: item, Score: s})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}
