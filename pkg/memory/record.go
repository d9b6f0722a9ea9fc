// Package memory stores and retrieves the reasoning artifacts produced while an
// agent plans and executes a query.
//
// Records are immutable once stored. Retrieval ranks them against a query with
// the relevance package and returns copies carrying a transient relevance
// score, so no lookup can alter what was stored.
package memory

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// Kind classifies a memory record.
type Kind string

const (
	// KindAction records that something was started (a plan, a reasoning turn, a tool call).
	KindAction Kind = "action"

	// KindResult records the outcome of an action, including failures.
	KindResult Kind = "result"

	// KindContext records background context about the query or data source.
	KindContext Kind = "context"

	// KindStrategy records a planning decision that can bias later plans.
	KindStrategy Kind = "strategy"
)

// Kinds lists every valid kind.
var Kinds = []Kind{KindAction, KindResult, KindContext, KindStrategy}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAction, KindResult, KindContext, KindStrategy:
		return true
	}
	return false
}

// String returns the kind name.
func (k Kind) String() string {
	return string(k)
}

// ParseKind converts s to a Kind, rejecting unknown names.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// Record is a single memory entry.
type Record struct {
	// ID is derived from content, kind and creation time.
	ID string `json:"id"`

	// Content is the free text describing the action, result, context or strategy.
	Content string `json:"content"`

	// Kind is the record classification.
	Kind Kind `json:"kind"`

	// CreatedAt is the creation time in UTC.
	CreatedAt time.Time `json:"created_at"`

	// Relevance is the score assigned by the retrieval that returned this copy.
	// It is not ground truth and is recomputed per query.
	Relevance float64 `json:"relevance"`

	// Metadata holds owner-defined attributes.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewRecord creates a record stamped with the current time.
//
// Example:
//
//	rec := memory.NewRecord("plan started for query: 600519 price", memory.KindAction, nil)
func NewRecord(content string, kind Kind, metadata map[string]interface{}) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:        recordID(content, kind, now),
		Content:   content,
		Kind:      kind,
		CreatedAt: now,
		Metadata:  copyMetadata(metadata),
	}
}

// Clone returns a copy of r with its own metadata map.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Metadata = copyMetadata(r.Metadata)
	return &c
}

// Validate checks that r can be stored.
func (r *Record) Validate() error {
	if r == nil {
		return ErrNilRecord
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, r.Kind)
	}
	return nil
}

func recordID(content string, kind Kind, at time.Time) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%s_%s", content, kind, at.Format(time.RFC3339Nano))))
	return hex.EncodeToString(sum[:])[:12]
}

func copyMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
