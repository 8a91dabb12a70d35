// Package diff compares the two responses of a replayed entry.
//
// Comparison is strict: bodies are equal only when their raw bytes are
// identical. Whitespace, key order and encoding are not normalized.
package diff

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"github.com/JakeFAU/replaydiff/internal/replay"
)

// Differs reports whether two bodies are not exactly equal.
func Differs(oldBody, newBody string) bool {
	return oldBody != newBody
}

// Digest returns the hex SHA-256 of a body.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Engine compares pairs and hands differing ones to a sink.
type Engine struct {
	sink replay.DiffSink
}

// New builds an Engine. A nil sink discards records.
func New(sink replay.DiffSink) *Engine {
	return &Engine{sink: sink}
}

// Compare returns true when the pair's bodies differ, emitting a record.
// Status codes are reported in the record but never decide the outcome.
func (e *Engine) Compare(pair replay.Pair) bool {
	if bytes.Equal(pair.Old.Body, pair.New.Body) {
		return false
	}
	if e.sink != nil {
		e.sink.Record(NewRecord(pair))
	}
	return true
}

// NewRecord builds the DiffRecord for a pair.
func NewRecord(pair replay.Pair) replay.DiffRecord {
	return replay.DiffRecord{
		Payload:   pair.Entry.Payload,
		OldURL:    pair.Old.URL,
		NewURL:    pair.New.URL,
		OldStatus: pair.Old.StatusCode,
		NewStatus: pair.New.StatusCode,
		OldBody:   pair.Old.Text(),
		NewBody:   pair.New.Text(),
		OldHash:   Digest(pair.Old.Body),
		NewHash:   Digest(pair.New.Body),
	}
}
