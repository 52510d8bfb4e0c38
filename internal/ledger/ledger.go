// Package ledger holds the ordered history of submitted prompts.
//
// Entries are identified by position only. Deleting an entry shifts every
// later index down by one, so callers must not hold an index across a delete.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrIndexOutOfRange is returned for positional access outside the ledger.
var ErrIndexOutOfRange = errors.New("ledger: index out of range")

// PromptRecord is one historical submission. Everything except OutputRef is
// fixed once the record is appended.
type PromptRecord struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negativePrompt"`
	ModelID        string `json:"modelId"`
	JobID          string `json:"taskId,omitempty"`
	OutputRef      string `json:"imageUrl,omitempty"`
	Height         string `json:"height,omitempty"`
	Width          string `json:"width,omitempty"`
}

// Resolved reports whether the record already carries an output reference.
func (r PromptRecord) Resolved() bool {
	return r.OutputRef != ""
}

// Pending reports whether the record still waits on a remote job.
func (r PromptRecord) Pending() bool {
	return r.JobID != "" && r.OutputRef == ""
}

// Validate checks the creation invariant: a prompt plus either a job id or an
// output reference.
func (r PromptRecord) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return errors.New("ledger: prompt is required")
	}
	if r.JobID == "" && r.OutputRef == "" {
		return errors.New("ledger: record needs a job id or an output reference")
	}
	return nil
}

// Ledger is an insertion-ordered sequence of PromptRecords. It is not safe
// for concurrent use; the session controller serializes access.
type Ledger struct {
	records []PromptRecord
}

// New returns a ledger seeded with a copy of records.
func New(records []PromptRecord) *Ledger {
	l := &Ledger{records: make([]PromptRecord, len(records))}
	copy(l.records, records)
	return l
}

func (l *Ledger) Len() int {
	return len(l.records)
}

// Append adds r at the end and returns its index.
func (l *Ledger) Append(r PromptRecord) (int, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	l.records = append(l.records, r)
	return len(l.records) - 1, nil
}

func (l *Ledger) Get(i int) (PromptRecord, error) {
	if i < 0 || i >= len(l.records) {
		return PromptRecord{}, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(l.records))
	}
	return l.records[i], nil
}

// Delete removes the entry at i, keeping the relative order of the rest.
func (l *Ledger) Delete(i int) (PromptRecord, error) {
	r, err := l.Get(i)
	if err != nil {
		return PromptRecord{}, err
	}
	l.records = append(l.records[:i:i], l.records[i+1:]...)
	return r, nil
}

// ResolveJob fills OutputRef on every entry for jobID that has none yet and
// returns how many entries changed.
func (l *Ledger) ResolveJob(jobID, outputRef string) int {
	if jobID == "" || outputRef == "" {
		return 0
	}
	n := 0
	for i := range l.records {
		if l.records[i].JobID == jobID && l.records[i].OutputRef == "" {
			l.records[i].OutputRef = outputRef
			n++
		}
	}
	return n
}

// Unresolved returns the indexes of entries still waiting on a job.
func (l *Ledger) Unresolved() []int {
	var out []int
	for i, r := range l.records {
		if r.Pending() {
			out = append(out, i)
		}
	}
	return out
}

// Records returns a copy of every entry in order.
func (l *Ledger) Records() []PromptRecord {
	out := make([]PromptRecord, len(l.records))
	copy(out, l.records)
	return out
}

// MarshalJSON encodes the ledger as a JSON array.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	if l.records == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.records)
}

// Decode parses a serialized ledger. Entries that fail the creation
// invariant are dropped and reported in skipped; the rest keep their order.
// Only a document that is not a JSON array of records is an error.
func Decode(raw string) (l *Ledger, skipped []error, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return New(nil), nil, nil
	}
	var records []PromptRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, nil, fmt.Errorf("ledger: decode: %w", err)
	}
	kept := records[:0]
	for i, r := range records {
		if err := r.Validate(); err != nil {
			skipped = append(skipped, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		kept = append(kept, r)
	}
	return New(kept), skipped, nil
}

// Encode serializes the ledger for storage.
func (l *Ledger) Encode() (string, error) {
	b, err := l.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("ledger: encode: %w", err)
	}
	return string(b), nil
}
