// Package verifier checks that two record trees describe the same data once
// their keys are canonicalized.
package verifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/dbsmedya/gorowtree/internal/canonical"
	"github.com/dbsmedya/gorowtree/internal/logger"
	"github.com/dbsmedya/gorowtree/internal/record"
)

// VerificationMethod defines how trees are compared.
type VerificationMethod string

const (
	// MethodCount compares the number of rows per table (fast)
	MethodCount VerificationMethod = "count"
	// MethodSHA256 compares SHA-256 digests of the canonical encodings
	MethodSHA256 VerificationMethod = "sha256"
	// MethodSkip skips verification entirely
	MethodSkip VerificationMethod = "skip"
)

// Difference locates the first place where two trees disagree.
type Difference struct {
	Row   record.RowLink
	Field string // column name or "<column>*<table>*" sub-row key; empty when the rows themselves differ
}

func (d Difference) String() string {
	if d.Field == "" {
		return d.Row.String()
	}
	return d.Row.String() + ": " + d.Field
}

// VerifyResult holds the outcome of comparing two trees.
type VerifyResult struct {
	Method      VerificationMethod
	LeftCounts  map[string]int
	RightCounts map[string]int
	LeftHash    string
	RightHash   string
	Match       bool
	Difference  *Difference // set on a digest mismatch
}

// Verifier canonicalizes two trees and compares them.
type Verifier struct {
	canonicalizer *canonical.Canonicalizer
	method        VerificationMethod
	logger        *logger.Logger
}

// NewVerifier creates a verifier. An empty method defaults to MethodSHA256.
func NewVerifier(c *canonical.Canonicalizer, method VerificationMethod, log *logger.Logger) (*Verifier, error) {
	if c == nil {
		return nil, fmt.Errorf("canonicalizer is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	if method == "" {
		method = MethodSHA256
	}
	switch method {
	case MethodCount, MethodSHA256, MethodSkip:
	default:
		return nil, fmt.Errorf("unsupported verification method: %s", method)
	}
	return &Verifier{canonicalizer: c, method: method, logger: log}, nil
}

// SetLogger sets a custom logger for the verifier.
func (v *Verifier) SetLogger(log *logger.Logger) {
	v.logger = log
}

// GetMethod returns the configured verification method.
func (v *Verifier) GetMethod() VerificationMethod {
	return v.method
}

// Verify canonicalizes left and right in place and compares them. A mismatch
// is returned as an error together with the result describing it.
func (v *Verifier) Verify(ctx context.Context, left, right *record.Record) (*VerifyResult, error) {
	if v.method == MethodSkip {
		v.logger.Info("Verification SKIPPED (method=skip)")
		return &VerifyResult{Method: MethodSkip, Match: true}, nil
	}

	for _, rec := range []*record.Record{left, right} {
		if rec.IsEmpty() {
			continue
		}
		if _, err := v.canonicalizer.Canonicalize(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to canonicalize %s: %w", rec.Table, err)
		}
	}

	var result *VerifyResult
	if v.method == MethodCount {
		result = compareCounts(left, right)
	} else {
		var err error
		if result, err = Compare(left, right); err != nil {
			return nil, err
		}
	}

	if !result.Match {
		msg := mismatchMessage(result)
		v.logger.Errorf("Verification FAILED: %s", msg)
		return result, fmt.Errorf("verification mismatch: %s", msg)
	}
	v.logger.Infof("Verification PASSED (method=%s, %d rows)", v.method, total(result.LeftCounts))
	return result, nil
}

// Compare compares the encodings of two trees as they are, without
// canonicalizing them first.
func Compare(left, right *record.Record) (*VerifyResult, error) {
	lh, err := Digest(left)
	if err != nil {
		return nil, err
	}
	rh, err := Digest(right)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{
		Method:      MethodSHA256,
		LeftCounts:  TableCounts(left),
		RightCounts: TableCounts(right),
		LeftHash:    lh,
		RightHash:   rh,
		Match:       lh == rh,
	}
	if !result.Match {
		result.Difference = FirstDifference(left, right)
	}
	return result, nil
}

// Digest returns the hex SHA-256 of the wire encoding of rec.
func Digest(rec *record.Record) (string, error) {
	if rec.IsEmpty() {
		sum := sha256.Sum256(nil)
		return hex.EncodeToString(sum[:]), nil
	}
	data, err := record.Encode(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", rec.Table, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// TableCounts returns the number of rows per table in the tree.
func TableCounts(rec *record.Record) map[string]int {
	counts := make(map[string]int)
	if rec.IsEmpty() {
		return counts
	}
	_ = rec.Walk(func(r, _ *record.Record) error {
		counts[r.Table]++
		return nil
	})
	return counts
}

// FirstDifference walks both trees in encoding order and returns where they
// first disagree, or nil when they are equal.
func FirstDifference(left, right *record.Record) *Difference {
	switch {
	case left.IsEmpty() && right.IsEmpty():
		return nil
	case left.IsEmpty():
		return &Difference{Row: right.Link()}
	case right.IsEmpty():
		return &Difference{Row: left.Link()}
	}
	return firstDifference(left, right)
}

func firstDifference(a, b *record.Record) *Difference {
	if a.Table != b.Table || !a.Link().Equal(b.Link()) {
		return &Difference{Row: a.Link()}
	}

	x, y := a.Fields.Front(), b.Fields.Front()
	for ; x != nil && y != nil; x, y = x.Next(), y.Next() {
		if x.Key != y.Key || !x.Value.Value.Equal(y.Value.Value) {
			return &Difference{Row: a.Link(), Field: x.Key}
		}
		if d := subRowsDifference(a, x.Value, y.Value); d != nil {
			return d
		}
	}
	switch {
	case x != nil:
		return &Difference{Row: a.Link(), Field: x.Key}
	case y != nil:
		return &Difference{Row: a.Link(), Field: y.Key}
	}
	return nil
}

func subRowsDifference(owner *record.Record, fa, fb *record.Field) *Difference {
	if !fa.HasSubRows() && !fb.HasSubRows() {
		return nil
	}
	if !fa.HasSubRows() || !fb.HasSubRows() || fa.SubRows.Len() != fb.SubRows.Len() {
		return &Difference{Row: owner.Link(), Field: fa.Name}
	}

	x, y := fa.SubRows.Front(), fb.SubRows.Front()
	for ; x != nil && y != nil; x, y = x.Next(), y.Next() {
		if x.Key != y.Key || len(x.Value) != len(y.Value) {
			return &Difference{Row: owner.Link(), Field: record.SubRowsKey(fa.Name, x.Key)}
		}
		for i := range x.Value {
			if d := firstDifference(x.Value[i], y.Value[i]); d != nil {
				return d
			}
		}
	}
	return nil
}

func compareCounts(left, right *record.Record) *VerifyResult {
	lc, rc := TableCounts(left), TableCounts(right)
	match := len(lc) == len(rc)
	for table, n := range lc {
		if rc[table] != n {
			match = false
		}
	}
	return &VerifyResult{Method: MethodCount, LeftCounts: lc, RightCounts: rc, Match: match}
}

func mismatchMessage(r *VerifyResult) string {
	if r.Method == MethodCount || total(r.LeftCounts) != total(r.RightCounts) {
		tables := make(map[string]bool)
		for t := range r.LeftCounts {
			tables[t] = true
		}
		for t := range r.RightCounts {
			tables[t] = true
		}
		names := make([]string, 0, len(tables))
		for t := range tables {
			names = append(names, t)
		}
		sort.Strings(names)
		for _, t := range names {
			if r.LeftCounts[t] != r.RightCounts[t] {
				return fmt.Sprintf("count mismatch in %s: left=%d, right=%d", t, r.LeftCounts[t], r.RightCounts[t])
			}
		}
	}
	if r.Difference != nil {
		return fmt.Sprintf("hash mismatch: left=%s, right=%s, first difference at %s",
			r.LeftHash[:16], r.RightHash[:16], r.Difference)
	}
	return fmt.Sprintf("hash mismatch: left=%s, right=%s", r.LeftHash[:16], r.RightHash[:16])
}

func total(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}
