// Package verifier checks that a study unit read back from the store matches
// what replication intended to write.
package verifier

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dbsmedya/studyplan/internal/logger"
	"github.com/dbsmedya/studyplan/internal/types"
)

// VerificationMethod defines how thoroughly a unit is compared.
type VerificationMethod string

const (
	// MethodCount compares the match count and the number of bindings (fast)
	MethodCount VerificationMethod = "count"
	// MethodSHA256 compares a fingerprint of every persisted field
	MethodSHA256 VerificationMethod = "sha256"
	// MethodSkip skips verification entirely
	MethodSkip VerificationMethod = "skip"
)

// ErrMismatch is returned when the persisted unit differs from the expected one.
var ErrMismatch = errors.New("persisted unit does not match")

// Expected is the unit replication intended to create.
type Expected struct {
	Spec       types.UnitSpec
	NodeIDs    []string
	Filters    *types.FilterSet
	MatchCount int64
}

// VerifyResult holds the outcome of one comparison.
type VerifyResult struct {
	UnitID       string
	Method       VerificationMethod
	ExpectedHash string
	ActualHash   string
	Match        bool
	Mismatches   []string
}

// Verifier compares expected and persisted units.
type Verifier struct {
	method VerificationMethod
	logger *logger.Logger
}

// NewVerifier creates a verifier for the given method.
func NewVerifier(method VerificationMethod, log *logger.Logger) (*Verifier, error) {
	switch method {
	case MethodCount, MethodSHA256, MethodSkip:
	default:
		return nil, fmt.Errorf("invalid verification method: %s (must be count, sha256, or skip)", method)
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Verifier{method: method, logger: log}, nil
}

// GetMethod returns the configured verification method.
func (v *Verifier) GetMethod() VerificationMethod {
	return v.method
}

// Verify compares a persisted unit against what was intended.
// A mismatch is reported as ErrMismatch together with the result.
func (v *Verifier) Verify(expected Expected, actual *types.Unit) (*VerifyResult, error) {
	if actual == nil {
		return nil, fmt.Errorf("persisted unit is nil")
	}

	result := &VerifyResult{UnitID: actual.ID, Method: v.method, Match: true}
	if v.method == MethodSkip {
		return result, nil
	}

	if expected.MatchCount != actual.MatchCount {
		result.Mismatches = append(result.Mismatches,
			fmt.Sprintf("match count %d != %d", actual.MatchCount, expected.MatchCount))
	}
	if len(expected.NodeIDs) != len(actual.NodeIDs) {
		result.Mismatches = append(result.Mismatches,
			fmt.Sprintf("bindings %d != %d", len(actual.NodeIDs), len(expected.NodeIDs)))
	}

	if v.method == MethodSHA256 {
		result.ExpectedHash = Fingerprint(expected.Spec, expected.NodeIDs, expected.Filters, expected.MatchCount)
		result.ActualHash = Fingerprint(actual.Spec, actual.NodeIDs, actual.Filters, actual.MatchCount)
		if result.ExpectedHash != result.ActualHash {
			result.Mismatches = append(result.Mismatches, "fingerprint differs")
		}
	}

	if len(result.Mismatches) > 0 {
		result.Match = false
		v.logger.WithUnit(actual.ID).Warnf("Verification failed: %s", strings.Join(result.Mismatches, "; "))
		return result, fmt.Errorf("%w: unit %s: %s", ErrMismatch, actual.ID, strings.Join(result.Mismatches, "; "))
	}

	v.logger.WithUnit(actual.ID).Debugf("Verification passed (%s)", v.method)
	return result, nil
}

// Fingerprint returns a SHA256 over a canonical form of a unit.
// Binding order is significant; filter value order is not.
func Fingerprint(spec types.UnitSpec, nodeIDs []string, filters *types.FilterSet, matchCount int64) string {
	var b strings.Builder
	writeField(&b, "number", spec.Number)
	writeField(&b, "type", spec.Type)
	writeField(&b, "subject", spec.Subject)
	writeField(&b, "topic", spec.Topic)
	writeField(&b, "instructions", spec.Instructions)
	writeField(&b, "nodes", strings.Join(nodeIDs, ","))

	normalized := filters.Normalize()
	for _, facet := range types.AllFacets {
		values := normalized.Values(facet)
		slices.Sort(values)
		writeField(&b, string(facet), strings.Join(values, ","))
	}
	writeField(&b, "count", fmt.Sprintf("%d", matchCount))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// writeField writes a length-prefixed field so that separators inside values
// cannot make two different units serialize identically.
func writeField(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, "%s:%d:%s|", name, len(value), value)
}
