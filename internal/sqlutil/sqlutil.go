// Package sqlutil provides SQL building helpers shared by the store and corpus adapters.
package sqlutil

import (
	"regexp"
	"strings"
)

// QuoteIdentifier quotes an identifier with backticks, doubling embedded backticks.
// Both MySQL and SQLite accept backtick quoting.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

var validIdentifierRegex = regexp.MustCompile("^[a-zA-Z0-9_]+$")

// IsValidIdentifier reports whether name only contains alphanumerics and underscores.
// Configured identifiers (corpus table, columns) are checked with it before use.
func IsValidIdentifier(name string) bool {
	return validIdentifierRegex.MatchString(name)
}

// QuoteIdentifierSafe quotes an identifier after validating it.
func QuoteIdentifierSafe(name string) (string, error) {
	if !IsValidIdentifier(name) {
		return "", &InvalidIdentifierError{Name: name}
	}
	return QuoteIdentifier(name), nil
}

// InvalidIdentifierError is returned when an identifier contains invalid characters.
type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return "invalid identifier: " + e.Name + " (must contain only alphanumeric characters and underscores)"
}

// Placeholders returns n comma separated "?" markers, e.g. "?, ?, ?".
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// InClause builds "`column` IN (?, ?)" and the matching argument list.
func InClause[T any](column string, values []T) (string, []interface{}) {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return QuoteIdentifier(column) + " IN (" + Placeholders(len(values)) + ")", args
}

// Chunk splits values into slices of at most size elements.
// A non-positive size returns everything in one chunk.
func Chunk[T any](values []T, size int) [][]T {
	if len(values) == 0 {
		return nil
	}
	if size <= 0 || size >= len(values) {
		return [][]T{values}
	}
	chunks := make([][]T, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}
