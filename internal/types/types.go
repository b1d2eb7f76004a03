// Package types provides the domain value types shared across studyplan packages.
package types

import (
	"fmt"
	"strings"
)

// Facet is one independent dimension of a FilterSet.
type Facet string

// Supported facets.
const (
	FacetSubjects      Facet = "subjects"
	FacetTopics        Facet = "topics"
	FacetBoards        Facet = "boards"
	FacetYears         Facet = "years"
	FacetOrganizations Facet = "organizations"
	FacetPositions     Facet = "positions"
	FacetSchooling     Facet = "schooling"
	FacetModalities    Facet = "modalities"
)

// AllFacets lists every facet in display order.
var AllFacets = []Facet{
	FacetSubjects,
	FacetTopics,
	FacetBoards,
	FacetYears,
	FacetOrganizations,
	FacetPositions,
	FacetSchooling,
	FacetModalities,
}

// StaticFacets lists the facets that have a static universe of options.
// Topics are excluded: they are derived from the selected subjects.
var StaticFacets = []Facet{
	FacetSubjects,
	FacetBoards,
	FacetYears,
	FacetOrganizations,
	FacetPositions,
	FacetSchooling,
	FacetModalities,
}

// ParseFacet converts a facet name into a Facet.
func ParseFacet(name string) (Facet, error) {
	f := Facet(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range AllFacets {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown facet %q", name)
}

// SchoolingLevel is the schooling requirement of a position.
type SchoolingLevel string

// Supported schooling levels.
const (
	SchoolingFundamental SchoolingLevel = "fundamental"
	SchoolingMedio       SchoolingLevel = "medio"
	SchoolingSuperior    SchoolingLevel = "superior"
)

// Valid reports whether s is a known schooling level.
func (s SchoolingLevel) Valid() bool {
	switch s {
	case SchoolingFundamental, SchoolingMedio, SchoolingSuperior:
		return true
	}
	return false
}

// Modality is the answer format of a question.
type Modality string

// Supported modalities.
const (
	ModalityMultipleChoice Modality = "multiple_choice"
	ModalityTrueFalse      Modality = "true_false"
)

// Valid reports whether m is a known modality.
func (m Modality) Valid() bool {
	switch m {
	case ModalityMultipleChoice, ModalityTrueFalse:
		return true
	}
	return false
}

// RoundSpec describes a round to be created.
type RoundSpec struct {
	Number int    `json:"number" yaml:"number"`
	Title  string `json:"title,omitempty" yaml:"title,omitempty"`
}

// Round is a numbered group of study units inside a tenant.
type Round struct {
	ID       string
	TenantID string
	Number   int
	Title    string
}

// UnitSpec holds the literal fields of a study unit.
type UnitSpec struct {
	Number       string `json:"number" yaml:"number"`
	Type         string `json:"type" yaml:"type"`
	Subject      string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Topic        string `json:"topic,omitempty" yaml:"topic,omitempty"`
	Instructions string `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

// Unit is a persisted study unit with its bindings and resolved filters.
type Unit struct {
	ID         string
	RoundID    string
	TenantID   string
	Spec       UnitSpec
	NodeIDs    []string
	Filters    *FilterSet
	MatchCount int64
}
