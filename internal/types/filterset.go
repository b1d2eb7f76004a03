package types

import (
	"fmt"
	"slices"
	"strconv"
)

// FilterSet is the combined query constraint used to select corpus items.
// An empty field leaves that facet unconstrained.
type FilterSet struct {
	Subjects        []string         `json:"subjects,omitempty" yaml:"subjects,omitempty"`
	Topics          []string         `json:"topics,omitempty" yaml:"topics,omitempty"`
	Boards          []string         `json:"boards,omitempty" yaml:"boards,omitempty"`
	Years           []int            `json:"years,omitempty" yaml:"years,omitempty"`
	Organizations   []string         `json:"organizations,omitempty" yaml:"organizations,omitempty"`
	Positions       []string         `json:"positions,omitempty" yaml:"positions,omitempty"`
	SchoolingLevels []SchoolingLevel `json:"schooling_levels,omitempty" yaml:"schooling_levels,omitempty"`
	Modalities      []Modality       `json:"modalities,omitempty" yaml:"modalities,omitempty"`
}

// IsEmpty reports whether every facet is unconstrained.
func (f *FilterSet) IsEmpty() bool {
	if f == nil {
		return true
	}
	return len(f.Subjects) == 0 && len(f.Topics) == 0 && len(f.Boards) == 0 &&
		len(f.Years) == 0 && len(f.Organizations) == 0 && len(f.Positions) == 0 &&
		len(f.SchoolingLevels) == 0 && len(f.Modalities) == 0
}

// Normalize returns a copy with every facet sorted and deduplicated.
// Empty facets become nil so that equal sets compare equal.
func (f *FilterSet) Normalize() *FilterSet {
	if f == nil {
		return &FilterSet{}
	}
	return &FilterSet{
		Subjects:        sortedSet(f.Subjects),
		Topics:          sortedSet(f.Topics),
		Boards:          sortedSet(f.Boards),
		Years:           sortedSet(f.Years),
		Organizations:   sortedSet(f.Organizations),
		Positions:       sortedSet(f.Positions),
		SchoolingLevels: sortedSet(f.SchoolingLevels),
		Modalities:      sortedSet(f.Modalities),
	}
}

// Clone returns a normalized deep copy.
func (f *FilterSet) Clone() *FilterSet {
	return f.Normalize()
}

// Union merges other into a new normalized FilterSet, facet by facet.
func (f *FilterSet) Union(other *FilterSet) *FilterSet {
	a, b := f.Normalize(), other.Normalize()
	return &FilterSet{
		Subjects:        sortedSet(append(a.Subjects, b.Subjects...)),
		Topics:          sortedSet(append(a.Topics, b.Topics...)),
		Boards:          sortedSet(append(a.Boards, b.Boards...)),
		Years:           sortedSet(append(a.Years, b.Years...)),
		Organizations:   sortedSet(append(a.Organizations, b.Organizations...)),
		Positions:       sortedSet(append(a.Positions, b.Positions...)),
		SchoolingLevels: sortedSet(append(a.SchoolingLevels, b.SchoolingLevels...)),
		Modalities:      sortedSet(append(a.Modalities, b.Modalities...)),
	}
}

// Equal reports whether both sets constrain the same values.
func (f *FilterSet) Equal(other *FilterSet) bool {
	a, b := f.Normalize(), other.Normalize()
	for _, facet := range AllFacets {
		if !slices.Equal(a.Values(facet), b.Values(facet)) {
			return false
		}
	}
	return true
}

// Values returns the selected values of a facet as strings.
func (f *FilterSet) Values(facet Facet) []string {
	if f == nil {
		return nil
	}
	switch facet {
	case FacetSubjects:
		return slices.Clone(f.Subjects)
	case FacetTopics:
		return slices.Clone(f.Topics)
	case FacetBoards:
		return slices.Clone(f.Boards)
	case FacetYears:
		return intsToStrings(f.Years)
	case FacetOrganizations:
		return slices.Clone(f.Organizations)
	case FacetPositions:
		return slices.Clone(f.Positions)
	case FacetSchooling:
		return enumToStrings(f.SchoolingLevels)
	case FacetModalities:
		return enumToStrings(f.Modalities)
	}
	return nil
}

// SetValues replaces the values of a facet, converting from strings.
// Years must be integers and enum facets must hold known values.
func (f *FilterSet) SetValues(facet Facet, values []string) error {
	switch facet {
	case FacetSubjects:
		f.Subjects = sortedSet(values)
	case FacetTopics:
		f.Topics = sortedSet(values)
	case FacetBoards:
		f.Boards = sortedSet(values)
	case FacetOrganizations:
		f.Organizations = sortedSet(values)
	case FacetPositions:
		f.Positions = sortedSet(values)
	case FacetYears:
		years := make([]int, 0, len(values))
		for _, v := range values {
			year, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid year %q: %w", v, err)
			}
			years = append(years, year)
		}
		f.Years = sortedSet(years)
	case FacetSchooling:
		levels := make([]SchoolingLevel, 0, len(values))
		for _, v := range values {
			level := SchoolingLevel(v)
			if !level.Valid() {
				return fmt.Errorf("invalid schooling level %q", v)
			}
			levels = append(levels, level)
		}
		f.SchoolingLevels = sortedSet(levels)
	case FacetModalities:
		modalities := make([]Modality, 0, len(values))
		for _, v := range values {
			m := Modality(v)
			if !m.Valid() {
				return fmt.Errorf("invalid modality %q", v)
			}
			modalities = append(modalities, m)
		}
		f.Modalities = sortedSet(modalities)
	default:
		return fmt.Errorf("unknown facet %q", facet)
	}
	return nil
}

// Without returns a copy of the set with one facet unconstrained.
// Used to compute the options of a facet from the selections of all the others.
func (f *FilterSet) Without(facet Facet) *FilterSet {
	c := f.Normalize()
	_ = c.SetValues(facet, nil)
	return c
}

func sortedSet[T ~string | ~int](values []T) []T {
	if len(values) == 0 {
		return nil
	}
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}

func intsToStrings(values []int) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strconv.Itoa(v)
	}
	return out
}

func enumToStrings[T ~string](values []T) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
