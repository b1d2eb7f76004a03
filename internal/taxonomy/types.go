// Package taxonomy provides the in-memory syllabus tree of one tenant.
package taxonomy

import (
	"fmt"
	"strings"
)

// Kind is the closed set of taxonomy node kinds.
type Kind int

// Node kinds. KindAny is only used as a search wildcard.
const (
	KindAny Kind = iota
	KindBloc
	KindSubject
	KindTopic
)

// String returns the storage name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindBloc:
		return "bloc"
	case KindSubject:
		return "subject"
	case KindTopic:
		return "topic"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// CarriesFilter reports whether an own filter on this kind is meaningful.
// Blocs group subjects for display only.
func (k Kind) CarriesFilter() bool {
	switch k {
	case KindSubject, KindTopic:
		return true
	case KindBloc, KindAny:
		return false
	}
	return false
}

// ParseKind converts a storage name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bloc":
		return KindBloc, nil
	case "subject":
		return KindSubject, nil
	case "topic":
		return KindTopic, nil
	case "", "any":
		return KindAny, nil
	}
	return KindAny, fmt.Errorf("unknown node kind %q", s)
}

// Filter is the filter a node carries itself.
type Filter struct {
	Subjects []string `json:"subjects,omitempty"`
	Topics   []string `json:"topics,omitempty"`
}

// IsEmpty reports whether the filter has neither subjects nor topics.
func (f Filter) IsEmpty() bool {
	return len(f.Subjects) == 0 && len(f.Topics) == 0
}

func (f Filter) clone() Filter {
	out := Filter{}
	if len(f.Subjects) > 0 {
		out.Subjects = append([]string(nil), f.Subjects...)
	}
	if len(f.Topics) > 0 {
		out.Topics = append([]string(nil), f.Topics...)
	}
	return out
}

// Node is one bloc, subject or topic of a syllabus.
type Node struct {
	ID        string
	ParentID  string // empty for roots
	Kind      Kind
	Title     string
	Order     int
	OwnFilter Filter
}

// IsRoot reports whether the node has no parent reference.
func (n Node) IsRoot() bool {
	return n.ParentID == ""
}

func (n *Node) clone() Node {
	c := *n
	c.OwnFilter = n.OwnFilter.clone()
	return c
}
