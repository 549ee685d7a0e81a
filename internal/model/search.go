package model

import (
	"slices"
	"strings"
)

// SearchKind is the category of a long-running search. Kinds are mutually
// exclusive: only one kind may hold the search lock at a time.
type SearchKind string

const (
	KindInternetSearch SearchKind = "internet-search"
	KindRegistryLookup SearchKind = "registry-lookup"
)

// Kinds lists all built-in search kinds.
func Kinds() []SearchKind {
	return []SearchKind{KindInternetSearch, KindRegistryLookup}
}

func (k SearchKind) String() string { return string(k) }

func (k SearchKind) Valid() bool {
	return slices.Contains(Kinds(), k)
}

// Label returns a human readable name used in messages for end users.
func (k SearchKind) Label() string {
	switch k {
	case KindInternetSearch:
		return "internet search"
	case KindRegistryLookup:
		return "registry lookup"
	default:
		return string(k)
	}
}

// SearchFilters describes a company search query. It is a value object:
// use Normalize to get the canonical form and Equal to compare content.
type SearchFilters struct {
	Segments    []string `json:"segments,omitempty"`
	Regions     []string `json:"regions,omitempty"`
	Localities  []string `json:"localities,omitempty"`
	SizeClasses []string `json:"sizeClasses,omitempty"`
	HasEmail    bool     `json:"hasEmail,omitempty"`
	HasPhone    bool     `json:"hasPhone,omitempty"`
	HasWebsite  bool     `json:"hasWebsite,omitempty"`
	HasSocial   bool     `json:"hasSocial,omitempty"`
}

// Normalize returns a copy with every set trimmed, deduplicated and sorted.
// The receiver is never modified.
func (f SearchFilters) Normalize() SearchFilters {
	return SearchFilters{
		Segments:    normalizeSet(f.Segments),
		Regions:     normalizeSet(f.Regions),
		Localities:  normalizeSet(f.Localities),
		SizeClasses: normalizeSet(f.SizeClasses),
		HasEmail:    f.HasEmail,
		HasPhone:    f.HasPhone,
		HasWebsite:  f.HasWebsite,
		HasSocial:   f.HasSocial,
	}
}

// Equal reports whether both filters select the same companies. Order and
// duplicates inside the sets are not significant.
func (f SearchFilters) Equal(o SearchFilters) bool {
	return f.Key() == o.Key()
}

// Key returns a canonical representation of the filters.
func (f SearchFilters) Key() string {
	n := f.Normalize()
	var sb strings.Builder
	writeSet := func(name string, set []string) {
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(strings.Join(set, ","))
		sb.WriteByte(';')
	}
	writeSet("segments", n.Segments)
	writeSet("regions", n.Regions)
	writeSet("localities", n.Localities)
	writeSet("sizes", n.SizeClasses)
	writeFlag := func(name string, v bool) {
		if v {
			sb.WriteString(name)
			sb.WriteByte(';')
		}
	}
	writeFlag("email", n.HasEmail)
	writeFlag("phone", n.HasPhone)
	writeFlag("website", n.HasWebsite)
	writeFlag("social", n.HasSocial)
	return sb.String()
}

func normalizeSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
