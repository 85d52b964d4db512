package dedupe

import (
	"slices"
	"sort"
	"strings"

	"github.com/eyes-of-azrael/azrael/internal/entity"
)

// Merge folds a group of duplicate records into one. The first record is the
// survivor: its id, type, mythology, name and source file are kept. Names of
// later records that differ from the survivor's become alternate names.
// Descriptions take the longest non-empty value. Lists are unioned in
// first-seen order and Extra keys missing from the survivor are copied over.
func Merge(group []entity.Entity) entity.Entity {
	if len(group) == 0 {
		return entity.Entity{}
	}
	out := group[0]
	if out.ID == "" {
		for _, e := range group[1:] {
			if e.ID != "" {
				out.ID = e.ID
				break
			}
		}
	}

	names := newFoldedSet(entity.NormalizeName)
	if out.Name != "" {
		names.add(out.Name)
	}
	alternates := make([]string, 0, len(out.AlternateNames))
	addAlternate := func(n string) {
		if names.add(n) {
			alternates = append(alternates, n)
		}
	}
	for _, n := range out.AlternateNames {
		addAlternate(n)
	}

	domains := newFoldedSet(strings.ToLower)
	symbols := newFoldedSet(strings.ToLower)
	tags := newFoldedSet(strings.ToLower)
	domains.addAll(out.Domains)
	symbols.addAll(out.Symbols)
	tags.addAll(out.Tags)

	sources := append([]entity.Source(nil), out.Sources...)
	seenSource := make(map[entity.Source]bool, len(sources))
	for _, s := range sources {
		seenSource[sourceKey(s)] = true
	}

	related := make(map[string][]string, len(out.RelatedEntities))
	for rel, ids := range out.RelatedEntities {
		related[rel] = append([]string(nil), ids...)
	}

	extra := make(map[string]any, len(out.Extra))
	for k, v := range out.Extra {
		extra[k] = v
	}

	for _, e := range group[1:] {
		if out.Name == "" {
			out.Name = e.Name
			names.add(e.Name)
		} else if e.Name != "" {
			addAlternate(e.Name)
		}
		for _, n := range e.AlternateNames {
			addAlternate(n)
		}

		out.Description = longer(out.Description, e.Description)
		out.ShortDescription = longer(out.ShortDescription, e.ShortDescription)

		domains.addAll(e.Domains)
		symbols.addAll(e.Symbols)
		tags.addAll(e.Tags)

		for _, s := range e.Sources {
			k := sourceKey(s)
			if seenSource[k] {
				continue
			}
			seenSource[k] = true
			sources = append(sources, s)
		}

		for _, rel := range sortedKeys(e.RelatedEntities) {
			for _, id := range e.RelatedEntities[rel] {
				if !slices.Contains(related[rel], id) {
					related[rel] = append(related[rel], id)
				}
			}
		}

		for k, v := range e.Extra {
			if _, ok := extra[k]; !ok {
				extra[k] = v
			}
		}
	}

	out.AlternateNames = nilIfEmpty(alternates)
	out.Domains = nilIfEmpty(domains.values)
	out.Symbols = nilIfEmpty(symbols.values)
	out.Tags = nilIfEmpty(tags.values)
	out.Sources = nil
	if len(sources) > 0 {
		out.Sources = sources
	}
	out.RelatedEntities = nil
	if len(related) > 0 {
		out.RelatedEntities = related
	}
	out.Extra = nil
	if len(extra) > 0 {
		out.Extra = extra
	}
	return out
}

// foldedSet keeps values in insertion order, deduplicated by a key function.
type foldedSet struct {
	key    func(string) string
	seen   map[string]bool
	values []string
}

func newFoldedSet(key func(string) string) *foldedSet {
	return &foldedSet{key: key, seen: make(map[string]bool)}
}

// add inserts v and reports whether it was new. Blank values are ignored.
func (s *foldedSet) add(v string) bool {
	k := s.key(strings.TrimSpace(v))
	if k == "" || s.seen[k] {
		return false
	}
	s.seen[k] = true
	s.values = append(s.values, v)
	return true
}

func (s *foldedSet) addAll(vs []string) {
	for _, v := range vs {
		s.add(v)
	}
}

func sourceKey(s entity.Source) entity.Source {
	return entity.Source{
		Title: strings.ToLower(strings.TrimSpace(s.Title)),
		URL:   strings.TrimRight(strings.TrimSpace(s.URL), "/"),
	}
}

func longer(a, b string) string {
	if len([]rune(strings.TrimSpace(b))) > len([]rune(strings.TrimSpace(a))) {
		return b
	}
	return a
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
