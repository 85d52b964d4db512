// Package enrich derives display and search fields from entity content.
package enrich

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/eyes-of-azrael/azrael/internal/entity"
)

// Keys written into Entity.Extra.
const (
	KeyDescriptionHTML = "descriptionHtml"
	KeySearchTerms     = "searchTerms"
	KeyMythologyName   = "mythologyName"
	KeyCollection      = "collection"
)

// minTermLength is the shortest search token kept, in runes.
const minTermLength = 2

// Enricher adds derived fields to entities. Running it twice on the same
// entity yields the same result.
type Enricher struct {
	collections map[entity.Type]string
	md          goldmark.Markdown
}

// New creates an Enricher. collections overrides the default collection per
// type and may be nil.
func New(collections map[entity.Type]string) *Enricher {
	return &Enricher{collections: collections, md: newMarkdown()}
}

// Collection resolves the collection an entity is stored in.
func (en *Enricher) Collection(t entity.Type) string {
	if c, ok := en.collections[t]; ok && c != "" {
		return c
	}
	return t.Collection()
}

// Enrich sets the derived fields on e.
func (en *Enricher) Enrich(e *entity.Entity) error {
	if e.Extra == nil {
		e.Extra = make(map[string]any)
	}

	delete(e.Extra, KeyDescriptionHTML)
	if strings.TrimSpace(e.Description) != "" {
		rendered, err := renderMarkdown(en.md, e.Description)
		if err != nil {
			return fmt.Errorf("rendering description of %s: %w", e.ID, err)
		}
		e.Extra[KeyDescriptionHTML] = rendered
		if e.ShortDescription == "" {
			e.ShortDescription = FirstSentence(PlainText(rendered), ShortDescriptionLimit)
		}
	}

	e.Extra[KeySearchTerms] = SearchTerms(*e)

	delete(e.Extra, KeyMythologyName)
	if e.Mythology != "" {
		e.Extra[KeyMythologyName] = entity.TitleCase(e.Mythology)
	}

	e.Extra[KeyCollection] = en.Collection(e.Type)
	return nil
}

// EnrichAll enriches every entity in place.
func (en *Enricher) EnrichAll(entities []entity.Entity) error {
	for i := range entities {
		if err := en.Enrich(&entities[i]); err != nil {
			return err
		}
	}
	return nil
}

// SearchTerms returns the sorted, unique, folded tokens of the entity's
// names, mythology, domains and tags.
func SearchTerms(e entity.Entity) []string {
	var sources []string
	sources = append(sources, e.Names()...)
	sources = append(sources, e.Mythology)
	sources = append(sources, e.Domains...)
	sources = append(sources, e.Tags...)

	seen := make(map[string]bool)
	terms := []string{}
	for _, s := range sources {
		for _, tok := range strings.Fields(entity.NormalizeName(s)) {
			if len([]rune(tok)) < minTermLength || seen[tok] {
				continue
			}
			seen[tok] = true
			terms = append(terms, tok)
		}
	}
	sort.Strings(terms)
	return terms
}
