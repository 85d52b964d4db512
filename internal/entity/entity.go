package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Type identifies the kind of mythological record.
type Type string

const (
	TypeDeity     Type = "deity"
	TypeHero      Type = "hero"
	TypeCreature  Type = "creature"
	TypeItem      Type = "item"
	TypePlace     Type = "place"
	TypeConcept   Type = "concept"
	TypeMagic     Type = "magic"
	TypeHerb      Type = "herb"
	TypeRitual    Type = "ritual"
	TypeSymbol    Type = "symbol"
	TypeText      Type = "text"
	TypeCosmology Type = "cosmology"
	TypeArchetype Type = "archetype"
)

// defaultCollections maps each entity type to its Firestore collection.
var defaultCollections = map[Type]string{
	TypeDeity:     "deities",
	TypeHero:      "heroes",
	TypeCreature:  "creatures",
	TypeItem:      "items",
	TypePlace:     "places",
	TypeConcept:   "concepts",
	TypeMagic:     "magic",
	TypeHerb:      "herbs",
	TypeRitual:    "rituals",
	TypeSymbol:    "symbols",
	TypeText:      "texts",
	TypeCosmology: "cosmology",
	TypeArchetype: "archetypes",
}

// Types returns every known entity type in a stable order.
func Types() []Type {
	return []Type{
		TypeDeity, TypeHero, TypeCreature, TypeItem, TypePlace, TypeConcept, TypeMagic,
		TypeHerb, TypeRitual, TypeSymbol, TypeText, TypeCosmology, TypeArchetype,
	}
}

// Valid reports whether t is a known entity type.
func (t Type) Valid() bool {
	_, ok := defaultCollections[t]
	return ok
}

// Collection returns the default Firestore collection for the type.
func (t Type) Collection() string {
	return defaultCollections[t]
}

// ParseType resolves a type from its singular or plural form, in any case.
func ParseType(s string) (Type, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	if t := Type(s); t.Valid() {
		return t, true
	}
	for t, col := range defaultCollections {
		if col == s {
			return t, true
		}
	}
	return "", false
}

// Source is a bibliographic reference for an entity.
type Source struct {
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Entity is a single mythological record as stored in the content backend.
type Entity struct {
	ID               string              `json:"id"`
	Type             Type                `json:"type"`
	Name             string              `json:"name"`
	Mythology        string              `json:"mythology"`
	AlternateNames   []string            `json:"alternateNames,omitempty"`
	Description      string              `json:"description,omitempty"`
	ShortDescription string              `json:"shortDescription,omitempty"`
	Domains          []string            `json:"domains,omitempty"`
	Symbols          []string            `json:"symbols,omitempty"`
	Tags             []string            `json:"tags,omitempty"`
	Sources          []Source            `json:"sources,omitempty"`
	RelatedEntities  map[string][]string `json:"relatedEntities,omitempty"`

	// Extra holds every JSON key not mapped to a field above.
	Extra map[string]any `json:"-"`

	// SourceFile is the relative path the entity was loaded from.
	SourceFile string `json:"-"`
}

// knownKeys are the JSON keys bound to Entity fields.
var knownKeys = map[string]bool{
	"id": true, "type": true, "name": true, "mythology": true,
	"alternateNames": true, "description": true, "shortDescription": true,
	"domains": true, "symbols": true, "tags": true, "sources": true,
	"relatedEntities": true,
}

// entityFields avoids recursion into the custom (un)marshalers.
type entityFields Entity

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var fields entityFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Entity(fields)
	for k, v := range raw {
		if knownKeys[k] {
			continue
		}
		if e.Extra == nil {
			e.Extra = make(map[string]any)
		}
		e.Extra[k] = v
	}
	return nil
}

// MarshalJSON encodes the entity as its document form.
func (e Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Document())
}

// Document returns the Firestore document body for the entity. Empty fields
// are omitted and Extra keys never overwrite known fields.
func (e Entity) Document() map[string]any {
	doc := make(map[string]any, len(e.Extra)+12)
	for k, v := range e.Extra {
		doc[k] = v
	}

	setString := func(key, v string) {
		if v != "" {
			doc[key] = v
		} else {
			delete(doc, key)
		}
	}
	setStrings := func(key string, v []string) {
		if len(v) > 0 {
			doc[key] = append([]string(nil), v...)
		} else {
			delete(doc, key)
		}
	}

	setString("id", e.ID)
	setString("type", string(e.Type))
	setString("name", e.Name)
	setString("mythology", e.Mythology)
	setString("description", e.Description)
	setString("shortDescription", e.ShortDescription)
	setStrings("alternateNames", e.AlternateNames)
	setStrings("domains", e.Domains)
	setStrings("symbols", e.Symbols)
	setStrings("tags", e.Tags)

	if len(e.Sources) > 0 {
		sources := make([]map[string]any, 0, len(e.Sources))
		for _, s := range e.Sources {
			m := make(map[string]any, 3)
			if s.Title != "" {
				m["title"] = s.Title
			}
			if s.Author != "" {
				m["author"] = s.Author
			}
			if s.URL != "" {
				m["url"] = s.URL
			}
			sources = append(sources, m)
		}
		doc["sources"] = sources
	} else {
		delete(doc, "sources")
	}

	if len(e.RelatedEntities) > 0 {
		rel := make(map[string]any, len(e.RelatedEntities))
		for k, ids := range e.RelatedEntities {
			rel[k] = append([]string(nil), ids...)
		}
		doc["relatedEntities"] = rel
	} else {
		delete(doc, "relatedEntities")
	}

	return doc
}

// ContentHash returns the SHA-256 hex digest of the canonical document JSON.
// encoding/json sorts map keys, so equal documents hash equally.
func (e Entity) ContentHash() string {
	// Extra values are decoded JSON or strings, so Marshal cannot fail here.
	data, _ := json.Marshal(e.Document())
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Key returns the "collection/id" key used by upload state and reports.
func (e Entity) Key(collection string) string {
	return collection + "/" + e.ID
}

// Names returns the primary name followed by the alternate names.
func (e Entity) Names() []string {
	names := make([]string, 0, 1+len(e.AlternateNames))
	if e.Name != "" {
		names = append(names, e.Name)
	}
	return append(names, e.AlternateNames...)
}
