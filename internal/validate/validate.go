package validate

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/eyes-of-azrael/azrael/internal/entity"
)

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// MinDescriptionLength is the shortest description accepted without a warning.
const MinDescriptionLength = 40

// Issue is a single problem found on an entity.
type Issue struct {
	EntityID string
	File     string
	Field    string
	Severity Severity
	Message  string
}

// Report is the outcome of validating a set of entities.
type Report struct {
	Issues  []Issue
	Checked int

	invalid map[int]bool
}

// HasErrors reports whether any issue has error severity.
func (r *Report) HasErrors() bool {
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Counts returns the number of errors and warnings.
func (r *Report) Counts() (errs, warnings int) {
	for _, is := range r.Issues {
		switch is.Severity {
		case SeverityError:
			errs++
		case SeverityWarning:
			warnings++
		}
	}
	return errs, warnings
}

// ByEntity groups issues by "file#id". Entities without an id are keyed by
// file and position.
func (r *Report) ByEntity() map[string][]Issue {
	out := make(map[string][]Issue)
	for _, is := range r.Issues {
		k := is.File + "#" + is.EntityID
		out[k] = append(out[k], is)
	}
	return out
}

// Valid returns the entities without error-severity issues, in input order.
// entities must be the slice the report was built from.
func (r *Report) Valid(entities []entity.Entity) []entity.Entity {
	out := make([]entity.Entity, 0, len(entities))
	for i, e := range entities {
		if r.invalid[i] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Validator checks entities against the content rules.
type Validator struct {
	// Collections overrides the default collection per type. Duplicate ids
	// are detected per resolved collection.
	Collections map[entity.Type]string
}

// Validate checks every entity and returns the collected issues, sorted by
// file then entity.
func (v *Validator) Validate(entities []entity.Entity) *Report {
	report := &Report{Checked: len(entities), invalid: make(map[int]bool)}
	seen := make(map[string]string) // collection/id -> first file

	for i, e := range entities {
		label := entityLabel(e, i)
		add := func(sev Severity, field, format string, args ...any) {
			if sev == SeverityError {
				report.invalid[i] = true
			}
			report.Issues = append(report.Issues, Issue{
				EntityID: label,
				File:     e.SourceFile,
				Field:    field,
				Severity: sev,
				Message:  fmt.Sprintf(format, args...),
			})
		}

		switch {
		case e.ID == "":
			add(SeverityError, "id", "id is required")
		case !entity.IsSlug(e.ID):
			add(SeverityError, "id", "id %q is not a lowercase slug (try %q)", e.ID, entity.Slugify(e.ID))
		}
		if strings.TrimSpace(e.Name) == "" {
			add(SeverityError, "name", "name is required")
		}

		switch {
		case e.Type == "":
			add(SeverityError, "type", "type is required")
		case !e.Type.Valid():
			add(SeverityError, "type", "unknown type %q", e.Type)
		}

		switch {
		case e.Mythology == "":
			add(SeverityError, "mythology", "mythology is required")
		case !entity.IsSlug(e.Mythology):
			add(SeverityWarning, "mythology", "mythology %q is not a slug (try %q)", e.Mythology, entity.Slugify(e.Mythology))
		}

		if e.ID != "" && e.Type.Valid() {
			key := v.collection(e.Type) + "/" + e.ID
			if first, dup := seen[key]; dup {
				add(SeverityError, "id", "duplicate id %q in collection (first seen in %s)", e.ID, first)
			} else {
				seen[key] = e.SourceFile
			}
		}

		desc := strings.TrimSpace(e.Description)
		switch {
		case desc == "":
			add(SeverityWarning, "description", "description is empty")
		case len([]rune(desc)) < MinDescriptionLength:
			add(SeverityWarning, "description", "description is shorter than %d characters", MinDescriptionLength)
		}

		primary := entity.NormalizeName(e.Name)
		for _, alt := range e.AlternateNames {
			if primary != "" && entity.NormalizeName(alt) == primary {
				add(SeverityWarning, "alternateNames", "alternate name %q repeats the primary name", alt)
			}
		}

		relations := make([]string, 0, len(e.RelatedEntities))
		for rel := range e.RelatedEntities {
			relations = append(relations, rel)
		}
		sort.Strings(relations)
		for _, rel := range relations {
			for _, target := range e.RelatedEntities[rel] {
				if !entity.IsSlug(target) {
					add(SeverityError, "relatedEntities."+rel, "related id %q is not a slug", target)
				}
			}
		}

		for j, src := range e.Sources {
			field := fmt.Sprintf("sources[%d]", j)
			if src.Title == "" && src.URL == "" {
				add(SeverityError, field, "source needs a title or a url")
				continue
			}
			if src.URL != "" && !isHTTPURL(src.URL) {
				add(SeverityWarning, field, "source url %q is not http(s)", src.URL)
			}
		}
	}

	sort.SliceStable(report.Issues, func(i, j int) bool {
		a, b := report.Issues[i], report.Issues[j]
		if a.File != b.File {
			return a.File < b.File
		}
		return a.EntityID < b.EntityID
	})
	return report
}

func (v *Validator) collection(t entity.Type) string {
	if c, ok := v.Collections[t]; ok && c != "" {
		return c
	}
	return t.Collection()
}

// entityLabel identifies an entity in reports even when it has no id.
func entityLabel(e entity.Entity, index int) string {
	if e.ID != "" {
		return e.ID
	}
	return fmt.Sprintf("#%d", index)
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
