// Package dedupe finds entity records that describe the same thing and folds
// them into one.
package dedupe

import (
	"github.com/eyes-of-azrael/azrael/internal/entity"
)

// Group describes one set of records merged into a single entity.
type Group struct {
	Survivor  string      `json:"survivor"`
	Type      entity.Type `json:"type"`
	Mythology string      `json:"mythology"`
	// Members lists "file#id" for every record in the group, survivor first.
	Members []string `json:"members"`
}

// Result is the outcome of Dedupe.
type Result struct {
	Entities []entity.Entity
	Groups   []Group
}

// Removed returns how many records were folded into survivors.
func (r Result) Removed() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Members) - 1
	}
	return n
}

// Dedupe groups duplicate entities and merges each group. Two entities are
// duplicates when they share type and mythology and have the same id or a
// normalized name in common. Grouping is transitive. Entities keep the order
// of the first record of their group.
func Dedupe(entities []entity.Entity) Result {
	uf := newUnionFind(len(entities))
	firstByKey := make(map[string]int)

	link := func(i int, key string) {
		if j, ok := firstByKey[key]; ok {
			uf.union(j, i)
			return
		}
		firstByKey[key] = i
	}

	for i, e := range entities {
		scope := string(e.Type) + "\x00" + e.Mythology + "\x00"
		if e.ID != "" {
			link(i, scope+"id\x00"+e.ID)
		}
		for _, name := range e.Names() {
			if n := entity.NormalizeName(name); n != "" {
				link(i, scope+"name\x00"+n)
			}
		}
	}

	members := make(map[int][]int)
	var roots []int
	for i := range entities {
		r := uf.find(i)
		if _, ok := members[r]; !ok {
			roots = append(roots, r)
		}
		members[r] = append(members[r], i)
	}

	result := Result{Entities: make([]entity.Entity, 0, len(roots))}
	for _, r := range roots {
		idx := members[r]
		if len(idx) == 1 {
			result.Entities = append(result.Entities, entities[idx[0]])
			continue
		}
		group := make([]entity.Entity, len(idx))
		labels := make([]string, len(idx))
		for k, i := range idx {
			group[k] = entities[i]
			labels[k] = entities[i].SourceFile + "#" + entities[i].ID
		}
		merged := Merge(group)
		result.Entities = append(result.Entities, merged)
		result.Groups = append(result.Groups, Group{
			Survivor:  merged.ID,
			Type:      merged.Type,
			Mythology: merged.Mythology,
			Members:   labels,
		})
	}
	return result
}

// unionFind is a disjoint-set forest over entity indices. The root of a set
// is always its smallest index, so the survivor is the first record loaded.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	switch {
	case ra == rb:
	case ra < rb:
		u.parent[rb] = ra
	default:
		u.parent[ra] = rb
	}
}
