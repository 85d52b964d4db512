package entity

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/eyes-of-azrael/azrael/internal/walker"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want Type
		ok   bool
	}{
		{"deity", TypeDeity, true},
		{"Deities", TypeDeity, true},
		{" heroes ", TypeHero, true},
		{"magic", TypeMagic, true},
		{"cosmology", TypeCosmology, true},
		{"archetypes", TypeArchetype, true},
		{"god", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseType(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseType(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTypeCollection(t *testing.T) {
	for _, typ := range Types() {
		if typ.Collection() == "" {
			t.Errorf("type %q has no collection", typ)
		}
	}
	if TypeHero.Collection() != "heroes" {
		t.Errorf("hero collection = %q, want heroes", TypeHero.Collection())
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Zeus", "zeus"},
		{"Pallas Athena", "pallas-athena"},
		{"Ōkuninushi", "okuninushi"},
		{"Óðinn", "odinn"},
		{"Æsir", "aesir"},
		{"  Hel's Realm!! ", "hel-s-realm"},
		{"Quetzalcōātl", "quetzalcoatl"},
		{"---", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsSlug(t *testing.T) {
	for _, s := range []string{"zeus", "pallas-athena", "set2"} {
		if !IsSlug(s) {
			t.Errorf("IsSlug(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"", "Zeus", "pallas_athena", "-zeus", "zeus-", "a--b"} {
		if IsSlug(s) {
			t.Errorf("IsSlug(%q) = true, want false", s)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("  Óðinn,  the Allfather "); got != "odinn the allfather" {
		t.Errorf("NormalizeName = %q", got)
	}
	if NormalizeName("Zeus Olympios") != NormalizeName("zeus-olympios") {
		t.Error("punctuation and case should not affect the normalized name")
	}
}

func TestTitleCase(t *testing.T) {
	if got := TitleCase("ancient-egyptian"); got != "Ancient Egyptian" {
		t.Errorf("TitleCase = %q, want %q", got, "Ancient Egyptian")
	}
}

func TestUnmarshalKeepsExtra(t *testing.T) {
	var e Entity
	data := []byte(`{"id":"zeus","type":"deity","name":"Zeus","mythology":"greek","pantheonRank":1,"epithets":["Cloud-gatherer"]}`)
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if e.Name != "Zeus" || e.Type != TypeDeity {
		t.Errorf("known fields not decoded: %+v", e)
	}
	want := map[string]any{"pantheonRank": float64(1), "epithets": []any{"Cloud-gatherer"}}
	if diff := cmp.Diff(want, e.Extra); diff != "" {
		t.Errorf("Extra mismatch (-want +got):\n%s", diff)
	}
}

func TestDocumentKnownFieldsWin(t *testing.T) {
	e := Entity{
		ID:        "zeus",
		Type:      TypeDeity,
		Name:      "Zeus",
		Mythology: "greek",
		Extra:     map[string]any{"name": "Jupiter", "rank": 1, "description": "stale"},
	}
	doc := e.Document()
	if doc["name"] != "Zeus" {
		t.Errorf("name = %v, want Zeus", doc["name"])
	}
	if _, ok := doc["description"]; ok {
		t.Error("empty known field should not be filled from Extra")
	}
	if doc["rank"] != 1 {
		t.Errorf("extra key rank lost: %v", doc["rank"])
	}
	if _, ok := doc["domains"]; ok {
		t.Error("empty slices should be omitted")
	}
}

func TestMarshalRoundTripPreservesExtra(t *testing.T) {
	in := []byte(`{"id":"odin","type":"deity","name":"Odin","mythology":"norse","ravens":["Huginn","Muninn"]}`)
	var e Entity
	if err := json.Unmarshal(in, &e); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	out, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Entity
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal back: %v", err)
	}
	if diff := cmp.Diff(e, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestContentHashStable(t *testing.T) {
	a := Entity{ID: "zeus", Name: "Zeus", Extra: map[string]any{"a": 1.0, "b": "x"}}
	b := Entity{ID: "zeus", Name: "Zeus", Extra: map[string]any{"b": "x", "a": 1.0}}
	if a.ContentHash() != b.ContentHash() {
		t.Error("equal documents should hash equally")
	}
	b.Name = "Jupiter"
	if a.ContentHash() == b.ContentHash() {
		t.Error("different documents should hash differently")
	}
}

func TestDecodeSingle(t *testing.T) {
	got, err := Decode([]byte(`{"name":"Pallas Athena","type":"Deities","mythology":"greek"}`), "athena.json")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(got))
	}
	if got[0].ID != "pallas-athena" {
		t.Errorf("derived id = %q, want pallas-athena", got[0].ID)
	}
	if got[0].Type != TypeDeity {
		t.Errorf("plural type not canonicalised: %q", got[0].Type)
	}
	if got[0].SourceFile != "athena.json" {
		t.Errorf("SourceFile = %q", got[0].SourceFile)
	}
}

func TestDecodeArray(t *testing.T) {
	got, err := Decode([]byte(`[{"id":"kitsune","type":"creature"},{"id":"kappa","type":"creature"}]`), "c.json")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 2 || got[0].ID != "kitsune" || got[1].ID != "kappa" {
		t.Errorf("unexpected entities: %+v", got)
	}
}

func TestDecodeEnvelopeInfersType(t *testing.T) {
	data := []byte(`{"version": 2, "heroes": [{"name":"Heracles"}], "herbs": [{"name":"Moly","type":"herb"}]}`)
	got, err := Decode(data, "mixed.json")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(got))
	}
	// Envelope keys are visited in sorted order: herbs, heroes.
	if got[0].ID != "moly" || got[0].Type != TypeHerb {
		t.Errorf("first entity = %+v", got[0])
	}
	if got[1].ID != "heracles" || got[1].Type != TypeHero {
		t.Errorf("second entity = %+v", got[1])
	}
}

func TestDecodeEntitiesEnvelope(t *testing.T) {
	got, err := Decode([]byte(`{"entities":[{"id":"yggdrasil","type":"place"}]}`), "e.json")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 || got[0].Type != TypePlace {
		t.Errorf("unexpected entities: %+v", got)
	}
}

func TestDecodeSingleArrayEnvelope(t *testing.T) {
	data := `{"version":1,"records":[{"id":"odin","type":"deity","name":"Odin"},{"name":"Frigg"}]}`
	got, err := Decode([]byte(data), "x.json")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entities, want 2", len(got))
	}
	if got[0].ID != "odin" || got[0].Type != TypeDeity || got[0].SourceFile != "x.json" {
		t.Errorf("first entity = %+v", got[0])
	}
	if got[1].ID != "frigg" || got[1].Type != "" {
		t.Errorf("second entity = %+v, want derived id and no type", got[1])
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		noRecs bool
	}{
		{"empty", "   ", true},
		{"empty array", "[]", true},
		{"no arrays", `{"version": 1}`, true},
		{"two unknown arrays", `{"records": [{"id": "a"}], "aliases": ["b"]}`, true},
		{"scalar", `"zeus"`, false},
		{"malformed", `{"id": }`, false},
		{"bad record", `[{"id": 3}]`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data), "bad.json")
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, ErrNoEntities) != tt.noRecs {
				t.Errorf("errors.Is(ErrNoEntities) = %v, want %v (err: %v)", !tt.noRecs, tt.noRecs, err)
			}
		})
	}
}

func TestLoaderLoadsInFileOrder(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("a.json", `[{"id":"a1"},{"id":"a2"}]`)
	write("b.json", `{"id":"b1"}`)
	write("c.json", `not json`)
	write("d.json", `{"id":"d1"}`)

	files, err := walker.Walk(walker.Config{RootDir: dir})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	result, err := NewLoader(3, nil).Load(context.Background(), files)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if result.Files != 4 {
		t.Errorf("Files = %d, want 4", result.Files)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected 1 error, got %v", result.Errors)
	}

	var ids []string
	for _, e := range result.Entities {
		ids = append(ids, e.ID)
	}
	if diff := cmp.Diff([]string{"a1", "a2", "b1", "d1"}, ids); diff != "" {
		t.Errorf("entity order mismatch (-want +got):\n%s", diff)
	}
}

func TestLoaderCancelled(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{"id":"a"}`), 0o644)
	files, err := walker.Walk(walker.Config{RootDir: dir})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLoader(1, nil).Load(ctx, files); !errors.Is(err, context.Canceled) {
		t.Errorf("Load error = %v, want context.Canceled", err)
	}
}
