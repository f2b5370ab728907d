package canon

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testIndex() *Index {
	return NewIndex([]Entry{
		{Name: "Ash Blossom & Joyous Spring", Type: "Tuner Monster"},
		{Name: "Called by the Grave", Type: "Quick-Play Spell Card"},
		{Name: "Infinite Impermanence", Type: "Normal Trap Card"},
		{Name: "Maxx \"C\"", Type: "Effect Monster"},
		{Name: "Triple Tactics Talent", Type: "Normal Spell Card"},
		{Name: "ash blossom & joyous spring", Type: "duplicate"},
	})
}

func TestKindOf(t *testing.T) {
	tests := map[string]Kind{
		"Quick-Play Spell Card": KindSpell,
		"Counter Trap Card":     KindTrap,
		"Effect Monster":        KindMonster,
		"":                      KindMonster,
	}
	for in, want := range tests {
		if got := KindOf(in); got != want {
			t.Errorf("KindOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewIndex_Dedupes(t *testing.T) {
	if got := testIndex().Len(); got != 5 {
		t.Errorf("Len() = %d, want 5", got)
	}
}

func TestCanonicalize(t *testing.T) {
	idx := testIndex()

	t.Run("exact ignores case and spacing", func(t *testing.T) {
		m, ok := idx.Canonicalize("  called by  the GRAVE ")
		if !ok || m.Name != "Called by the Grave" || m.Score != 100 || m.Kind != KindSpell {
			t.Errorf("got %+v, %v", m, ok)
		}
	})

	t.Run("fuzzy typo", func(t *testing.T) {
		m, ok := idx.Canonicalize("Infinite Impermanance")
		if !ok || m.Name != "Infinite Impermanence" || m.Kind != KindTrap {
			t.Errorf("got %+v, %v", m, ok)
		}
		if m.Score >= 100 || m.Score < DefaultMinScore {
			t.Errorf("score = %v, want fuzzy range", m.Score)
		}
	})

	t.Run("below threshold", func(t *testing.T) {
		if m, ok := idx.Canonicalize("zzzzqqqq"); ok {
			t.Errorf("expected no match, got %+v", m)
		}
	})

	t.Run("empty index", func(t *testing.T) {
		if _, ok := NewIndex(nil).Canonicalize("Ash"); ok {
			t.Error("expected no match on empty index")
		}
	})
}

func TestSearch(t *testing.T) {
	idx := testIndex()

	got := idx.Search("Ash Blossom", SearchOptions{Limit: 2, MinScore: 1})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "Ash Blossom & Joyous Spring" {
		t.Errorf("best = %q", got[0].Name)
	}
	if got[0].Score < got[1].Score {
		t.Error("results not sorted by score")
	}
}

func TestScore(t *testing.T) {
	if Score("Maxx \"C\"", "maxx \"c\"") != 100 {
		t.Error("folded names should score 100")
	}
	if Score("", "Ash") != 0 {
		t.Error("empty name should score 0")
	}
	if Score("Ash Blossom", "Ash Blossom & Joyous Spring") <= Score("Ash Blossom", "Triple Tactics Talent") {
		t.Error("closer name should score higher")
	}
}

func TestLoadIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.csv")
	csv := "name,type\n\"Ash Blossom & Joyous Spring\",Tuner Monster\n\"Pot of Prosperity\",Normal Spell Card\nLone Name\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	idx, err := LoadIndex(path)
	if err != nil {
		t.Fatalf("LoadIndex failed: %v", err)
	}
	if idx.Len() != 3 {
		t.Errorf("Len() = %d, want 3", idx.Len())
	}
	if m, ok := idx.Canonicalize("pot of prosperity"); !ok || m.Kind != KindSpell {
		t.Errorf("got %+v, %v", m, ok)
	}

	if _, err := LoadIndex(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFetchIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "duelmeta/") {
			t.Errorf("unexpected User-Agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"name":"Nibiru, the Primal Being","type":"Effect Monster","id":1}]}`))
	}))
	defer server.Close()

	idx, err := FetchIndex(t.Context(), server.URL, 0)
	if err != nil {
		t.Fatalf("FetchIndex failed: %v", err)
	}
	if m, ok := idx.Canonicalize("Nibiru, the Primal Being"); !ok || m.Kind != KindMonster {
		t.Errorf("got %+v, %v", m, ok)
	}

	t.Run("error status", func(t *testing.T) {
		failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer failing.Close()

		if _, err := FetchIndex(t.Context(), failing.URL, 0); err == nil {
			t.Error("expected error for 502")
		}
	})
}
