package catalog

import "testing"

func TestDefaultCatalogLoads(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if len(c.Assessment.PHQ9)+len(c.Assessment.GAD7) != 16 {
		t.Fatalf("expected 16 items, got %d", len(c.Assessment.PHQ9)+len(c.Assessment.GAD7))
	}
	if len(c.Challenges) != 3 || len(c.Pods) != 3 {
		t.Fatalf("unexpected seed sizes: %d challenges, %d pods", len(c.Challenges), len(c.Pods))
	}
	if c.Challenges[0].Active {
		t.Fatal("seeded challenges must start inactive")
	}
	if len(c.Leaderboard) == 0 {
		t.Fatal("expected leaderboard entries")
	}
}

func TestParseRejectsWrongItemCount(t *testing.T) {
	doc := []byte(`
assessment:
  phq9: [a, b]
  gad7: [a]
  options: [{label: x, value: 0}]
`)
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected validation error for short questionnaire")
	}
}

func TestParseRejectsDuplicateChallengeIDs(t *testing.T) {
	doc := []byte(`
assessment:
  phq9: [a, b, c, d, e, f, g, h, i]
  gad7: [a, b, c, d, e, f, g]
  options:
    - {label: a, value: 0}
    - {label: b, value: 1}
    - {label: c, value: 2}
    - {label: d, value: 3}
challenges:
  - {id: "1", name: one}
  - {id: "1", name: again}
`)
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected duplicate id error")
	}
}
