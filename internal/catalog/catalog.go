// Package catalog loads the static content the server is seeded with:
// questionnaire items, challenges, pods and the leaderboard.
package catalog

import (
	_ "embed"
	"fmt"

	"github.com/ashureev/mindx/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

// PHQ9Items and GAD7Items are the fixed questionnaire lengths.
const (
	PHQ9Items = 9
	GAD7Items = 7
)

// AnswerOption is one selectable severity level.
type AnswerOption struct {
	Label string `yaml:"label" json:"label"`
	Value int    `yaml:"value" json:"value"`
}

// Assessment holds the questionnaire text.
type Assessment struct {
	PHQ9    []string       `yaml:"phq9"`
	GAD7    []string       `yaml:"gad7"`
	Options []AnswerOption `yaml:"options"`
}

// Catalog is the parsed seed.
type Catalog struct {
	Assessment  Assessment                `yaml:"assessment"`
	Challenges  []domain.Challenge        `yaml:"challenges"`
	Pods        []domain.Pod              `yaml:"pods"`
	Leaderboard []domain.LeaderboardEntry `yaml:"leaderboard"`
}

// Default parses the embedded seed.
func Default() (*Catalog, error) {
	return Parse(seedYAML)
}

// Parse decodes and validates a seed document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Assessment.PHQ9) != PHQ9Items {
		return fmt.Errorf("phq9 needs %d items, got %d", PHQ9Items, len(c.Assessment.PHQ9))
	}
	if len(c.Assessment.GAD7) != GAD7Items {
		return fmt.Errorf("gad7 needs %d items, got %d", GAD7Items, len(c.Assessment.GAD7))
	}
	if len(c.Assessment.Options) != 4 {
		return fmt.Errorf("expected 4 answer options, got %d", len(c.Assessment.Options))
	}
	for i, o := range c.Assessment.Options {
		if o.Value != i {
			return fmt.Errorf("answer option %d has value %d", i, o.Value)
		}
	}
	seen := make(map[string]bool)
	for _, ch := range c.Challenges {
		if ch.ID == "" || seen["c:"+ch.ID] {
			return fmt.Errorf("challenge id %q empty or duplicated", ch.ID)
		}
		seen["c:"+ch.ID] = true
	}
	for _, p := range c.Pods {
		if p.ID == "" || seen["p:"+p.ID] {
			return fmt.Errorf("pod id %q empty or duplicated", p.ID)
		}
		seen["p:"+p.ID] = true
	}
	return nil
}
