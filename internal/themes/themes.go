// Package themes loads the catalog of page themes.
package themes

import (
	_ "embed"
	"fmt"
	"sort"

	"folio/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed themes.yaml
var builtin []byte

// DefaultThemeID is used when a page has no theme.
const DefaultThemeID = "minimal"

// Palette holds a theme's base colors.
type Palette struct {
	Background string `yaml:"background" json:"background"`
	Foreground string `yaml:"foreground" json:"foreground"`
	Accent     string `yaml:"accent" json:"accent"`
}

// Theme is one entry in the catalog.
type Theme struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description"`
	Plan        string  `yaml:"plan" json:"plan"`
	Layout      string  `yaml:"layout" json:"layout"`
	Animated    bool    `yaml:"animated" json:"animated"`
	Palette     Palette `yaml:"palette" json:"palette"`
}

// Catalog is an immutable set of themes.
type Catalog struct {
	ordered []Theme
	byID    map[string]Theme
}

type catalogFile struct {
	Themes []Theme `yaml:"themes"`
}

// Parse builds a Catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse themes: %w", err)
	}
	c := &Catalog{byID: make(map[string]Theme, len(file.Themes))}
	for _, t := range file.Themes {
		if t.ID == "" {
			return nil, fmt.Errorf("parse themes: theme without id")
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("parse themes: duplicate id %q", t.ID)
		}
		if t.Plan == "" {
			t.Plan = models.PlanFree
		}
		if t.Plan != models.PlanFree && t.Plan != models.PlanPro {
			return nil, fmt.Errorf("parse themes: %s has unknown plan %q", t.ID, t.Plan)
		}
		c.byID[t.ID] = t
		c.ordered = append(c.ordered, t)
	}
	sort.SliceStable(c.ordered, func(i, j int) bool {
		return c.ordered[i].Plan == models.PlanFree && c.ordered[j].Plan != models.PlanFree
	})
	return c, nil
}

// Builtin returns the embedded catalog.
func Builtin() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(err)
	}
	return c
}

// List returns every theme, free themes first.
func (c *Catalog) List() []Theme {
	out := make([]Theme, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Get looks up a theme by id.
func (c *Catalog) Get(id string) (Theme, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// Check returns a validation error when id is unknown, or a forbidden error
// when the theme needs a plan the caller does not have.
func (c *Catalog) Check(id, plan string) error {
	t, ok := c.Get(id)
	if !ok {
		return models.NewValidationError(fmt.Sprintf("unknown theme %q", id))
	}
	if t.Plan == models.PlanPro && plan != models.PlanPro {
		return models.NewForbiddenError(fmt.Sprintf("theme %q requires the pro plan", id))
	}
	return nil
}
