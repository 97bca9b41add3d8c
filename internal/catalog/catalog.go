package catalog

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog holds the master data the line terminals pick from: canned
// justification texts by category and stage code definitions. Seeded from
// configuration, editable through the admin surface.
type Catalog struct {
	mu     sync.RWMutex
	texts  map[string][]string
	stages map[string]string // code -> label
}

func New() *Catalog {
	return &Catalog{
		texts:  make(map[string][]string),
		stages: make(map[string]string),
	}
}

// SeedTexts replaces the justification texts wholesale.
func (c *Catalog) SeedTexts(byCategory map[string][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = make(map[string][]string, len(byCategory))
	for cat, list := range byCategory {
		c.texts[cat] = append([]string(nil), list...)
	}
}

// Texts returns the canned strings for a category, sorted.
func (c *Catalog) Texts(category string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := append([]string(nil), c.texts[category]...)
	sort.Strings(out)
	return out
}

// AddText registers one canned justification.
func (c *Catalog) AddText(category, text string) error {
	if category == "" || text == "" {
		return fmt.Errorf("justification requires category and text")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.texts[category] {
		if t == text {
			return nil
		}
	}
	c.texts[category] = append(c.texts[category], text)
	return nil
}

// RemoveText drops one canned justification; unknown entries are a no-op.
func (c *Catalog) RemoveText(category, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.texts[category]
	for i, t := range list {
		if t == text {
			c.texts[category] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// PutStage defines or renames a stage code.
func (c *Catalog) PutStage(code, label string) error {
	if code == "" {
		return fmt.Errorf("stage requires a code")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stages[code] = label
	return nil
}

// Stage looks up a stage label by code.
func (c *Catalog) Stage(code string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	label, ok := c.stages[code]
	return label, ok
}

// Stages returns all stage codes, sorted.
func (c *Catalog) Stages() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.stages))
	for k, v := range c.stages {
		out[k] = v
	}
	return out
}
