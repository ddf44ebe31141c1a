package privacy

import "sort"

// Redact runs every detector, in catalog order, over a progressively
// rewritten buffer. Each detector sees the output of the previous one, so
// order is the only precedence rule between overlapping categories.
func (c *Catalog) Redact(text string, mode Mode) string {
	if text == "" {
		return text
	}

	buffer := text
	for _, d := range c.detectors {
		buffer = d.Replace(buffer, mode.Replacement(d.Category()))
	}
	return buffer
}

// Entities runs every detector over the unmodified text and returns all
// matches ordered by start offset. Matches from different categories are
// neither merged nor deduplicated; equal starts keep catalog order.
func (c *Catalog) Entities(text string) []Match {
	entities := make([]Match, 0)
	if text == "" {
		return entities
	}

	for _, d := range c.detectors {
		entities = append(entities, d.FindAll(text)...)
	}

	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Start < entities[j].Start
	})
	return entities
}
