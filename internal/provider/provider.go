// Package provider defines the classification provider contract and its
// concrete clients. Providers never return errors across the boundary: any
// failure degrades to the sentinel category so callers handle one shape of
// result.
package provider

import (
	"context"
	"fmt"
	"strings"
)

// Example pairs a historical ticket description with its category for
// few-shot prompting.
type Example struct {
	Description string
	Category    string
}

// Classifier turns a ticket description into a category from the given set.
// Implementations must return domain.CategoryUnclassified instead of failing,
// and must bound their own retries. The category constraint is enforced by
// instruction only; callers validate membership.
type Classifier interface {
	Classify(ctx context.Context, description string, categories []string, examples []Example) string
}

// buildPrompt assembles the classification instruction. Example text is
// sanitized so a multi-line historical ticket cannot break the line-oriented
// structure the model is asked to learn from.
func buildPrompt(description string, categories []string, examples []Example) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Role: IT Service Desk Bot. Classify the ticket below into EXACTLY ONE of these categories: [%s].\n\n",
		strings.Join(categories, ", "))

	if len(examples) > 0 {
		b.WriteString("Historical Context (Learn from these):\n")
		for _, ex := range examples {
			fmt.Fprintf(&b, "- Ticket: '%s' -> Category: '%s'\n", sanitizeExample(ex.Description), sanitizeExample(ex.Category))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "New Ticket to classify: '%s'\n", description)
	b.WriteString("Constraint: Output ONLY the category name. No explanations, no markdown.")
	return b.String()
}

// sanitizeExample collapses embedded newlines and runs of whitespace so a
// multi-line historical ticket stays on one prompt line.
func sanitizeExample(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
