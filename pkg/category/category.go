// Package category owns category definitions and their parent/child
// relationships: family resolution for the graph engine, cycle-safe
// hierarchy mutation, rename cascades, and guarded deletes.
package category

import (
	"regexp"
	"time"

	"github.com/cohesivestack/valgo"
	"github.com/theapemachine/recall/pkg/errors"
)

// Category is a named routing bucket for memories. A category without
// a parent is its own family root.
type Category struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Parent      string    `json:"parent,omitempty"`
	Color       string    `json:"color,omitempty"`
	IsParent    bool      `json:"is_parent,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// namePattern: lowercase letter followed by lowercase letters, digits,
// or hyphens, 2-30 chars total.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]{1,29}$`)

// ValidateName checks a category name against the naming rules.
func ValidateName(name string) error {
	val := valgo.Is(valgo.String(name, "name").
		Not().Blank().
		MatchingTo(namePattern,
			"{{title}} must be 2-30 chars: a lowercase letter followed by lowercase letters, digits, or hyphens"))

	if !val.Valid() {
		return &errors.ValidationError{
			Field:   "name",
			Message: val.Error().Error(),
		}
	}

	return nil
}
