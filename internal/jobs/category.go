package jobs

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/cutout/internal/client"
)

// Category is a processing kind. The set is closed.
type Category string

const (
	RemoveBackground Category = "remove-background"
	Vectorize        Category = "vectorize"
)

// CategorySpec is the static configuration of a category.
type CategorySpec struct {
	Category       Category
	TaskType       client.TaskType
	Title          string
	AcceptsOptions bool   // scale / enhance_before are sent only when true
	ResultExt      string // extension of the downloaded artifact
	LeftLabel      string
	RightLabel     string
}

var specs = map[Category]CategorySpec{
	RemoveBackground: {
		Category:   RemoveBackground,
		TaskType:   client.TaskRemoveBackground,
		Title:      "Remove BG",
		ResultExt:  ".png",
		LeftLabel:  "Original",
		RightLabel: "No Background",
	},
	Vectorize: {
		Category:       Vectorize,
		TaskType:       client.TaskVectorize,
		Title:          "Vectorize",
		AcceptsOptions: true,
		ResultExt:      ".svg",
		LeftLabel:      "Original",
		RightLabel:     "SVG Result",
	},
}

// Categories returns every category in display order.
func Categories() []Category {
	return []Category{RemoveBackground, Vectorize}
}

// Spec returns the configuration of c.
func (c Category) Spec() (CategorySpec, bool) {
	s, ok := specs[c]
	return s, ok
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := specs[c]
	return ok
}

func (c Category) String() string { return string(c) }

// ParseCategory accepts the CLI name ("remove-background") or the wire name ("remove_background").
func ParseCategory(s string) (Category, error) {
	norm := Category(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	switch norm {
	case "bg", "rmbg":
		norm = RemoveBackground
	case "svg", "vector":
		norm = Vectorize
	}
	if !norm.Valid() {
		return "", fmt.Errorf("%w: %q (want remove-background or vectorize)", ErrUnknownCategory, s)
	}
	return norm, nil
}

// Options are category-specific upload parameters.
type Options struct {
	Scale         int  `json:"scale" yaml:"scale"`
	EnhanceBefore bool `json:"enhance_before" yaml:"enhance_before"`
}

// DefaultOptions matches the service defaults: 4x, no enhancement.
func DefaultOptions() Options {
	return Options{Scale: 4}
}

// Validate checks the scale factor.
func (o Options) Validate() error {
	switch o.Scale {
	case 2, 4, 8:
		return nil
	default:
		return fmt.Errorf("%w: %d (want 2, 4 or 8)", ErrInvalidScale, o.Scale)
	}
}

// uploadFields returns the optional multipart fields for spec, or nils when
// the category does not accept options.
func (o Options) uploadFields(spec CategorySpec) (*int, *bool) {
	if !spec.AcceptsOptions {
		return nil, nil
	}
	scale, enhance := o.Scale, o.EnhanceBefore
	return &scale, &enhance
}
