// Package modification implements the declarative DICOM tag rewriting
// engine used by both the plain "modify" and "anonymize" REST operations:
// a Config describes which tags to keep, remove or replace, and Apply runs
// that description against a parsed dataset in place.
package modification

import (
	"fmt"

	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/orthanc-go/orthanc/internal/models"
)

// identifierTags maps the four hierarchy-defining UIDs to the resource
// level they identify. Config.Level gates which of these a caller is
// allowed to touch without AllowManualIdentifiers.
var identifierTags = map[tag.Tag]models.ResourceKind{
	tag.PatientID:         models.KindPatient,
	tag.StudyInstanceUID:  models.KindStudy,
	tag.SeriesInstanceUID: models.KindSeries,
	tag.SOPInstanceUID:    models.KindInstance,
}

// ErrIdentifierAboveLevel is returned when a Replace/Remove touches an
// identifier tag shallower than the configured Level without
// AllowManualIdentifiers set.
var ErrIdentifierAboveLevel = fmt.Errorf("modification: identifier tag is above the configured level")

// Config is a single Keep/Remove/Replace transformation plan.
type Config struct {
	Replacements           map[tag.Tag]string
	Removals               map[tag.Tag]struct{}
	Keeps                  map[tag.Tag]struct{}
	RemovePrivateTags      bool
	TruncateDates          bool
	Level                  models.ResourceKind
	AllowManualIdentifiers bool
}

// NewConfig returns an empty Config authorised to operate at level.
func NewConfig(level models.ResourceKind) *Config {
	return &Config{
		Replacements: map[tag.Tag]string{},
		Removals:     map[tag.Tag]struct{}{},
		Keeps:        map[tag.Tag]struct{}{},
		Level:        level,
	}
}

func (c *Config) validateIdentifier(t tag.Tag) error {
	if c.AllowManualIdentifiers {
		return nil
	}
	if kind, ok := identifierTags[t]; ok && kind < c.Level {
		return ErrIdentifierAboveLevel
	}
	return nil
}

// Keep exempts tag t from automatic clearing during anonymization.
func (c *Config) Keep(t tag.Tag) {
	c.Keeps[t] = struct{}{}
	delete(c.Removals, t)
	delete(c.Replacements, t)
}

// Remove marks tag t for deletion, unless it is in Keeps.
func (c *Config) Remove(t tag.Tag) error {
	if err := c.validateIdentifier(t); err != nil {
		return err
	}
	c.Removals[t] = struct{}{}
	delete(c.Replacements, t)
	return nil
}

// Replace sets tag t to value. force bypasses the identifier-level check,
// mirroring the internal calls the engine makes for its own regenerated
// identifiers and the friendly-PatientName override.
func (c *Config) Replace(t tag.Tag, value string, force bool) error {
	if !force {
		if err := c.validateIdentifier(t); err != nil {
			return err
		}
	}
	c.Replacements[t] = value
	delete(c.Removals, t)
	return nil
}

// IsReplaced reports whether t has a pending replacement value.
func (c *Config) IsReplaced(t tag.Tag) bool {
	_, ok := c.Replacements[t]
	return ok
}

// GetReplacement returns the pending replacement value for t, or "" if none.
func (c *Config) GetReplacement(t tag.Tag) string {
	return c.Replacements[t]
}
