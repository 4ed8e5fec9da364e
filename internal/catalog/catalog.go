// Package catalog loads mission definitions from YAML seed files.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"ecoquest_miniapp/internal/model"

	"gopkg.in/yaml.v3"
)

//go:embed missions.yaml
var defaultCatalog []byte

// maxPeriodicDays is the longest window a periodic definition may use: the
// weekly period.
const maxPeriodicDays = 7

type file struct {
	Missions []entry `yaml:"missions"`
}

type entry struct {
	ID                  int64   `yaml:"id"`
	Track               string  `yaml:"track"`
	Type                string  `yaml:"type"`
	Title               string  `yaml:"title"`
	Description         string  `yaml:"description"`
	Target              float64 `yaml:"target"`
	DurationDays        int     `yaml:"durationDays"`
	RequiredActivityIDs []int64 `yaml:"requiredActivityIds"`
	XPReward            int     `yaml:"xpReward"`
	VitalityReward      int     `yaml:"vitalityReward"`
	MinLevel            int     `yaml:"minLevel"`
	Difficulty          string  `yaml:"difficulty"`
}

func (e entry) toModel() *model.MissionDefinition {
	def := &model.MissionDefinition{
		ID:                  e.ID,
		Track:               model.CatalogTrack(e.Track),
		Type:                model.MissionType(e.Type),
		Title:               e.Title,
		Description:         e.Description,
		TargetValue:         e.Target,
		DurationDays:        e.DurationDays,
		RequiredActivityIDs: e.RequiredActivityIDs,
		XPReward:            e.XPReward,
		VitalityReward:      e.VitalityReward,
		MinLevel:            e.MinLevel,
		Difficulty:          model.Difficulty(e.Difficulty),
	}
	if def.MinLevel < 1 {
		def.MinLevel = 1
	}
	if def.Track == model.CatalogPeriodic && def.DurationDays < 1 {
		def.DurationDays = 1
	}
	return def
}

// Default returns the catalog shipped with the binary.
func Default() ([]*model.MissionDefinition, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

func LoadFile(path string) ([]*model.MissionDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes and validates a catalog document.
func Load(r io.Reader) ([]*model.MissionDefinition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc file
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("catalog is empty")
		}
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	defs := make([]*model.MissionDefinition, 0, len(doc.Missions))
	for _, e := range doc.Missions {
		defs = append(defs, e.toModel())
	}
	if err := Validate(defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// Validate reports every problem found in defs, joined into one error.
func Validate(defs []*model.MissionDefinition) error {
	var errs []error
	seen := make(map[int64]struct{}, len(defs))

	for _, d := range defs {
		invalid := func(format string, args ...any) {
			errs = append(errs, fmt.Errorf("mission %d: %s", d.ID, fmt.Sprintf(format, args...)))
		}

		if d.ID <= 0 {
			invalid("id must be positive")
		}
		if _, dup := seen[d.ID]; dup {
			invalid("duplicate id")
		}
		seen[d.ID] = struct{}{}

		if d.Title == "" {
			invalid("title is required")
		}
		if !d.Type.Valid() {
			invalid("unknown type %q", d.Type)
		}
		if !d.Difficulty.Valid() {
			invalid("unknown difficulty %q", d.Difficulty)
		}
		if d.TargetValue <= 0 {
			invalid("target must be positive")
		}
		if d.XPReward < 0 || d.VitalityReward < 0 {
			invalid("rewards must not be negative")
		}

		switch d.Track {
		case model.CatalogPeriodic:
			if d.DurationDays > maxPeriodicDays {
				invalid("periodic duration %d exceeds %d days", d.DurationDays, maxPeriodicDays)
			}
		case model.CatalogPersistent:
		default:
			invalid("unknown track %q", d.Track)
		}

		if d.Type == model.MissionSpecificActivity && len(d.RequiredActivityIDs) == 0 {
			invalid("specific_activity needs required activity ids")
		}
	}

	return errors.Join(errs...)
}
