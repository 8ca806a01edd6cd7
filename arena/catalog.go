package arena

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

var (
	ErrUnknownTemplate     = errors.New("arena: unknown template")
	ErrInvalidMapReference = errors.New("arena: invalid map reference")
	ErrInvalidTemplate     = errors.New("arena: invalid template")
)

// Catalog is the loaded set of templates. It is immutable except for slot
// reservations; a reload builds a new Catalog and adopts reservations.
type Catalog struct {
	templates map[TemplateID]*Template
}

// catalogFile is the on-disk layout: templates keyed by numeric id.
//
//	templates:
//	  1:
//	    name: Flavius
//	    minPlayersPerSide: 10
//	    ...
type catalogFile struct {
	Templates map[string]json.RawMessage `json:"templates"`
}

type templateDef struct {
	Name              string           `json:"name"`
	MinPlayersPerSide int              `json:"minPlayersPerSide"`
	MaxPlayersPerSide int              `json:"maxPlayersPerSide"`
	MinLevel          int              `json:"minLevel"`
	MaxLevel          int              `json:"maxLevel"`
	DeserterDuration  *metav1.Duration `json:"deserterDuration,omitempty"`
	StartDelay        *metav1.Duration `json:"startDelay,omitempty"`
	Maps              []slotSpec       `json:"maps"`
}

type slotSpec struct {
	Map       string     `json:"map"`
	StartHook string     `json:"startHook,omitempty"`
	SideA     SideConfig `json:"sideA"`
	SideB     SideConfig `json:"sideB"`
}

// Load reads a YAML or JSON template table from path.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes a template table. Entries that fail validation are skipped
// with a warning; only an undecodable document is an error.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	c := &Catalog{templates: make(map[TemplateID]*Template, len(f.Templates))}
	for key, raw := range f.Templates {
		t, err := decodeTemplate(key, raw)
		if err != nil {
			log.Warn().Err(err).Str("template", key).Msg("arena: skipping template entry")
			continue
		}
		c.templates[t.ID] = t
	}
	log.Info().Int("templates", len(c.templates)).Msg("arena: catalog loaded")
	return c, nil
}

// NewCatalog builds a catalog from already constructed templates, applying the
// same validation and defaults as Parse. Invalid templates are rejected.
func NewCatalog(templates ...*Template) (*Catalog, error) {
	c := &Catalog{templates: make(map[TemplateID]*Template, len(templates))}
	for _, t := range templates {
		applyDefaults(t)
		if err := validate(t); err != nil {
			return nil, err
		}
		if _, dup := c.templates[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidTemplate, t.ID)
		}
		c.templates[t.ID] = t
	}
	return c, nil
}

func decodeTemplate(key string, raw json.RawMessage) (*Template, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(key), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: key %q is not a numeric id", ErrInvalidTemplate, key)
	}
	var def templateDef
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	t := &Template{
		ID:                TemplateID(id),
		Name:              strings.TrimSpace(def.Name),
		MinPlayersPerSide: def.MinPlayersPerSide,
		MaxPlayersPerSide: def.MaxPlayersPerSide,
		MinLevel:          def.MinLevel,
		MaxLevel:          def.MaxLevel,
	}
	if def.DeserterDuration != nil {
		t.DeserterDuration = def.DeserterDuration.Duration
	}
	if def.StartDelay != nil {
		t.StartDelay = def.StartDelay.Duration
	}
	seen := make(map[string]bool, len(def.Maps))
	for i, m := range def.Maps {
		mapID := strings.TrimSpace(m.Map)
		if mapID == "" || seen[mapID] {
			log.Warn().Uint32("template", uint32(t.ID)).Int("slot", i).Str("map", mapID).
				Err(ErrInvalidMapReference).Msg("arena: skipping map slot")
			continue
		}
		seen[mapID] = true
		t.Slots = append(t.Slots, &MapSlot{
			MapID:     mapID,
			StartHook: m.StartHook,
			Sides:     [2]SideConfig{m.SideA, m.SideB},
		})
	}
	applyDefaults(t)
	if err := validate(t); err != nil {
		return nil, err
	}
	return t, nil
}

func applyDefaults(t *Template) {
	if t.MaxPlayersPerSide == 0 {
		t.MaxPlayersPerSide = t.MinPlayersPerSide
	}
	if t.StartDelay <= 0 {
		t.StartDelay = DefaultStartDelay
	}
	if t.DeserterDuration <= 0 {
		t.DeserterDuration = DefaultDeserterDuration
	}
}

func validate(t *Template) error {
	switch {
	case t.Name == "":
		return fmt.Errorf("%w: template %d has no name", ErrInvalidTemplate, t.ID)
	case t.MinPlayersPerSide < 1:
		return fmt.Errorf("%w: template %d needs at least one player per side", ErrInvalidTemplate, t.ID)
	case t.MaxPlayersPerSide < t.MinPlayersPerSide:
		return fmt.Errorf("%w: template %d max players %d below min %d", ErrInvalidTemplate, t.ID, t.MaxPlayersPerSide, t.MinPlayersPerSide)
	case t.MaxLevel != 0 && t.MaxLevel < t.MinLevel:
		return fmt.Errorf("%w: template %d max level %d below min %d", ErrInvalidTemplate, t.ID, t.MaxLevel, t.MinLevel)
	case len(t.Slots) == 0:
		return fmt.Errorf("%w: template %d has no usable map slot", ErrInvalidMapReference, t.ID)
	}
	for _, s := range t.Slots {
		if s == nil || s.MapID == "" {
			return fmt.Errorf("%w: template %d has an empty map id", ErrInvalidMapReference, t.ID)
		}
	}
	return nil
}

// Template looks up a template by id.
func (c *Catalog) Template(id TemplateID) (*Template, error) {
	t, ok := c.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTemplate, id)
	}
	return t, nil
}

func (c *Catalog) Has(id TemplateID) bool {
	_, ok := c.templates[id]
	return ok
}

// IDs returns template ids in ascending order.
func (c *Catalog) IDs() []TemplateID {
	ids := make([]TemplateID, 0, len(c.templates))
	for id := range c.templates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *Catalog) Len() int { return len(c.templates) }
