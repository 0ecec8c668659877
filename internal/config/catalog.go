package config

import (
	"encoding/json"
	"fmt"
	"os"

	"studiotblack/internal/model"
	"studiotblack/internal/slots"

	"gopkg.in/yaml.v3"
)

// ServiceConfig is a service entry of catalog.yaml.
type ServiceConfig struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	DurationMin int     `yaml:"duration_min"`
	Price       float64 `yaml:"price"`
	Category    string  `yaml:"category"`
	Active      *bool   `yaml:"active,omitempty"`
}

// ProfessionalConfig is a professional entry of catalog.yaml. WorkingHours
// is kept in whatever shape the file uses; it is normalized when read back
// from the store.
type ProfessionalConfig struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	AvatarURL     string   `yaml:"avatar_url"`
	Specialties   []string `yaml:"specialties"`
	WorkingHours  any      `yaml:"working_hours"`
	Active        *bool    `yaml:"active,omitempty"`
	ShowInBooking *bool    `yaml:"show_in_booking,omitempty"`
	Services      []string `yaml:"services"`
}

// SlotsConfig describes the fixed candidate slot list.
type SlotsConfig struct {
	StartTime           string   `yaml:"start_time"`
	EndTime             string   `yaml:"end_time"`
	SlotDurationMinutes int      `yaml:"slot_duration_minutes"`
	BreakStart          string   `yaml:"break_start,omitempty"`
	BreakEnd            string   `yaml:"break_end,omitempty"`
	Candidates          []string `yaml:"candidates,omitempty"`
}

// Catalog is the root of catalog.yaml.
type Catalog struct {
	Services      []ServiceConfig      `yaml:"services"`
	Professionals []ProfessionalConfig `yaml:"professionals"`
	Slots         SlotsConfig          `yaml:"slots"`
}

// LoadCatalog loads and validates the catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		path = "configs/catalog.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	return &c, nil
}

// Validate checks the catalog for errors.
func (c *Catalog) Validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("no services defined")
	}

	serviceIDs := make(map[string]bool)
	for i, s := range c.Services {
		if s.ID == "" {
			return fmt.Errorf("services[%d]: id is required", i)
		}
		if serviceIDs[s.ID] {
			return fmt.Errorf("services[%d]: duplicate id %q", i, s.ID)
		}
		serviceIDs[s.ID] = true
		if s.Name == "" {
			return fmt.Errorf("services[%d]: name is required", i)
		}
		if s.Price < 0 {
			return fmt.Errorf("services[%d]: price cannot be negative", i)
		}
		if s.DurationMin < 0 {
			return fmt.Errorf("services[%d]: duration cannot be negative", i)
		}
	}

	proIDs := make(map[string]bool)
	for i, p := range c.Professionals {
		if p.ID == "" {
			return fmt.Errorf("professionals[%d]: id is required", i)
		}
		if proIDs[p.ID] {
			return fmt.Errorf("professionals[%d]: duplicate id %q", i, p.ID)
		}
		proIDs[p.ID] = true
		if p.Name == "" {
			return fmt.Errorf("professionals[%d]: name is required", i)
		}
		if _, err := model.ParseWorkingHours(p.WorkingHours); err != nil {
			return fmt.Errorf("professionals[%d].working_hours: %w", i, err)
		}
		for j, sid := range p.Services {
			if !serviceIDs[sid] {
				return fmt.Errorf("professionals[%d].services[%d]: unknown service %q", i, j, sid)
			}
		}
	}

	for i, cand := range c.Slots.Candidates {
		if !model.IsClock(slots.Normalize(cand)) {
			return fmt.Errorf("slots.candidates[%d]: invalid time %q", i, cand)
		}
	}
	if len(c.Slots.Candidates) == 0 {
		if _, err := slots.Candidates(c.schedule()); err != nil {
			return fmt.Errorf("slots: %w", err)
		}
	}
	return nil
}

// Candidates returns the fixed candidate slot list of the catalog.
func (c *Catalog) Candidates() ([]string, error) {
	if len(c.Slots.Candidates) > 0 {
		out := make([]string, len(c.Slots.Candidates))
		for i, s := range c.Slots.Candidates {
			out[i] = slots.Normalize(s)
		}
		return out, nil
	}
	return slots.Candidates(c.schedule())
}

func (c *Catalog) schedule() slots.Schedule {
	s := slots.DefaultSchedule()
	if c.Slots.StartTime != "" {
		s.StartTime = c.Slots.StartTime
	}
	if c.Slots.EndTime != "" {
		s.EndTime = c.Slots.EndTime
	}
	if c.Slots.SlotDurationMinutes > 0 {
		s.SlotDuration = c.Slots.SlotDurationMinutes
	}
	s.BreakStart = c.Slots.BreakStart
	s.BreakEnd = c.Slots.BreakEnd
	return s
}

// Service converts the entry to the domain type. Services are active
// unless the file says otherwise.
func (s ServiceConfig) Service() model.Service {
	return model.Service{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		DurationMin: s.DurationMin,
		Price:       s.Price,
		Category:    s.Category,
		Active:      s.Active == nil || *s.Active,
	}
}

// IsActive reports whether the professional is active; the default is true.
func (p ProfessionalConfig) IsActive() bool {
	return p.Active == nil || *p.Active
}

// RawWorkingHours encodes the working hours as JSON in their original shape.
func (p ProfessionalConfig) RawWorkingHours() ([]byte, error) {
	if p.WorkingHours == nil {
		return nil, nil
	}
	return json.Marshal(p.WorkingHours)
}
