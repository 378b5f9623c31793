package regions

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Entry permission modes for a region.
const (
	EntryOpen   = "OPEN"
	EntryPermit = "PERMIT"
)

// Config is the static world definition loaded at engine startup. Regions
// are created once from this and never added or removed at runtime.
type Config struct {
	Regions  []Region `yaml:"regions"`
	Gestures []string `yaml:"gestures"`
}

type Region struct {
	Name        string     `yaml:"name"`
	DisplayName string     `yaml:"display_name"`
	Width       float64    `yaml:"width"`
	Height      float64    `yaml:"height"`
	Spawn       [3]float64 `yaml:"spawn"`
	Entry       string     `yaml:"entry"`
	Weather     string     `yaml:"weather"`
	Connected   []string   `yaml:"connected"`
	Objects     []Object   `yaml:"objects"`
}

type Object struct {
	ID    string         `yaml:"id"`
	Name  string         `yaml:"name"`
	Kind  string         `yaml:"kind"`
	Pos   [3]float64     `yaml:"pos"`
	Verbs []string       `yaml:"verbs"`
	State map[string]any `yaml:"state"`
	Items map[string]int `yaml:"items"`
	Owner string         `yaml:"owner"`
}

// Default is the built-in two-region world used by tests and by the server
// when no world.yaml is present.
func Default() Config {
	return Config{
		Regions: []Region{
			{
				Name:        "plaza",
				DisplayName: "Plaza",
				Width:       256,
				Height:      256,
				Spawn:       [3]float64{128, 128, 0},
				Entry:       EntryOpen,
				Weather:     "CLEAR",
				Connected:   []string{"market"},
			},
			{
				Name:        "market",
				DisplayName: "Market",
				Width:       128,
				Height:      128,
				Spawn:       [3]float64{64, 64, 0},
				Entry:       EntryOpen,
				Weather:     "CLEAR",
				Connected:   []string{"plaza"},
			},
		},
		Gestures: DefaultGestures(),
	}
}

func DefaultGestures() []string {
	return []string{"WAVE", "BOW", "DANCE", "LAUGH", "NOD", "SHRUG", "POINT", "CLAP"}
}

func Load(path string) (Config, error) {
	var c Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("world.yaml: %w", err)
	}
	if len(c.Gestures) == 0 {
		c.Gestures = DefaultGestures()
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if len(c.Regions) == 0 {
		return fmt.Errorf("world.yaml: no regions defined")
	}
	seen := map[string]bool{}
	for _, r := range c.Regions {
		if r.Name == "" {
			return fmt.Errorf("world.yaml: region with empty name")
		}
		if seen[r.Name] {
			return fmt.Errorf("world.yaml: duplicate region %q", r.Name)
		}
		seen[r.Name] = true
		if r.Width <= 0 || r.Height <= 0 {
			return fmt.Errorf("world.yaml: region %q has non-positive extent", r.Name)
		}
		if r.Spawn[0] < 0 || r.Spawn[0] > r.Width || r.Spawn[1] < 0 || r.Spawn[1] > r.Height {
			return fmt.Errorf("world.yaml: region %q spawn outside bounds", r.Name)
		}
		switch r.Entry {
		case "", EntryOpen, EntryPermit:
		default:
			return fmt.Errorf("world.yaml: region %q has unknown entry mode %q", r.Name, r.Entry)
		}
	}
	for _, r := range c.Regions {
		for _, conn := range r.Connected {
			if !seen[conn] {
				return fmt.Errorf("world.yaml: region %q connects to unknown region %q", r.Name, conn)
			}
		}
	}
	return nil
}
