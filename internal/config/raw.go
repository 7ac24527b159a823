package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DesktopValue accepts either:
//
//	desktop: 2
//
// or:
//
//	desktop: "2"
//
// and always holds the string form.
type DesktopValue string

func (d *DesktopValue) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("desktop must be a scalar")
	}
	switch value.Tag {
	case "!!int", "!!str":
		*d = DesktopValue(value.Value)
		return nil
	default:
		return fmt.Errorf("desktop must be an integer or string, got %s", value.Tag)
	}
}

// RawRule is one rule entry exactly as written in the file.
type RawRule struct {
	Title    string        `yaml:"title" validate:"required"`
	When     *string       `yaml:"when" validate:"omitempty,min=1"`
	Desktop  *DesktopValue `yaml:"desktop" validate:"omitempty,numeric"`
	Geometry *string       `yaml:"geometry"`
	Display  *string       `yaml:"display" validate:"omitempty,oneof=laptop monitor"`
}

// RawConfig is the top-level document.
type RawConfig struct {
	Rules []RawRule `yaml:"rules" validate:"dive"`
}
