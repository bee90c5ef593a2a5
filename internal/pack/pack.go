// Package pack loads authored inputs from YAML or JSON files: rule packs,
// clause libraries, clause sources for ingestion, templates, answers and
// firm profiles.
//
// Loading is strict where the engine is tolerant. Structural problems
// (missing ids, unknown section types, oversized packs) fail with
// types.ErrInvalidPack or a more specific sentinel; individual malformed
// conditions and priorities are still accepted and left to the engine.
package pack

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/solatis/policysmith/internal/types"
)

// Format is a pack file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// FormatOf returns the format for a file name by extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %s", types.ErrUnsupportedFormat, path)
}

// Decode unmarshals data in format into v.
func Decode(data []byte, format Format, v any) error {
	switch format {
	case FormatYAML:
		return yaml.Unmarshal(data, v)
	case FormatJSON:
		return json.Unmarshal(data, v)
	}
	return fmt.Errorf("%w: %s", types.ErrUnsupportedFormat, format)
}

func readFile(path string) ([]byte, Format, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, format, nil
}

func decodeFile(path string, v any) error {
	data, format, err := readFile(path)
	if err != nil {
		return err
	}
	if err := Decode(data, format, v); err != nil {
		return fmt.Errorf("%w: %s: %v", types.ErrInvalidPack, path, err)
	}
	return nil
}

// isSequence reports whether the document's top level is a list.
func isSequence(data []byte, format Format) bool {
	if format == FormatJSON {
		trimmed := bytes.TrimSpace(data)
		return len(trimmed) > 0 && trimmed[0] == '['
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil || len(node.Content) == 0 {
		return false
	}
	return node.Content[0].Kind == yaml.SequenceNode
}

// checkStruct runs validator tags and wraps failures in ErrInvalidPack.
func checkStruct(what string, v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("%w: %s: %s", types.ErrInvalidPack, what, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %s: %v", types.ErrInvalidPack, what, err)
	}
	return nil
}

// LoadTemplate reads and validates a template.
func LoadTemplate(path string) (types.Template, error) {
	var t types.Template
	if err := decodeFile(path, &t); err != nil {
		return types.Template{}, err
	}
	if err := ValidateTemplate(t); err != nil {
		return types.Template{}, err
	}
	return t, nil
}

// ValidateTemplate checks required fields and unique section ids.
func ValidateTemplate(t types.Template) error {
	if err := checkStruct("template "+t.ID, t); err != nil {
		return err
	}
	seen := map[string]struct{}{}
	for _, s := range t.Sections {
		if _, ok := seen[s.ID]; ok {
			return fmt.Errorf("%w: template %s: duplicate section %q", types.ErrInvalidPack, t.ID, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// LoadAnswers reads a flat answers or attributes object.
func LoadAnswers(path string) (types.Answers, error) {
	answers := types.Answers{}
	if err := decodeFile(path, &answers); err != nil {
		return nil, err
	}
	return answers, nil
}

// LoadFirm reads and validates a firm profile.
func LoadFirm(path string) (types.FirmProfile, error) {
	var firm types.FirmProfile
	if err := decodeFile(path, &firm); err != nil {
		return types.FirmProfile{}, err
	}
	if err := checkStruct("firm", firm); err != nil {
		return types.FirmProfile{}, err
	}
	return firm, nil
}
