package services

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// sourceFile is the YAML shape of an enrichment source list.
type sourceFile struct {
	Sources []sourceEntry `yaml:"sources"`
}

type sourceEntry struct {
	Name   string       `yaml:"name"`
	File   string       `yaml:"file"`
	Latin1 bool         `yaml:"latin1"`
	Brand  string       `yaml:"brand"`
	Model  string       `yaml:"model"`
	Year   string       `yaml:"year"`
	Fields []fieldEntry `yaml:"fields"`
	Power  *fieldEntry  `yaml:"power"`
}

type fieldEntry struct {
	Column string   `yaml:"column"`
	Header string   `yaml:"header"`
	Kind   string   `yaml:"kind"`   // numeric (default) | categorical
	Parser string   `yaml:"parser"` // number (default) | seats | horsepower
	Units  []string `yaml:"units"`
}

// LoadSources reads enrichment source descriptors from a YAML file.
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("merge: read sources: %w", err)
	}
	return ParseSources(data)
}

// ParseSources decodes YAML source descriptors.
func ParseSources(data []byte) ([]Source, error) {
	var f sourceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("merge: parse sources: %w", err)
	}
	if len(f.Sources) == 0 {
		return nil, ErrNoSources
	}

	out := make([]Source, 0, len(f.Sources))
	for _, e := range f.Sources {
		if e.Name == "" || e.File == "" || e.Brand == "" || e.Model == "" {
			return nil, fmt.Errorf("merge: source %q needs name, file, brand and model", e.Name)
		}
		s := Source{Name: e.Name, File: e.File, Latin1: e.Latin1, Brand: e.Brand, Model: e.Model, Year: e.Year}
		for _, fe := range e.Fields {
			spec, err := fe.spec()
			if err != nil {
				return nil, fmt.Errorf("merge: source %q: %w", e.Name, err)
			}
			s.Fields = append(s.Fields, spec)
		}
		if e.Power != nil {
			spec, err := e.Power.spec()
			if err != nil {
				return nil, fmt.Errorf("merge: source %q power: %w", e.Name, err)
			}
			s.Power = &spec
		}
		out = append(out, s)
	}
	return out, nil
}

func (e fieldEntry) spec() (FieldSpec, error) {
	if e.Header == "" {
		return FieldSpec{}, fmt.Errorf("field %q has no header", e.Column)
	}
	spec := FieldSpec{Column: e.Column, Header: e.Header}

	switch strings.ToLower(e.Kind) {
	case "", "numeric":
		spec.Kind = Numeric
	case "categorical":
		spec.Kind = Categorical
	default:
		return FieldSpec{}, fmt.Errorf("field %q: unknown kind %q", e.Header, e.Kind)
	}

	switch strings.ToLower(e.Parser) {
	case "", "number":
		if len(e.Units) > 0 {
			spec.Parse = units(e.Units...)
		}
	case "seats":
		spec.Parse = ParseSeats
	case "horsepower":
		spec.Parse = horsepowerKW
	default:
		return FieldSpec{}, fmt.Errorf("field %q: unknown parser %q", e.Header, e.Parser)
	}
	return spec, nil
}
