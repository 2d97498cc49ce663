package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ezachrisen/sieve"
	"github.com/ezachrisen/sieve/cel"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// filterSpec is one entry of the filters file:
//
//	- id: adults
//	  where: age >= 18 && address.country == "US"
//	  select: [name, address.city]
type filterSpec struct {
	ID     string   `yaml:"id"`
	Where  string   `yaml:"where"`
	Select []string `yaml:"select"`
}

// schemaSpec is one entry of the schema file:
//
//	- name: tags
//	  type: "[]string"
type schemaSpec struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

func loadFilters(r io.Reader) ([]filterSpec, error) {
	var fs []filterSpec
	if err := yaml.NewDecoder(r).Decode(&fs); err != nil {
		return nil, fmt.Errorf("decoding filters: %w", err)
	}
	for i, f := range fs {
		if f.ID == "" {
			return nil, fmt.Errorf("filter %d: missing id", i)
		}
	}
	return fs, nil
}

func loadSchema(r io.Reader) (sieve.Schema, error) {
	var ss []schemaSpec
	if err := yaml.NewDecoder(r).Decode(&ss); err != nil {
		return sieve.Schema{}, fmt.Errorf("decoding schema: %w", err)
	}
	s := sieve.Schema{ID: "cli"}
	for _, e := range ss {
		t, err := sieve.ParseType(e.Type)
		if err != nil {
			return s, fmt.Errorf("schema element %s: %w", e.Name, err)
		}
		s.Elements = append(s.Elements, sieve.DataElement{Name: e.Name, Type: t, Description: e.Description})
	}
	return s, nil
}

func readFile[T any](path string, load func(io.Reader) (T, error)) (T, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer f.Close()
	return load(f)
}

// buildMatcher compiles the filters and registers them with a matcher over
// maps described by the schema. An empty schema accepts any attribute.
func buildMatcher(filters []filterSpec, schema sieve.Schema, log logrus.FieldLogger) (*sieve.Matcher[sieve.Type, string], error) {
	a, err := sieve.NewSchemaAdapter(schema)
	if err != nil {
		return nil, err
	}
	m := sieve.NewMatcher[sieve.Type, string](a, sieve.WithName("cli"), sieve.WithLogger(log))
	for _, fs := range filters {
		f, err := cel.Compile(fs.Where, fs.Select...)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", fs.ID, err)
		}
		if _, err := m.Register(fs.ID, f, fs); err != nil {
			return nil, err
		}
	}
	return m, nil
}
