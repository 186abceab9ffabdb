// Package catalog loads the process-wide Catalog once at startup from
// on-disk YAML descriptors (spec.md §3: "Loaded once at startup; never
// mutated during query handling").
//
// Grounded on the teacher's pkg/config/sub_agent_registry.go: a
// build-once, read-only, deep-copy-on-read registry over a merged map,
// generalized here from agent entries to API endpoints and schema
// tables.
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fctr-io/okta-query-engine/pkg/models"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

type endpointsFile struct {
	Endpoints []yamlEndpoint `yaml:"endpoints"`
}

type yamlEndpoint struct {
	ID         string          `yaml:"id"`
	Entity     string          `yaml:"entity"`
	Operation  string          `yaml:"operation"`
	HTTPMethod string          `yaml:"http_method"`
	URLPattern string          `yaml:"url_pattern"`
	Required   []yamlParameter `yaml:"required"`
	Optional   []yamlParameter `yaml:"optional"`
	Notes      string          `yaml:"notes"`
	Depends    []string        `yaml:"dependencies"`
}

type yamlParameter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type schemaFile struct {
	Tables []yamlTable `yaml:"tables"`
}

type yamlTable struct {
	Name          string       `yaml:"name"`
	Columns       []yamlColumn `yaml:"columns"`
	Relationships []string     `yaml:"relationships"`
}

type yamlColumn struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Load reads api_catalog.yaml and schema_catalog.yaml from dir and builds
// the process-wide Catalog. The two files are independent, so they are
// read and parsed concurrently; both are required — a missing or
// malformed file is a startup error, not a runtime one.
func Load(dir string) (*models.Catalog, error) {
	var endpoints []models.Endpoint
	var tables []models.Table

	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() error {
		var err error
		endpoints, err = loadEndpoints(filepath.Join(dir, "api_catalog.yaml"))
		return err
	})
	g.Go(func() error {
		var err error
		tables, err = loadTables(filepath.Join(dir, "schema_catalog.yaml"))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return models.NewCatalog(endpoints, tables), nil
}

func loadEndpoints(path string) ([]models.Endpoint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var file endpointsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	out := make([]models.Endpoint, 0, len(file.Endpoints))
	for _, e := range file.Endpoints {
		out = append(out, models.Endpoint{
			ID:         e.ID,
			Entity:     e.Entity,
			Operation:  e.Operation,
			HTTPMethod: e.HTTPMethod,
			URLPattern: e.URLPattern,
			Required:   toParams(e.Required),
			Optional:   toParams(e.Optional),
			Notes:      e.Notes,
			Depends:    e.Depends,
		})
	}
	return out, nil
}

func toParams(in []yamlParameter) []models.Parameter {
	out := make([]models.Parameter, 0, len(in))
	for _, p := range in {
		out = append(out, models.Parameter{Name: p.Name, Description: p.Description})
	}
	return out
}

func loadTables(path string) ([]models.Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var file schemaFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	out := make([]models.Table, 0, len(file.Tables))
	for _, t := range file.Tables {
		cols := make([]models.Column, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, models.Column{Name: c.Name, Type: c.Type})
		}
		out = append(out, models.Table{Name: t.Name, Columns: cols, Relationships: t.Relationships})
	}
	return out, nil
}
