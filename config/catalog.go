package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arbiterlabs/arbiter/models"
)

// Catalog is the seed catalog of model descriptors, grouped by origin.
// It is loaded once at startup and applied to the ledger via UpsertModels.
type Catalog struct {
	Providers []CatalogProvider `yaml:"providers"`
}

// CatalogProvider groups the models of one origin
type CatalogProvider struct {
	Name   string         `yaml:"name"`
	Models []CatalogModel `yaml:"models"`
}

// CatalogModel is one model descriptor in the seed catalog
type CatalogModel struct {
	Name        string `yaml:"name"`
	Rank        int    `yaml:"rank"`
	Description string `yaml:"description"`
	Enabled     *bool  `yaml:"enabled"` // defaults to true when omitted
	RPMAllowed  int    `yaml:"rpm_allowed"`
	TPMTotal    int    `yaml:"tpm_total"`
	RPDTotal    int    `yaml:"rpd_total"`
	TPDTotal    int    `yaml:"tpd_total"`
}

// LoadCatalog reads and validates the seed catalog from a YAML file
func LoadCatalog(path string) ([]models.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	return ParseCatalog(data)
}

// ParseCatalog parses catalog YAML into model descriptors
func ParseCatalog(data []byte) ([]models.Model, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	seen := make(map[string]struct{})
	var result []models.Model

	for _, provider := range catalog.Providers {
		if provider.Name == "" {
			return nil, fmt.Errorf("catalog provider with empty name")
		}

		for _, cm := range provider.Models {
			if cm.Name == "" {
				return nil, fmt.Errorf("catalog model with empty name under provider %s", provider.Name)
			}
			if _, dup := seen[cm.Name]; dup {
				return nil, fmt.Errorf("duplicate model name in catalog: %s", cm.Name)
			}
			seen[cm.Name] = struct{}{}

			if cm.RPMAllowed < 0 || cm.TPMTotal < 0 || cm.RPDTotal < 0 || cm.TPDTotal < 0 {
				return nil, fmt.Errorf("model %s has a negative quota ceiling", cm.Name)
			}

			enabled := true
			if cm.Enabled != nil {
				enabled = *cm.Enabled
			}

			result = append(result, models.Model{
				Name:        cm.Name,
				Provider:    provider.Name,
				Rank:        cm.Rank,
				Description: cm.Description,
				Enabled:     enabled,
				RPMAllowed:  cm.RPMAllowed,
				TPMTotal:    cm.TPMTotal,
				RPDTotal:    cm.RPDTotal,
				TPDTotal:    cm.TPDTotal,
			})
		}
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("catalog contains no models")
	}

	return result, nil
}
