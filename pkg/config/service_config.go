// Package config provides configuration loading for parley services.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/parley-ai/parley/pkg/kvstore"
	"github.com/parley-ai/parley/pkg/models"
)

const businessKeyPrefix = "business#"

// ServiceConfigFile is the optional parley.yaml seed file: business profiles
// and instruction packs installed at startup.
type ServiceConfigFile struct {
	Businesses       []BusinessConfig `yaml:"businesses"`
	InstructionPacks []string         `yaml:"instruction_packs"`
}

// BusinessConfig is one seeded business profile.
type BusinessConfig struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Type      string         `yaml:"type"`
	OpenHour  int            `yaml:"open_hour"`
	CloseHour int            `yaml:"close_hour"`
	Settings  map[string]any `yaml:"settings"`
}

// LoadServiceConfig loads the seed file from a YAML path.
func LoadServiceConfig(path string) (*ServiceConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var configFile ServiceConfigFile
	if err := yaml.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return &configFile, nil
}

// SeedBusinesses writes the configured business profiles into the store so
// the identification stage can resolve them.
func SeedBusinesses(ctx context.Context, store kvstore.Store, businesses []BusinessConfig) error {
	for _, business := range businesses {
		if business.ID == "" {
			return fmt.Errorf("business config entry missing id")
		}

		businessType := business.Type
		if businessType == "" {
			businessType = models.GeneralBusinessType
		}

		openHour, closeHour := business.OpenHour, business.CloseHour
		if closeHour == 0 {
			openHour, closeHour = 9, 18
		}

		profile := models.BusinessProfile{
			ID:        business.ID,
			Name:      business.Name,
			Type:      businessType,
			Settings:  business.Settings,
			OpenHour:  openHour,
			CloseHour: closeHour,
		}

		payload, err := json.Marshal(profile)
		if err != nil {
			return fmt.Errorf("failed to encode business %s: %w", business.ID, err)
		}

		var record kvstore.Record
		if err := json.Unmarshal(payload, &record); err != nil {
			return fmt.Errorf("failed to encode business %s: %w", business.ID, err)
		}

		if err := store.Put(ctx, businessKeyPrefix+business.ID, record); err != nil {
			return fmt.Errorf("failed to seed business %s: %w", business.ID, err)
		}
	}

	return nil
}
