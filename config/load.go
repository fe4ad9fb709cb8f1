package config

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/tidwall/jsonc"
)

func LoadFromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Config{}
	if err := json.Unmarshal(jsonc.ToJSON(raw), &cfg); err != nil {
		return nil, err
	}

	var errs []error
	for _, job := range cfg.Jobs {
		if job.Enable {
			errs = append(errs, job.Validate())
		}
	}
	return &cfg, errors.Join(errs...)
}
