package automation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flowopsai/orchestrator/internal/domain"
)

// Automation represents one scheduled run definition
type Automation struct {
	Name     string               `yaml:"name"`
	Cron     string               `yaml:"cron"`
	Pipeline *domain.PipelineSpec `yaml:"pipeline,omitempty"`
}

// ScheduleConfig holds all automation definitions
type ScheduleConfig struct {
	Automations []Automation `yaml:"automations"`
}

// Validate checks if the automation is valid
func (a *Automation) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("automation name is required")
	}
	if a.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(a.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// LoadScheduleConfig loads automation definitions from a YAML file. A
// missing file means no automations, not an error.
func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ScheduleConfig{}, nil
		}
		return nil, err
	}

	var cfg ScheduleConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Automations {
		if err := cfg.Automations[i].Validate(); err != nil {
			return nil, fmt.Errorf("automation %d: %w", i, err)
		}
	}

	return &cfg, nil
}
