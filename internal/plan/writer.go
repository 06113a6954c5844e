package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// PlanPath returns a timestamped artifact filename inside dir.
func PlanPath(dir string) string {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(dir, fmt.Sprintf("plan_%s.yaml", timestamp))
}

// WritePlan writes a plan artifact to a YAML file.
func WritePlan(p *Plan, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ReadPlan reads a plan artifact from a YAML file and validates it.
func ReadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if err := Validate(&p); err != nil {
		return nil, err
	}

	return &p, nil
}
