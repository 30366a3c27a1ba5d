package alerting

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// policyDocument matches the alerting section of the service config file.
type policyDocument struct {
	Alerting PolicyConfig `yaml:"alerting"`
}

// LoadPolicyFile loads the alerting policy from a YAML config file.
func LoadPolicyFile(path string) (Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer f.Close()

	return LoadPolicy(f)
}

// LoadPolicy loads the alerting policy from a reader.
func LoadPolicy(r io.Reader) (Policy, error) {
	var doc policyDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy YAML: %w", err)
	}

	p, err := doc.Alerting.Resolve()
	if err != nil {
		return Policy{}, fmt.Errorf("invalid alerting policy: %w", err)
	}
	return p, nil
}
