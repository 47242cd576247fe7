package permission

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ruleFile is the on-disk rule document shape.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// ParseRules decodes and validates a YAML rule document:
//
//	rules:
//	  - subject: "agent:*"
//	    resource: "octo-org/*"
//	    actions: [read_file, list_files]
func ParseRules(data []byte) ([]Rule, error) {
	var doc ruleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("permission: parsing rules: %w", err)
	}

	for i, rule := range doc.Rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return doc.Rules, nil
}

// LoadRules reads and parses a rule file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("permission: reading rule file: %w", err)
	}
	return ParseRules(data)
}
