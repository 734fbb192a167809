package hints

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule classifies any description containing one of its keywords.
type Rule struct {
	Name           string   `yaml:"name"`
	Keywords       []string `yaml:"keywords"`
	Classification `yaml:",inline"`
}

type RulesConfig struct {
	Rules []Rule `yaml:"rules"`
}

// Rules is an ordered keyword rule list; the first matching rule wins.
type Rules struct {
	rules []Rule
}

// LoadRules reads a YAML rules file.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) (*Rules, error) {
	var config RulesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, r := range config.Rules {
		if len(r.Keywords) == 0 {
			return nil, fmt.Errorf("rule %d (%s) has no keywords", i, r.Name)
		}
		for j, kw := range r.Keywords {
			config.Rules[i].Keywords[j] = strings.ToUpper(strings.TrimSpace(kw))
		}
	}
	return &Rules{rules: config.Rules}, nil
}

// Match returns the first rule with a keyword contained in description.
func (r *Rules) Match(description string) (*Rule, bool) {
	if r == nil {
		return nil, false
	}
	desc := strings.ToUpper(description)
	for i := range r.rules {
		for _, kw := range r.rules[i].Keywords {
			if kw != "" && strings.Contains(desc, kw) {
				return &r.rules[i], true
			}
		}
	}
	return nil, false
}
