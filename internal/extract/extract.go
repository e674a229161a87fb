// Package extract derives structured, category-specific attributes (GPU
// series, memory type, CPU socket, ...) from free-text product names. The
// rules are data: an embedded YAML table that can be replaced at startup.
package extract

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"supplier-catalog-service/internal/domain"
)

//go:embed rules.yaml
var defaultRules []byte

const (
	FieldName        = "name"
	FieldDescription = "description"
)

// RuleFile is the YAML document describing every category's rules.
type RuleFile struct {
	Version    string         `yaml:"version"`
	Categories []CategorySpec `yaml:"categories"`
}

type CategorySpec struct {
	Category string     `yaml:"category"`
	Aliases  []string   `yaml:"aliases"`
	Rules    []RuleSpec `yaml:"rules"`
}

type RuleSpec struct {
	Name     string        `yaml:"name"`
	Key      string        `yaml:"key"`
	Fields   []string      `yaml:"fields"`
	Patterns []PatternSpec `yaml:"patterns"`
}

type PatternSpec struct {
	Regex string `yaml:"regex"`
	Value string `yaml:"value"`
	Upper bool   `yaml:"upper"`
}

type pattern struct {
	re    *regexp.Regexp
	value string
	upper bool
}

// Rule is one compiled extraction rule.
type Rule struct {
	Name     string
	Key      string
	fields   []string
	patterns []pattern
}

// Extract returns the value the first matching pattern produces for p.
func (r Rule) Extract(p domain.Product) (string, bool) {
	text := r.text(p)
	if text == "" {
		return "", false
	}
	for _, pt := range r.patterns {
		m := pt.re.FindStringSubmatchIndex(text)
		if m == nil {
			continue
		}
		var v string
		if pt.value == "" {
			v = text[m[0]:m[1]]
		} else {
			v = string(pt.re.ExpandString(nil, pt.value, text, m))
		}
		if pt.upper {
			v = strings.ToUpper(v)
		}
		if v = strings.TrimSpace(v); v != "" {
			return v, true
		}
	}
	return "", false
}

func (r Rule) text(p domain.Product) string {
	parts := make([]string, 0, len(r.fields))
	for _, f := range r.fields {
		switch f {
		case FieldName:
			parts = append(parts, p.Name)
		case FieldDescription:
			parts = append(parts, p.Description)
		}
	}
	return strings.Join(parts, "\n")
}

type category struct {
	name    string
	aliases []string
	rules   []Rule
}

func (c category) matches(label string) bool {
	label = strings.TrimSpace(label)
	if strings.EqualFold(c.name, label) {
		return true
	}
	for _, a := range c.aliases {
		if strings.EqualFold(a, label) {
			return true
		}
	}
	return false
}

// contains reports whether the lowercased label is part of the category name
// or one of its aliases, the same way the listing's category filter matches.
func (c category) contains(label string) bool {
	if strings.Contains(strings.ToLower(c.name), label) {
		return true
	}
	for _, a := range c.aliases {
		if strings.Contains(strings.ToLower(a), label) {
			return true
		}
	}
	return false
}

// Registry maps category labels onto their ordered extraction rules.
type Registry struct {
	categories []category
}

// Parse compiles a YAML rule document.
func Parse(data []byte) (*Registry, error) {
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse extraction rules: %w", err)
	}
	return Compile(rf)
}

// LoadFile reads and compiles the rule document at path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction rules %s: %w", path, err)
	}
	return Parse(data)
}

// Compile validates rf and compiles every pattern case-insensitively.
func Compile(rf RuleFile) (*Registry, error) {
	reg := &Registry{categories: make([]category, 0, len(rf.Categories))}
	for _, cs := range rf.Categories {
		name := strings.TrimSpace(cs.Category)
		if name == "" {
			return nil, fmt.Errorf("extraction rules: category without a name")
		}
		if _, ok := reg.find(name); ok {
			return nil, fmt.Errorf("extraction rules: category %q declared twice", name)
		}
		c := category{name: name, aliases: cs.Aliases, rules: make([]Rule, 0, len(cs.Rules))}
		keys := make(map[string]bool, len(cs.Rules))
		for _, rs := range cs.Rules {
			rule, err := compileRule(rs)
			if err != nil {
				return nil, fmt.Errorf("extraction rules: %s: %w", name, err)
			}
			if keys[rule.Key] {
				return nil, fmt.Errorf("extraction rules: %s: duplicate key %q", name, rule.Key)
			}
			keys[rule.Key] = true
			c.rules = append(c.rules, rule)
		}
		reg.categories = append(reg.categories, c)
	}
	return reg, nil
}

func compileRule(rs RuleSpec) (Rule, error) {
	if rs.Key == "" || rs.Name == "" {
		return Rule{}, fmt.Errorf("rule needs both name and key")
	}
	if len(rs.Patterns) == 0 {
		return Rule{}, fmt.Errorf("rule %q has no patterns", rs.Key)
	}
	fields := rs.Fields
	if len(fields) == 0 {
		fields = []string{FieldName}
	}
	for _, f := range fields {
		if f != FieldName && f != FieldDescription {
			return Rule{}, fmt.Errorf("rule %q: unknown field %q", rs.Key, f)
		}
	}
	r := Rule{Name: rs.Name, Key: rs.Key, fields: fields, patterns: make([]pattern, 0, len(rs.Patterns))}
	for _, ps := range rs.Patterns {
		re, err := regexp.Compile("(?i)" + ps.Regex)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %q: %w", rs.Key, err)
		}
		r.patterns = append(r.patterns, pattern{re: re, value: ps.Value, upper: ps.Upper})
	}
	return r, nil
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the registry compiled from the embedded rule table.
func Default() *Registry {
	defaultOnce.Do(func() {
		reg, err := Parse(defaultRules)
		if err != nil {
			panic(err)
		}
		defaultReg = reg
	})
	return defaultReg
}

func (r *Registry) find(label string) (category, bool) {
	for _, c := range r.categories {
		if c.matches(label) {
			return c, true
		}
	}
	return category{}, false
}

// resolve finds the category for a filter label: an exact name or alias
// first, else the first category in file order whose name or alias contains
// the label.
func (r *Registry) resolve(label string) (category, bool) {
	if c, ok := r.find(label); ok {
		return c, true
	}
	needle := strings.ToLower(strings.TrimSpace(label))
	if needle == "" {
		return category{}, false
	}
	for _, c := range r.categories {
		if c.contains(needle) {
			return c, true
		}
	}
	return category{}, false
}

// Rules returns the ordered rules registered for the category label, or nil.
func (r *Registry) Rules(categoryLabel string) []Rule {
	if r == nil {
		return nil
	}
	c, ok := r.resolve(categoryLabel)
	if !ok {
		return nil
	}
	return c.rules
}

// Rule looks up a single rule by its filter key within a category.
func (r *Registry) Rule(categoryLabel, key string) (Rule, bool) {
	for _, rule := range r.Rules(categoryLabel) {
		if rule.Key == key {
			return rule, true
		}
	}
	return Rule{}, false
}

// Categories lists the canonical category names that carry rules.
func (r *Registry) Categories() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.categories))
	for i, c := range r.categories {
		out[i] = c.name
	}
	return out
}

// Extract runs every rule of the category over p and returns the values
// found, keyed by rule key.
func (r *Registry) Extract(categoryLabel string, p domain.Product) map[string]string {
	rules := r.Rules(categoryLabel)
	out := make(map[string]string, len(rules))
	for _, rule := range rules {
		if v, ok := rule.Extract(p); ok {
			out[rule.Key] = v
		}
	}
	return out
}
