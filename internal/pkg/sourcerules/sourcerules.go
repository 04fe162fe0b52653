// Package sourcerules holds the injectable data used to classify traffic
// sources into categories and to strip tracking parameters from page paths.
package sourcerules

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yml
var defaultRules []byte

// Category is one of the fixed traffic source buckets
type Category string

const (
	Social        Category = "Social"
	OrganicSearch Category = "Organic Search"
	PaidSearch    Category = "Paid Search"
	Display       Category = "Display"
	Referral      Category = "Referral"
	Direct        Category = "Direct"
	Email         Category = "Email"
	Other         Category = "Other"
)

// Categories lists every category in display order
var Categories = []Category{Social, OrganicSearch, PaidSearch, Display, Referral, Direct, Email, Other}

func validCategory(c Category) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

// Field names a source attribute a rule can inspect
type Field string

const (
	FieldSource            Field = "source"
	FieldMedium            Field = "medium"
	FieldHasSocialReferral Field = "has_social_referral"
	FieldSocialNetwork     Field = "social_network"
)

// Attributes are the dimension values of one source row
type Attributes struct {
	Source            string
	Medium            string
	HasSocialReferral string
	SocialNetwork     string
}

// Get returns the value of a field
func (a Attributes) Get(f Field) string {
	switch f {
	case FieldSource:
		return a.Source
	case FieldMedium:
		return a.Medium
	case FieldHasSocialReferral:
		return a.HasSocialReferral
	case FieldSocialNetwork:
		return a.SocialNetwork
	}
	return ""
}

func validField(f Field) bool {
	switch f {
	case FieldSource, FieldMedium, FieldHasSocialReferral, FieldSocialNetwork:
		return true
	}
	return false
}

// Rule assigns a category when its single matcher accepts the field value
type Rule struct {
	Category Category `yaml:"category"`
	Field    Field    `yaml:"field"`
	Equals   string   `yaml:"equals,omitempty"`
	In       []string `yaml:"in,omitempty"`
	Regex    string   `yaml:"regex,omitempty"`
	// GroupBy collapses matched rows sharing this field's value into one
	// detail row labelled with it.
	GroupBy Field `yaml:"group_by,omitempty"`

	regex *pcre.Regexp
}

func (r *Rule) matches(a Attributes) bool {
	value := a.Get(r.Field)
	switch {
	case r.regex != nil:
		return r.regex.MatchString(value)
	case len(r.In) > 0:
		for _, v := range r.In {
			if v == value {
				return true
			}
		}
		return false
	default:
		return r.Equals == value
	}
}

// Match is the outcome of classifying one row
type Match struct {
	Category Category
	// Rank is the position of the winning rule; the fallback ranks last.
	Rank int
	// Group is the grouping value when the rule groups its rows
	Group string
}

// Rules is an ordered rule set plus path cleaning patterns
type Rules struct {
	PathCleaners []string `yaml:"path_cleaners"`
	Categories   []Rule   `yaml:"categories"`
	Fallback     Category `yaml:"fallback"`

	cleaners []*pcre.Regexp
}

// Default returns the built in rule set
func Default() (*Rules, error) {
	return Parse(defaultRules)
}

// MustDefault is Default for callers that cannot handle a broken build
func MustDefault() *Rules {
	r, err := Default()
	if err != nil {
		panic(fmt.Sprintf("sourcerules: embedded rules are invalid: %v", err))
	}
	return r
}

// Load reads a rule file, or the built in rules when path is empty
func Load(path string) (*Rules, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and compiles a YAML rule set
func Parse(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := r.compile(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Rules) compile() error {
	if r.Fallback == "" {
		r.Fallback = Other
	}
	if !validCategory(r.Fallback) {
		return fmt.Errorf("unknown fallback category %q", r.Fallback)
	}

	r.cleaners = r.cleaners[:0]
	for _, pattern := range r.PathCleaners {
		re, err := pcre.Compile(pattern)
		if err != nil {
			return fmt.Errorf("path cleaner %q: %w", pattern, err)
		}
		r.cleaners = append(r.cleaners, re)
	}

	for i := range r.Categories {
		rule := &r.Categories[i]
		if !validCategory(rule.Category) {
			return fmt.Errorf("rule %d: unknown category %q", i, rule.Category)
		}
		if !validField(rule.Field) {
			return fmt.Errorf("rule %d: unknown field %q", i, rule.Field)
		}
		if rule.GroupBy != "" && !validField(rule.GroupBy) {
			return fmt.Errorf("rule %d: unknown group_by field %q", i, rule.GroupBy)
		}

		matchers := 0
		if rule.Equals != "" {
			matchers++
		}
		if len(rule.In) > 0 {
			matchers++
		}
		if rule.Regex != "" {
			matchers++
			re, err := pcre.Compile(rule.Regex)
			if err != nil {
				return fmt.Errorf("rule %d: regex %q: %w", i, rule.Regex, err)
			}
			rule.regex = re
		}
		if matchers != 1 {
			return fmt.Errorf("rule %d (%s): exactly one of equals, in or regex is required", i, rule.Category)
		}
	}
	return nil
}

// Classify returns the category of the first rule accepting the row
func (r *Rules) Classify(a Attributes) Match {
	for i := range r.Categories {
		rule := &r.Categories[i]
		if !rule.matches(a) {
			continue
		}
		m := Match{Category: rule.Category, Rank: i}
		if rule.GroupBy != "" {
			m.Group = a.Get(rule.GroupBy)
		}
		return m
	}
	return Match{Category: r.Fallback, Rank: len(r.Categories)}
}

// CleanPath strips every configured tracking pattern from a path
func (r *Rules) CleanPath(path string) string {
	for _, re := range r.cleaners {
		path = re.ReplaceAllString(path, "")
	}
	return path
}

// HasCleaners reports whether any path cleaning pattern is configured
func (r *Rules) HasCleaners() bool {
	return len(r.cleaners) > 0
}

func (r *Rules) String() string {
	names := make([]string, 0, len(r.Categories))
	for _, rule := range r.Categories {
		names = append(names, string(rule.Category))
	}
	return strings.Join(names, " > ") + " > " + string(r.Fallback)
}
