package sourcerules_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nerdvision/internal/pkg/sourcerules"
)

func TestDefaultClassification(t *testing.T) {
	rules, err := sourcerules.Default()
	require.NoError(t, err)

	tests := []struct {
		name     string
		attrs    sourcerules.Attributes
		expected sourcerules.Category
		group    string
	}{
		{"social referral wins over medium", sourcerules.Attributes{Source: "facebook.com", Medium: "referral", HasSocialReferral: "Yes", SocialNetwork: "Facebook"}, sourcerules.Social, "Facebook"},
		{"organic", sourcerules.Attributes{Source: "google", Medium: "organic", HasSocialReferral: "No"}, sourcerules.OrganicSearch, ""},
		{"cpc", sourcerules.Attributes{Source: "google", Medium: "cpc", HasSocialReferral: "No"}, sourcerules.PaidSearch, ""},
		{"ppc", sourcerules.Attributes{Source: "bing", Medium: "ppc"}, sourcerules.PaidSearch, ""},
		{"banner", sourcerules.Attributes{Source: "adnet", Medium: "banner"}, sourcerules.Display, ""},
		{"referral", sourcerules.Attributes{Source: "news.ycombinator.com", Medium: "referral"}, sourcerules.Referral, ""},
		{"direct", sourcerules.Attributes{Source: "(direct)", Medium: "(none)"}, sourcerules.Direct, ""},
		{"email", sourcerules.Attributes{Source: "newsletter", Medium: "email"}, sourcerules.Email, ""},
		{"anything else", sourcerules.Attributes{Source: "partner", Medium: "affiliate"}, sourcerules.Other, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := rules.Classify(tt.attrs)
			assert.Equal(t, tt.expected, m.Category)
			assert.Equal(t, tt.group, m.Group)
		})
	}
}

func TestFallbackRanksLast(t *testing.T) {
	rules := sourcerules.MustDefault()

	other := rules.Classify(sourcerules.Attributes{Medium: "affiliate"})
	social := rules.Classify(sourcerules.Attributes{HasSocialReferral: "Yes"})

	assert.Equal(t, len(rules.Categories), other.Rank)
	assert.Equal(t, 0, social.Rank)
}

func TestCleanPath(t *testing.T) {
	rules := sourcerules.MustDefault()

	assert.Equal(t, "example.com/landing", rules.CleanPath("example.com/landing?inf_contact_key=abc123"))
	assert.Equal(t, "example.com/landing?utm_source=x", rules.CleanPath("example.com/landing?utm_source=x&inf_contact_key=abc"))
	assert.Equal(t, "example.com/plain", rules.CleanPath("example.com/plain"))
	assert.True(t, rules.HasCleaners())
}

func TestParseRegexRules(t *testing.T) {
	rules, err := sourcerules.Parse([]byte(`
path_cleaners:
  - '\?fbclid=.*'
categories:
  - category: Organic Search
    field: source
    regex: '^(google|bing|duckduckgo)(\.[a-z.]+)?$'
  - category: Referral
    field: medium
    equals: referral
`))
	require.NoError(t, err)

	assert.Equal(t, sourcerules.OrganicSearch, rules.Classify(sourcerules.Attributes{Source: "duckduckgo.com", Medium: "referral"}).Category)
	assert.Equal(t, sourcerules.Referral, rules.Classify(sourcerules.Attributes{Source: "example.org", Medium: "referral"}).Category)
	assert.Equal(t, sourcerules.Other, rules.Classify(sourcerules.Attributes{Source: "example.org", Medium: "cpc"}).Category)
	assert.Equal(t, "/post", rules.CleanPath("/post?fbclid=XYZ"))
}

func TestParseRejectsInvalidRules(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown category", "categories:\n  - category: Video\n    field: medium\n    equals: video\n"},
		{"unknown field", "categories:\n  - category: Email\n    field: campaign\n    equals: spring\n"},
		{"no matcher", "categories:\n  - category: Email\n    field: medium\n"},
		{"two matchers", "categories:\n  - category: Email\n    field: medium\n    equals: email\n    in: [newsletter]\n"},
		{"bad regex", "categories:\n  - category: Email\n    field: medium\n    regex: '(unclosed'\n"},
		{"bad cleaner", "path_cleaners: ['(unclosed']\n"},
		{"bad fallback", "fallback: Video\n"},
		{"not yaml", "categories: [[["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sourcerules.Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	rules, err := sourcerules.Load("")
	require.NoError(t, err)
	assert.Len(t, rules.Categories, 7)

	path := filepath.Join(t.TempDir(), "rules.yml")
	require.NoError(t, os.WriteFile(path, []byte("categories:\n  - category: Email\n    field: medium\n    equals: newsletter\n"), 0o600))

	rules, err = sourcerules.Load(path)
	require.NoError(t, err)
	assert.Equal(t, sourcerules.Email, rules.Classify(sourcerules.Attributes{Medium: "newsletter"}).Category)
	assert.Equal(t, sourcerules.Other, rules.Classify(sourcerules.Attributes{Medium: "email"}).Category)
	assert.False(t, rules.HasCleaners())

	_, err = sourcerules.Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
