package analytics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nerdvision/internal/analytics"
	"nerdvision/internal/pkg/sourcerules"
)

func sourceComparison(t *testing.T) *analytics.Comparison {
	t.Helper()
	prev := mustTable(t, analytics.SourceDimensions, analytics.SourceMetrics,
		[]any{"google", "organic", "No", "(not set)", 80, 4},
		[]any{"facebook.com", "referral", "Yes", "Facebook", 10, 1},
		[]any{"m.facebook.com", "referral", "Yes", "Facebook", 5, 0},
		[]any{"(direct)", "(none)", "No", "(not set)", 50, 5},
	)
	curr := mustTable(t, analytics.SourceDimensions, analytics.SourceMetrics,
		[]any{"google", "organic", "No", "(not set)", 100, 10},
		[]any{"bing", "organic", "No", "(not set)", 50, 0},
		[]any{"facebook.com", "referral", "Yes", "Facebook", 20, 2},
		[]any{"m.facebook.com", "referral", "Yes", "Facebook", 10, 1},
		[]any{"t.co", "referral", "Yes", "Twitter", 4, 0},
		[]any{"(direct)", "(none)", "No", "(not set)", 40, 2},
		[]any{"newsletter", "weird", "No", "(not set)", 6, 3},
		[]any{"partner.com", "referral", "No", "(not set)", 8, 0},
	)

	cmp, err := analytics.Align(prev, curr, analytics.AlignSpec{
		Keys:    analytics.SourceDimensions,
		Metrics: analytics.SourceMetrics,
	})
	require.NoError(t, err)
	return cmp
}

func TestClassifySources_Partition(t *testing.T) {
	cmp := sourceComparison(t)
	report, err := analytics.ClassifySources(cmp, sourcerules.MustDefault())
	require.NoError(t, err)

	require.Len(t, report.Classified, len(cmp.Rows))

	total := 0
	for _, c := range report.Summary {
		total += c.Sources
	}
	assert.Equal(t, len(cmp.Rows), total)

	categories := map[string]sourcerules.Category{}
	for _, r := range report.Classified {
		categories[r.Source] = r.Category
	}
	assert.Equal(t, sourcerules.OrganicSearch, categories["google"])
	assert.Equal(t, sourcerules.OrganicSearch, categories["bing"])
	assert.Equal(t, sourcerules.Social, categories["facebook.com"])
	assert.Equal(t, sourcerules.Social, categories["t.co"])
	assert.Equal(t, sourcerules.Direct, categories["(direct)"])
	assert.Equal(t, sourcerules.Referral, categories["partner.com"])
	assert.Equal(t, sourcerules.Other, categories["newsletter"])
}

func TestClassifySources_Detail(t *testing.T) {
	report, err := analytics.ClassifySources(sourceComparison(t), sourcerules.MustDefault())
	require.NoError(t, err)

	var sources []string
	for _, r := range report.Detail {
		sources = append(sources, r.Source)
	}
	assert.Equal(t, []string{"Facebook", "Twitter", "google", "bing", "partner.com", "(direct)", "newsletter"}, sources)

	facebook := report.Detail[0]
	assert.Equal(t, sourcerules.Social, facebook.Category)
	assert.Equal(t, int64(15), facebook.SessionsPrev)
	assert.Equal(t, int64(30), facebook.SessionsCurr)
	assert.Equal(t, int64(1), facebook.GoalCompletionsPrev)
	assert.Equal(t, int64(3), facebook.GoalCompletionsCurr)
	assert.Equal(t, 100.0, facebook.SessionsChangeRate)
	assert.Equal(t, 200.0, facebook.GoalCompletionsChangeRate)
	assert.Equal(t, 6.67, facebook.GoalConversionRatePrev)
	assert.Equal(t, 10.0, facebook.GoalConversionRateCurr)

	bing := report.Detail[3]
	assert.Equal(t, 100.0, bing.SessionsChangeRate)
	assert.Equal(t, 0.0, bing.GoalConversionRateCurr)
}

func TestClassifySources_SummaryRecomputesRatesFromSums(t *testing.T) {
	report, err := analytics.ClassifySources(sourceComparison(t), sourcerules.MustDefault())
	require.NoError(t, err)

	var order []sourcerules.Category
	for _, c := range report.Summary {
		order = append(order, c.Category)
	}
	assert.Equal(t, []sourcerules.Category{
		sourcerules.OrganicSearch,
		sourcerules.Direct,
		sourcerules.Social,
		sourcerules.Referral,
		sourcerules.Other,
	}, order)

	organic := report.Summary[0]
	assert.Equal(t, 2, organic.Sources)
	assert.Equal(t, int64(80), organic.SessionsPrev)
	assert.Equal(t, int64(150), organic.SessionsCurr)
	assert.Equal(t, int64(10), organic.GoalCompletionsCurr)
	// 10 goals over 150 sessions, not the mean of 10% and 0%
	assert.Equal(t, 6.67, organic.GoalConversionRateCurr)
	assert.Equal(t, 5.0, organic.GoalConversionRatePrev)
	assert.Equal(t, 87.5, organic.SessionsChangeRate)

	social := report.Summary[2]
	assert.Equal(t, 3, social.Sources)
	assert.Equal(t, int64(34), social.SessionsCurr)
}

func TestClassifySources_OrganicNeverOther(t *testing.T) {
	curr := mustTable(t, analytics.SourceDimensions, analytics.SourceMetrics,
		[]any{"duckduckgo", "organic", "No", "(not set)", 100, 0})
	cmp, err := analytics.Align(nil, curr, analytics.AlignSpec{Keys: analytics.SourceDimensions, Metrics: analytics.SourceMetrics})
	require.NoError(t, err)

	report, err := analytics.ClassifySources(cmp, sourcerules.MustDefault())
	require.NoError(t, err)
	require.Len(t, report.Summary, 1)
	assert.Equal(t, sourcerules.OrganicSearch, report.Summary[0].Category)
	assert.Equal(t, int64(100), report.Summary[0].SessionsCurr)
}

func TestClassifySources_CustomRules(t *testing.T) {
	rules, err := sourcerules.Parse([]byte(`
categories:
  - category: Paid Search
    field: source
    regex: '^adwords'
fallback: Referral
`))
	require.NoError(t, err)

	curr := mustTable(t, analytics.SourceDimensions, analytics.SourceMetrics,
		[]any{"adwords-spring", "(none)", "No", "(not set)", 7, 1},
		[]any{"google", "organic", "No", "(not set)", 3, 0})
	cmp, err := analytics.Align(nil, curr, analytics.AlignSpec{Keys: analytics.SourceDimensions, Metrics: analytics.SourceMetrics})
	require.NoError(t, err)

	report, err := analytics.ClassifySources(cmp, rules)
	require.NoError(t, err)
	assert.Equal(t, sourcerules.PaidSearch, report.Classified[0].Category)
	assert.Equal(t, sourcerules.Referral, report.Classified[1].Category)
}

func TestClassifySources_RequiresSourceKeys(t *testing.T) {
	cmp, err := analytics.Align(pageviewTable(t), pageviewTable(t), pathSpec)
	require.NoError(t, err)

	_, err = analytics.ClassifySources(cmp, sourcerules.MustDefault())
	assert.Error(t, err)
}
