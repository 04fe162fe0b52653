package analytics_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"nerdvision/internal/analytics"
)

func row(path string, prev, curr int64) analytics.DeltaRow {
	return analytics.NewDeltaRow([]string{path}, prev, curr)
}

func TestSelectSpikesAndDrops(t *testing.T) {
	rows := []analytics.DeltaRow{
		row("/small-gain", 100, 110), // 10%, below threshold
		row("/big-gain", 100, 200),
		row("/new", 0, 30),
		row("/loss", 100, 50),
		row("/tiny-loss", 100, 95),
		row("/gone", 40, 0),
		row("/flat", 0, 0),
	}

	spikes, drops := analytics.SelectSpikesAndDrops(rows, 18, 5)

	assert.Equal(t, []string{"/big-gain", "/new"}, labels(spikes))
	assert.Equal(t, []string{"/loss", "/gone"}, labels(drops))

	assert.Equal(t, int64(-50), drops[0].Delta)
	assert.Equal(t, 50.0, drops[0].DeltaPct)
	assert.Equal(t, 100.0, drops[1].DeltaPct)
}

func TestSelectSpikesAndDrops_Bounds(t *testing.T) {
	var rows []analytics.DeltaRow
	for i := int64(1); i <= 12; i++ {
		rows = append(rows, row("/up", 10, 10+i*10), row("/down", 200, 200-i*10))
	}

	threshold := 18.0
	spikes, drops := analytics.SelectSpikesAndDrops(rows, threshold, 5)

	assert.Len(t, spikes, 5)
	assert.Len(t, drops, 5)
	for _, r := range append(spikes, drops...) {
		assert.GreaterOrEqual(t, math.Abs(r.DeltaPct), threshold)
	}
	assert.Equal(t, int64(120), spikes[0].Delta)
	assert.Equal(t, int64(-120), drops[0].Delta)
}

func TestSelectSpikesAndDrops_TiesKeepInputOrder(t *testing.T) {
	rows := []analytics.DeltaRow{row("/first", 10, 20), row("/second", 10, 20), row("/third", 10, 20)}

	spikes, _ := analytics.SelectSpikesAndDrops(rows, 18, 2)
	assert.Equal(t, []string{"/first", "/second"}, labels(spikes))
}

func TestSelectSpikesAndDrops_ZeroThresholdKeepsUnchangedRows(t *testing.T) {
	rows := []analytics.DeltaRow{
		row("/flat", 20, 20),
		row("/up", 10, 15),
		row("/down", 10, 5),
	}

	spikes, drops := analytics.SelectSpikesAndDrops(rows, 0, 5)
	assert.Equal(t, []string{"/up", "/flat"}, labels(spikes))
	assert.Equal(t, []string{"/down"}, labels(drops))

	spikes, _ = analytics.SelectSpikesAndDrops(rows, 1, 5)
	assert.Equal(t, []string{"/up"}, labels(spikes))
}

func TestSelectSpikesAndDrops_Empty(t *testing.T) {
	spikes, drops := analytics.SelectSpikesAndDrops(nil, 18, 5)
	assert.NotNil(t, spikes)
	assert.NotNil(t, drops)
	assert.Empty(t, spikes)
	assert.Empty(t, drops)
}

func TestDetailFor(t *testing.T) {
	detail := []analytics.DeltaRow{
		analytics.NewDeltaRow([]string{"/b", "google"}, 1, 2),
		analytics.NewDeltaRow([]string{"/a", "google"}, 1, 3),
		analytics.NewDeltaRow([]string{"/x", "google"}, 1, 3),
		analytics.NewDeltaRow([]string{"/a", "(direct)"}, 2, 1),
	}

	got := analytics.DetailFor(detail, []string{"/a", "/b"})
	assert.Equal(t, []string{"/a / google", "/a / (direct)", "/b / google"}, labels(got))
}

func labels(rows []analytics.DeltaRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Label())
	}
	return out
}
