package queryparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedNow pins the clock so relative date aliases resolve deterministically.
var fixedNow = time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

func newTestParser() *Parser {
	return NewParserAt(func() time.Time { return fixedNow })
}

func TestParse_PlainText(t *testing.T) {
	q := newTestParser().Parse("diabetes treatment plan")

	assert.Equal(t, "diabetes treatment plan", q.Text)
	assert.False(t, q.HasFilters())
}

func TestParse_TypeFilter(t *testing.T) {
	q := newTestParser().Parse("diabetes treatment type:pdf date:last-year")

	assert.Equal(t, "diabetes treatment", q.Text)
	assert.Equal(t, map[string]bool{"pdf": true}, q.DocumentTypes)
	require.NotNil(t, q.DateRange)
	assert.Equal(t, fixedNow.AddDate(0, 0, -365), q.DateRange.Start)
	assert.Equal(t, fixedNow, q.DateRange.End)
}

func TestParse_ImageTypesNormalize(t *testing.T) {
	for _, ext := range []string{"png", "jpg", "jpeg", "image"} {
		q := newTestParser().Parse("scan type:" + ext)
		assert.Equal(t, map[string]bool{"image": true}, q.DocumentTypes, "type:%s", ext)
	}
}

func TestParse_UnknownTypeDroppedAndStripped(t *testing.T) {
	q := newTestParser().Parse("notes type:xlsx")

	assert.Equal(t, "notes", q.Text)
	assert.Empty(t, q.DocumentTypes)
}

func TestParse_DateForms(t *testing.T) {
	tests := []struct {
		value     string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"2023", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)},
		{"2023-02", time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2023, 2, 28, 23, 59, 59, 0, time.UTC)},
		{"2023-02-10", time.Date(2023, 2, 10, 0, 0, 0, 0, time.UTC), time.Date(2023, 2, 10, 23, 59, 59, 0, time.UTC)},
		{"this-year", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), fixedNow},
		{"this-month", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), fixedNow},
		{"today", time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), fixedNow},
	}

	for _, tc := range tests {
		q := newTestParser().Parse("visit date:" + tc.value)
		require.NotNil(t, q.DateRange, "date:%s", tc.value)
		assert.Equal(t, tc.wantStart, q.DateRange.Start, "date:%s start", tc.value)
		assert.Equal(t, tc.wantEnd, q.DateRange.End, "date:%s end", tc.value)
	}
}

func TestParse_BadDateStrippedNotFiltered(t *testing.T) {
	q := newTestParser().Parse("visit date:notadate")

	assert.Equal(t, "visit", q.Text)
	assert.Nil(t, q.DateRange)
}

func TestParse_YearOutOfRangeDropped(t *testing.T) {
	q := newTestParser().Parse("visit date:1885")
	assert.Nil(t, q.DateRange)
	assert.Equal(t, "visit", q.Text)
}

func TestParse_EntityFilters(t *testing.T) {
	q := newTestParser().Parse(`"myocardial infarction" entity:medication:aspirin`)

	assert.Equal(t, []string{"myocardial infarction"}, q.ExactPhrases)
	assert.Equal(t, map[string]map[string]bool{
		"medication": {"aspirin": true},
	}, q.EntityFilters)
	// The phrase stays in the residual text for keyword matching.
	assert.Contains(t, q.Text, "myocardial infarction")
}

func TestParse_EntityAliasesAndUnion(t *testing.T) {
	q := newTestParser().Parse("entity:med:aspirin,metformin entity:medication:lisinopril entity:sx:cough")

	assert.Equal(t, map[string]map[string]bool{
		"medication": {"aspirin": true, "metformin": true, "lisinopril": true},
		"symptom":    {"cough": true},
	}, q.EntityFilters)
	assert.Empty(t, q.Text)
}

func TestParse_ScoreThreshold(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"score:>0.7", 0.7},
		{"score:>70", 0.7},
		{"score:>150", 1.0},
		// Exactly 1 is not "above 1", so it is not divided by 100.
		{"score:>1", 1.0},
	}

	for _, tc := range tests {
		q := newTestParser().Parse("report " + tc.in)
		assert.InDelta(t, tc.want, q.MinScore, 1e-9, "%s", tc.in)
		assert.Equal(t, "report", q.Text, "%s", tc.in)
	}
}

func TestParse_ExcludeTerms(t *testing.T) {
	q := newTestParser().Parse("chest pain -pediatric -trauma")

	assert.Equal(t, "chest pain", q.Text)
	assert.Equal(t, map[string]bool{"pediatric": true, "trauma": true}, q.ExcludeTerms)
}

func TestParse_HyphenatedWordNotExcluded(t *testing.T) {
	q := newTestParser().Parse("follow-up visit")
	assert.Equal(t, "follow-up visit", q.Text)
	assert.Empty(t, q.ExcludeTerms)
}

func TestParse_OnlyTokensLeavesEmptyText(t *testing.T) {
	q := newTestParser().Parse(`type:pdf date:2023 entity:med:aspirin score:>0.5 -noise`)

	assert.Empty(t, q.Text)
	assert.True(t, q.HasFilters())
}

func TestParse_WhitespaceCollapse(t *testing.T) {
	q := newTestParser().Parse("  diabetes   type:pdf   treatment  ")
	assert.Equal(t, "diabetes treatment", q.Text)
}
