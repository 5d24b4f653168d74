package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medscribe/clinsearch/pkg/types"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestReasoner() *Reasoner {
	return NewReasonerAt(DefaultConfig(), func() time.Time { return fixedNow })
}

func TestParseTemporal_NoReference(t *testing.T) {
	tq := newTestReasoner().ParseTemporal("diabetes treatment options")

	assert.False(t, tq.HasTemporalReference)
	assert.Equal(t, 1.0, tq.DecayFactor)
	assert.Nil(t, tq.Range())
}

func TestParseTemporal_BareYearWins(t *testing.T) {
	// Even with "recent" present, the bare year takes precedence.
	tq := newTestReasoner().ParseTemporal("recent labs from 2023")

	require.True(t, tq.HasTemporalReference)
	assert.Equal(t, "2023", tq.TimeFrame)
	assert.Equal(t, 0.0, tq.DecayFactor)
	require.NotNil(t, tq.Range())
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), tq.Range().Start)
	assert.Equal(t, time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC), tq.Range().End)
}

func TestParseTemporal_KeywordWindow(t *testing.T) {
	tq := newTestReasoner().ParseTemporal("notes from last week")

	require.True(t, tq.HasTemporalReference)
	assert.Equal(t, 0.0, tq.DecayFactor)
	require.NotNil(t, tq.StartDate)
	assert.Equal(t, fixedNow.Add(-7*24*time.Hour), *tq.StartDate)
	assert.Equal(t, fixedNow, *tq.EndDate)
}

func TestParseTemporal_EarliestStartWins(t *testing.T) {
	// "last year" (365d) starts earlier than "recent" (30d); both match.
	tq := newTestReasoner().ParseTemporal("recent visits from last year")

	require.True(t, tq.HasTemporalReference)
	assert.Equal(t, "last year", tq.TimeFrame)
	assert.Contains(t, tq.MatchedKeywords, "recent")
	assert.Contains(t, tq.MatchedKeywords, "last year")
	assert.Equal(t, fixedNow.Add(-365*24*time.Hour), *tq.StartDate)
	assert.Equal(t, fixedNow, *tq.EndDate)
}

func TestParseTemporal_ThisYearAnchorsToJanFirst(t *testing.T) {
	tq := newTestReasoner().ParseTemporal("procedures this year")

	require.True(t, tq.HasTemporalReference)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), *tq.StartDate)
	assert.Equal(t, fixedNow, *tq.EndDate)
}

func TestCalculateDecay_OneHalfLife(t *testing.T) {
	r := newTestReasoner()
	created := fixedNow.Add(-180 * 24 * time.Hour)

	// One half-life elapsed: 2^-1 = 0.5, exactly at the floor.
	assert.InDelta(t, 0.5, r.CalculateDecay(created, fixedNow), 1e-9)
}

func TestCalculateDecay_FreshReturnsCeiling(t *testing.T) {
	r := newTestReasoner()

	assert.Equal(t, DefaultDecayCeiling, r.CalculateDecay(fixedNow, fixedNow))
	// Future timestamps (negative age) also return the ceiling.
	assert.Equal(t, DefaultDecayCeiling, r.CalculateDecay(fixedNow.Add(time.Hour), fixedNow))
}

func TestCalculateDecay_Bounds(t *testing.T) {
	r := newTestReasoner()
	ages := []time.Duration{0, 24 * time.Hour, 90 * 24 * time.Hour, 500 * 24 * time.Hour, 5000 * 24 * time.Hour}

	for _, age := range ages {
		d := r.CalculateDecay(fixedNow.Add(-age), fixedNow)
		assert.GreaterOrEqual(t, d, DefaultDecayFloor, "age %v", age)
		assert.LessOrEqual(t, d, DefaultDecayCeiling, "age %v", age)
	}
}

func chunk(doc string, idx int, score float64, created time.Time) types.ScoredChunk {
	return types.ScoredChunk{DocumentID: doc, ChunkIndex: idx, Score: score, CreatedAt: created}
}

func TestProcessResults_ExplicitRangeFiltersWithoutDecay(t *testing.T) {
	r := newTestReasoner()
	tq := r.ParseTemporal("labs 2023")

	in := []types.ScoredChunk{
		chunk("a", 0, 0.9, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)),
		chunk("b", 0, 0.8, time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC)),
		chunk("c", 0, 0.7, time.Time{}), // no timestamp: kept by default
	}

	out := r.ProcessResults(in, tq)

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].DocumentID)
	assert.Equal(t, "c", out[1].DocumentID)
	// Scores are untouched when filtering: no multiplicative decay.
	assert.Equal(t, 0.9, out[0].Score)
	assert.Equal(t, 0.7, out[1].Score)
}

func TestProcessResults_DecayAppliedAndResorted(t *testing.T) {
	r := newTestReasoner()
	tq := r.ParseTemporal("diabetes")
	require.Equal(t, 1.0, tq.DecayFactor)

	fresh := fixedNow.Add(-24 * time.Hour)
	ancient := fixedNow.Add(-4 * 365 * 24 * time.Hour)

	in := []types.ScoredChunk{
		chunk("old", 0, 0.80, ancient), // decays to 0.80*0.5 = 0.40
		chunk("new", 0, 0.60, fresh),   // ~0.60*0.95 = 0.57
	}

	out := r.ProcessResults(in, tq)

	require.Len(t, out, 2)
	assert.Equal(t, "new", out[0].DocumentID)
	assert.Equal(t, "old", out[1].DocumentID)
	assert.InDelta(t, 0.40, out[1].Score, 1e-9)
	// The input slice is not mutated.
	assert.Equal(t, 0.80, in[0].Score)
}

func TestProcessResults_UntimestampedNotDecayed(t *testing.T) {
	r := newTestReasoner()
	in := []types.ScoredChunk{chunk("x", 0, 0.5, time.Time{})}

	out := r.ProcessResults(in, types.TemporalQuery{DecayFactor: 1.0})

	require.Len(t, out, 1)
	assert.Equal(t, 0.5, out[0].Score)
}

func TestSortByScore_DeterministicTieBreak(t *testing.T) {
	chunks := []types.ScoredChunk{
		chunk("b", 1, 0.5, time.Time{}),
		chunk("a", 2, 0.5, time.Time{}),
		chunk("a", 1, 0.5, time.Time{}),
	}

	SortByScore(chunks)

	assert.Equal(t, "a", chunks[0].DocumentID)
	assert.Equal(t, 1, chunks[0].ChunkIndex)
	assert.Equal(t, "a", chunks[1].DocumentID)
	assert.Equal(t, 2, chunks[1].ChunkIndex)
	assert.Equal(t, "b", chunks[2].DocumentID)
}
