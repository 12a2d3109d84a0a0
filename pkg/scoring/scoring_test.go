package scoring

import (
	"testing"

	"github.com/tabletopmetrics/bgg-ingest/pkg/bgg"
)

func agePoll(totalVotes int, options ...bgg.ResultOption) *bgg.Poll {
	return &bgg.Poll{
		Name:       bgg.PollSuggestedPlayerAge,
		TotalVotes: totalVotes,
		Results:    []bgg.ResultGroup{{Options: options}},
	}
}

func TestScoreAgePoll(t *testing.T) {
	tests := []struct {
		name     string
		poll     *bgg.Poll
		expected []Recommendation
	}{
		{
			name: "votes become percentage shares",
			poll: agePoll(100,
				bgg.ResultOption{Value: "12", NumVotes: 60},
				bgg.ResultOption{Value: "14", NumVotes: 40},
			),
			expected: []Recommendation{{Value: "12", Score: 60}, {Value: "14", Score: 40}},
		},
		{
			name: "zero-vote buckets omitted",
			poll: agePoll(10,
				bgg.ResultOption{Value: "8", NumVotes: 0},
				bgg.ResultOption{Value: "10", NumVotes: 10},
			),
			expected: []Recommendation{{Value: "10", Score: 100}},
		},
		{
			name: "rounds half away from zero",
			poll: agePoll(200,
				bgg.ResultOption{Value: "6", NumVotes: 1}, // 0.5% -> 1
			),
			expected: []Recommendation{{Value: "6", Score: 1}},
		},
		{
			name:     "zero total votes",
			poll:     agePoll(0, bgg.ResultOption{Value: "12", NumVotes: 5}),
			expected: nil,
		},
		{
			name:     "all buckets empty",
			poll:     agePoll(50, bgg.ResultOption{Value: "12", NumVotes: 0}),
			expected: nil,
		},
		{
			name:     "missing poll",
			poll:     nil,
			expected: nil,
		},
		{
			name:     "wrong poll name",
			poll:     &bgg.Poll{Name: bgg.PollSuggestedPlayerCount, TotalVotes: 10},
			expected: nil,
		},
		{
			name:     "no result groups",
			poll:     &bgg.Poll{Name: bgg.PollSuggestedPlayerAge, TotalVotes: 10},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreAgePoll(tt.poll)
			assertRecommendations(t, got, tt.expected)
		})
	}
}

func playerCountPoll(groups ...bgg.ResultGroup) *bgg.Poll {
	return &bgg.Poll{
		Name:    bgg.PollSuggestedPlayerCount,
		Results: groups,
	}
}

func TestScorePlayerCountPoll(t *testing.T) {
	tests := []struct {
		name     string
		poll     *bgg.Poll
		expected []Recommendation
	}{
		{
			name: "weighted tally over options",
			poll: playerCountPoll(bgg.ResultGroup{
				NumPlayers: "2",
				Options: []bgg.ResultOption{
					{Value: "Best", NumVotes: 10},
					{Value: "Recommended", NumVotes: 10},
					{Value: "Not Recommended", NumVotes: 0},
				},
			}),
			// (10*1.0 + 10*0.5) / 20 = 0.75 -> 75
			expected: []Recommendation{{Value: "2", Score: 75}},
		},
		{
			name: "score floored at zero when not-recommended dominates",
			poll: playerCountPoll(bgg.ResultGroup{
				NumPlayers: "5",
				Options: []bgg.ResultOption{
					{Value: "Best", NumVotes: 1},
					{Value: "Not Recommended", NumVotes: 99},
				},
			}),
			expected: []Recommendation{{Value: "5", Score: 0}},
		},
		{
			name: "zero-vote groups omitted, encounter order kept",
			poll: playerCountPoll(
				bgg.ResultGroup{NumPlayers: "1", Options: []bgg.ResultOption{{Value: "Best", NumVotes: 0}}},
				bgg.ResultGroup{NumPlayers: "2", Options: []bgg.ResultOption{{Value: "Best", NumVotes: 4}}},
				bgg.ResultGroup{NumPlayers: "4+", Options: []bgg.ResultOption{{Value: "Recommended", NumVotes: 2}}},
			),
			expected: []Recommendation{{Value: "2", Score: 100}, {Value: "4+", Score: 50}},
		},
		{
			name: "unknown option labels ignored",
			poll: playerCountPoll(bgg.ResultGroup{
				NumPlayers: "3",
				Options: []bgg.ResultOption{
					{Value: "Maybe", NumVotes: 50},
					{Value: "Best", NumVotes: 4},
				},
			}),
			expected: []Recommendation{{Value: "3", Score: 100}},
		},
		{
			name:     "missing poll",
			poll:     nil,
			expected: nil,
		},
		{
			name:     "no non-empty groups",
			poll:     playerCountPoll(bgg.ResultGroup{NumPlayers: "1"}),
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScorePlayerCountPoll(tt.poll)
			assertRecommendations(t, got, tt.expected)
		})
	}
}

func TestScorePlayerCountPoll_ScoresStayInRange(t *testing.T) {
	// Heavily skewed tallies in both directions must stay inside [0, 100].
	poll := playerCountPoll(
		bgg.ResultGroup{NumPlayers: "1", Options: []bgg.ResultOption{{Value: "Not Recommended", NumVotes: 1000}}},
		bgg.ResultGroup{NumPlayers: "2", Options: []bgg.ResultOption{{Value: "Best", NumVotes: 1000}}},
	)

	for _, rec := range ScorePlayerCountPoll(poll) {
		if rec.Score < 0 || rec.Score > 100 {
			t.Errorf("Score for %q = %d, want within [0, 100]", rec.Value, rec.Score)
		}
	}
}

func TestTopRecommendation(t *testing.T) {
	tests := []struct {
		name     string
		recs     []Recommendation
		expected *Recommendation
	}{
		{
			name: "first maximum wins on ties",
			recs: []Recommendation{
				{Value: "A", Score: 10},
				{Value: "B", Score: 30},
				{Value: "B2", Score: 30},
			},
			expected: &Recommendation{Value: "B", Score: 30},
		},
		{
			name:     "single entry",
			recs:     []Recommendation{{Value: "2", Score: 75}},
			expected: &Recommendation{Value: "2", Score: 75},
		},
		{
			name:     "all scores zero",
			recs:     []Recommendation{{Value: "1", Score: 0}, {Value: "2", Score: 0}},
			expected: nil,
		},
		{
			name:     "empty list",
			recs:     []Recommendation{},
			expected: nil,
		},
		{
			name:     "nil list",
			recs:     nil,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TopRecommendation(tt.recs)
			if tt.expected == nil {
				if got != nil {
					t.Fatalf("TopRecommendation() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("TopRecommendation() = nil, want %+v", tt.expected)
			}
			if *got != *tt.expected {
				t.Errorf("TopRecommendation() = %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestTopRecommendation_ValueIsElementOfList(t *testing.T) {
	recs := []Recommendation{
		{Value: "1", Score: 20},
		{Value: "2", Score: 80},
		{Value: "3", Score: 40},
	}

	top := TopRecommendation(recs)
	if top == nil {
		t.Fatal("TopRecommendation() = nil, want element of list")
	}

	found := false
	for _, r := range recs {
		if r == *top {
			found = true
		}
	}
	if !found {
		t.Errorf("Top recommendation %+v is not an element of the input list", top)
	}
}

func assertRecommendations(t *testing.T, got, expected []Recommendation) {
	t.Helper()
	if len(got) != len(expected) {
		t.Fatalf("Recommendations = %+v, want %+v", got, expected)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Recommendation[%d] = %+v, want %+v", i, got[i], expected[i])
		}
	}
}
