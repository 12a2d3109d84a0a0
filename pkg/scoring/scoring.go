// Package scoring converts raw poll data from the thing endpoint into
// normalized recommendation lists.
//
// Scores are percentages in [0, 100]. Recommendation lists keep the
// bucket-encounter order of the source poll; they are never sorted by
// score, so callers can rely on stable left-to-right tie-breaks.
package scoring

import (
	"math"

	"github.com/tabletopmetrics/bgg-ingest/pkg/bgg"
)

// Option labels used by the player-count poll.
const (
	optionBest           = "Best"
	optionRecommended    = "Recommended"
	optionNotRecommended = "Not Recommended"
)

// Vote weights for the player-count tally.
const (
	weightBest           = 1.0
	weightRecommended    = 0.5
	weightNotRecommended = -0.5
)

// Recommendation is a normalized {value, score} pair derived from one
// poll bucket.
type Recommendation struct {
	Value string `json:"value"`
	Score int    `json:"score"`
}

// ScoreAgePoll scores the suggested-player-age poll. Each age bucket
// with votes becomes a recommendation scored as its share of the total
// vote count. Returns nil when the poll is missing, has no votes, or
// every bucket is empty.
func ScoreAgePoll(p *bgg.Poll) []Recommendation {
	if p == nil || p.Name != bgg.PollSuggestedPlayerAge {
		return nil
	}
	if p.TotalVotes <= 0 || len(p.Results) == 0 {
		return nil
	}

	var recs []Recommendation
	for _, opt := range p.Results[0].Options {
		if opt.NumVotes <= 0 {
			continue
		}
		recs = append(recs, Recommendation{
			Value: opt.Value,
			Score: percent(float64(opt.NumVotes), float64(p.TotalVotes)),
		})
	}
	return recs
}

// ScorePlayerCountPoll scores the suggested-player-count poll. Each
// player-count bucket gets a weighted tally over its Best/Recommended/
// Not Recommended options; the score is the tally as a percentage of
// the bucket's vote count, floored at 0. Buckets without votes are
// omitted. Returns nil when the poll is missing or yields no buckets.
func ScorePlayerCountPoll(p *bgg.Poll) []Recommendation {
	if p == nil || p.Name != bgg.PollSuggestedPlayerCount {
		return nil
	}

	var recs []Recommendation
	for _, group := range p.Results {
		tally := 0.0
		votes := 0
		for _, opt := range group.Options {
			switch opt.Value {
			case optionBest:
				tally += weightBest * float64(opt.NumVotes)
			case optionRecommended:
				tally += weightRecommended * float64(opt.NumVotes)
			case optionNotRecommended:
				tally += weightNotRecommended * float64(opt.NumVotes)
			default:
				continue
			}
			votes += opt.NumVotes
		}
		if votes == 0 {
			continue
		}

		score := percent(tally, float64(votes))
		if score < 0 {
			score = 0
		}
		recs = append(recs, Recommendation{Value: group.NumPlayers, Score: score})
	}
	return recs
}

// TopRecommendation returns the first recommendation achieving the
// maximum score, or nil when the list is empty or every score is 0.
// The returned pointer aliases the input slice.
func TopRecommendation(recs []Recommendation) *Recommendation {
	var top *Recommendation
	for i := range recs {
		if recs[i].Score == 0 {
			continue
		}
		if top == nil || recs[i].Score > top.Score {
			top = &recs[i]
		}
	}
	return top
}

// percent converts part/whole into a 0..100 integer, rounding half
// away from zero exactly once at the conversion point.
func percent(part, whole float64) int {
	return int(math.Round(100 * part / whole))
}
