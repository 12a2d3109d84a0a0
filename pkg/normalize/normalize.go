// Package normalize maps raw thing items into the canonical output
// record written to batch artifacts.
package normalize

import (
	"github.com/tabletopmetrics/bgg-ingest/pkg/bgg"
	"github.com/tabletopmetrics/bgg-ingest/pkg/scoring"
)

// RatingStats holds the aggregate rating values of a record.
type RatingStats struct {
	Average      float64 `json:"average"`
	BayesAverage float64 `json:"bayes_average"`
	StdDev       float64 `json:"stddev"`
}

// Range is an inclusive lower/upper bound pair.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// PlayerBlock carries the publisher-rated player bound next to the
// community poll results.
type PlayerBlock struct {
	Max       int                      `json:"max"`
	Suggested *string                  `json:"suggested,omitempty"`
	Poll      []scoring.Recommendation `json:"poll,omitempty"`
}

// AgeBlock carries the publisher-rated minimum age next to the
// community poll results.
type AgeBlock struct {
	Min       int                      `json:"min"`
	Suggested *string                  `json:"suggested,omitempty"`
	Poll      []scoring.Recommendation `json:"poll,omitempty"`
}

// Record is the canonical output unit, immutable after construction
// and serialized verbatim into batch artifacts.
type Record struct {
	ID          int64       `json:"id"`
	Image       string      `json:"image"`
	Thumbnail   string      `json:"thumbnail"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Year        int         `json:"year"`
	Categories  []string    `json:"categories"`
	Mechanics   []string    `json:"mechanics"`
	Weight      *float64    `json:"weight,omitempty"`
	Rating      RatingStats `json:"rating"`
	Playtime    Range       `json:"playtime"`
	Players     PlayerBlock `json:"players"`
	Age         AgeBlock    `json:"age"`
}

// FromThing builds the canonical record for one raw item. Pure: it
// never fails for a decoded item, and normalizing the same item twice
// yields identical output. Missing optional fields fall back to zero
// values and empty lists.
func FromThing(t *bgg.Thing) Record {
	rec := Record{
		ID:          t.ID,
		Image:       t.Image,
		Thumbnail:   t.Thumbnail,
		Name:        t.PrimaryName(),
		Description: CleanDescription(t.Description),
		Year:        t.YearPublished.Value,
		Categories:  t.LinkValues(bgg.LinkTypeCategory),
		Mechanics:   t.LinkValues(bgg.LinkTypeMechanic),
		Playtime: Range{
			Min: t.MinPlayTime.Value,
			Max: t.MaxPlayTime.Value,
		},
	}

	if t.Statistics != nil {
		r := t.Statistics.Ratings
		rec.Rating = RatingStats{
			Average:      r.Average.Value,
			BayesAverage: r.BayesAverage.Value,
			StdDev:       r.StdDev.Value,
		}
		weight := r.AverageWeight.Value
		rec.Weight = &weight
	}

	playerPoll := scoring.ScorePlayerCountPoll(t.PollByName(bgg.PollSuggestedPlayerCount))
	rec.Players = PlayerBlock{
		Max:       t.MaxPlayers.Value,
		Suggested: suggestedValue(playerPoll),
		Poll:      playerPoll,
	}

	agePoll := scoring.ScoreAgePoll(t.PollByName(bgg.PollSuggestedPlayerAge))
	rec.Age = AgeBlock{
		Min:       t.MinAge.Value,
		Suggested: suggestedValue(agePoll),
		Poll:      agePoll,
	}

	return rec
}

// FromThings normalizes a fetched batch in order.
func FromThings(things []bgg.Thing) []Record {
	records := make([]Record, len(things))
	for i := range things {
		records[i] = FromThing(&things[i])
	}
	return records
}

func suggestedValue(recs []scoring.Recommendation) *string {
	top := scoring.TopRecommendation(recs)
	if top == nil {
		return nil
	}
	return &top.Value
}
