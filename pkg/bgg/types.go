package bgg

import "encoding/xml"

// Poll names used by the thing endpoint.
const (
	PollSuggestedPlayerAge   = "suggested_playerage"
	PollSuggestedPlayerCount = "suggested_numplayers"
)

// Link types carried in a thing's link list.
const (
	LinkTypeCategory = "boardgamecategory"
	LinkTypeMechanic = "boardgamemechanic"
)

// thingsResponse is the envelope of a /thing response.
type thingsResponse struct {
	XMLName xml.Name `xml:"items"`
	Items   []Thing  `xml:"item"`
}

// Thing is one raw catalog item as returned by the thing endpoint.
// Optional elements decode to zero values; callers must not assume
// any nested field is populated.
type Thing struct {
	ID            int64       `xml:"id,attr" json:"id"`
	Type          string      `xml:"type,attr" json:"type"`
	Thumbnail     string      `xml:"thumbnail" json:"thumbnail"`
	Image         string      `xml:"image" json:"image"`
	Names         []Name      `xml:"name" json:"names"`
	Description   string      `xml:"description" json:"description"`
	YearPublished IntValue    `xml:"yearpublished" json:"yearpublished"`
	MinPlayers    IntValue    `xml:"minplayers" json:"minplayers"`
	MaxPlayers    IntValue    `xml:"maxplayers" json:"maxplayers"`
	PlayingTime   IntValue    `xml:"playingtime" json:"playingtime"`
	MinPlayTime   IntValue    `xml:"minplaytime" json:"minplaytime"`
	MaxPlayTime   IntValue    `xml:"maxplaytime" json:"maxplaytime"`
	MinAge        IntValue    `xml:"minage" json:"minage"`
	Links         []Link      `xml:"link" json:"links"`
	Polls         []Poll      `xml:"poll" json:"polls"`
	Statistics    *Statistics `xml:"statistics" json:"statistics,omitempty"`
}

// Name is one of a thing's names; the primary name has type "primary".
type Name struct {
	Type  string `xml:"type,attr" json:"type"`
	Value string `xml:"value,attr" json:"value"`
}

// Link is a tagged reference (category, mechanic, designer, ...).
type Link struct {
	Type  string `xml:"type,attr" json:"type"`
	ID    int64  `xml:"id,attr" json:"id"`
	Value string `xml:"value,attr" json:"value"`
}

// Poll is a named survey with per-bucket vote tallies.
type Poll struct {
	Name       string        `xml:"name,attr" json:"name"`
	Title      string        `xml:"title,attr" json:"title"`
	TotalVotes int           `xml:"totalvotes,attr" json:"totalvotes"`
	Results    []ResultGroup `xml:"results" json:"results"`
}

// ResultGroup holds the options of one poll bucket. The player-count
// poll keys its groups by the numplayers attribute; the age poll has a
// single unkeyed group whose options are the age buckets.
type ResultGroup struct {
	NumPlayers string         `xml:"numplayers,attr" json:"numplayers,omitempty"`
	Options    []ResultOption `xml:"result" json:"options"`
}

// ResultOption is one votable option inside a result group.
type ResultOption struct {
	Value    string `xml:"value,attr" json:"value"`
	NumVotes int    `xml:"numvotes,attr" json:"numvotes"`
}

// Statistics is the ratings block requested with stats=1.
type Statistics struct {
	Ratings Ratings `xml:"ratings" json:"ratings"`
}

// Ratings carries the aggregate rating values of a thing.
type Ratings struct {
	UsersRated    IntValue   `xml:"usersrated" json:"usersrated"`
	Average       FloatValue `xml:"average" json:"average"`
	BayesAverage  FloatValue `xml:"bayesaverage" json:"bayesaverage"`
	StdDev        FloatValue `xml:"stddev" json:"stddev"`
	AverageWeight FloatValue `xml:"averageweight" json:"averageweight"`
}

// IntValue decodes the BGG `<tag value="N"/>` element form.
type IntValue struct {
	Value int `xml:"value,attr" json:"value"`
}

// FloatValue decodes the BGG `<tag value="N.N"/>` element form.
type FloatValue struct {
	Value float64 `xml:"value,attr" json:"value"`
}

// PrimaryName returns the thing's primary name, falling back to the
// first listed name, or "" when none exist.
func (t *Thing) PrimaryName() string {
	for _, n := range t.Names {
		if n.Type == "primary" {
			return n.Value
		}
	}
	if len(t.Names) > 0 {
		return t.Names[0].Value
	}
	return ""
}

// PollByName returns the poll with the given name, or nil.
func (t *Thing) PollByName(name string) *Poll {
	for i := range t.Polls {
		if t.Polls[i].Name == name {
			return &t.Polls[i]
		}
	}
	return nil
}

// LinkValues returns the values of all links of the given type,
// preserving source order.
func (t *Thing) LinkValues(linkType string) []string {
	values := []string{}
	for _, l := range t.Links {
		if l.Type == linkType {
			values = append(values, l.Value)
		}
	}
	return values
}
