// Package leadtag classifies a submission into the audience tag the CRM
// routes on.
package leadtag

import (
	"net/url"
	"strings"
)

// Tag is the coarse audience of a lead.
type Tag string

const (
	France Tag = "France"
	Arab   Tag = "Arab"
)

// Input carries the signals a tag is resolved from.
type Input struct {
	Referrer string
	Landing  string
	Source   string
	Category string
}

// Resolve returns the tag for in. Anything that is not recognizably the
// French villas landing is Arab, including requests with no signal at all.
func Resolve(in Input) Tag {
	landing := normalize(in.Landing)
	source := normalize(in.Source)
	category := normalize(in.Category)
	path := referrerPath(in.Referrer)

	switch {
	case landing == "fr" || landing == "france",
		strings.Contains(source, "villas-fr"),
		strings.Contains(category, "villas fr"),
		strings.Contains(path, "/villas/fr"):
		return France
	default:
		return Arab
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// referrerPath returns the lowercased path of an absolute referrer URL, or
// empty when it cannot be parsed.
func referrerPath(referrer string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return ""
	}
	u, err := url.Parse(referrer)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Path)
}
