package view

import (
	"strings"
	"time"
	"unicode"
)

const (
	etaBase     = 10 * time.Minute
	etaPerToken = 4 * time.Minute
	etaMax      = 90 * time.Minute
)

// EstimateDuration is a coarse lexical guess at trip length from the two place
// labels. It is not a routing calculation: every word that appears in only one
// of the labels adds a fixed amount on top of a base, clamped to etaMax.
func EstimateDuration(source, destination string) time.Duration {
	src := tokens(source)
	dst := tokens(destination)
	diff := 0
	for t := range dst {
		if _, ok := src[t]; !ok {
			diff++
		}
	}
	for t := range src {
		if _, ok := dst[t]; !ok {
			diff++
		}
	}
	d := etaBase + time.Duration(diff)*etaPerToken
	if d > etaMax {
		return etaMax
	}
	return d
}

// ETA is only defined once the trip has started.
func ETA(startedAt *time.Time, source, destination string) *time.Time {
	if startedAt == nil {
		return nil
	}
	at := startedAt.Add(EstimateDuration(source, destination))
	return &at
}

func tokens(label string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out[f] = struct{}{}
	}
	return out
}
