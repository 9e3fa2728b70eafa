// Package pairing decides which model versions play each other.
package pairing

import (
	"context"
	"fmt"

	"github.com/me/evalzoo/pkg/model"
)

const (
	// nearBand is how many immediate predecessors a new version plays.
	nearBand = 4
	// farStart, farStep and farEnd define the sparse long-range opponents:
	// offsets 5, 15, ..., 65.
	farStart = 5
	farStep  = 10
	farEnd   = 70

	// DefaultTopN is how many ranked versions TopPairs is normally given.
	DefaultTopN = 15
	// topHeads is how many of the best versions get a window of opponents.
	topHeads = 10
	// topWindow is how many versions below each head it plays.
	topWindow = 4

	// DefaultIgnoreBefore drops ranking suggestions older than this version.
	DefaultIgnoreBefore model.VersionID = 50
)

// ForVersion returns the pairs a newly discovered version v should play:
// every version up to four behind it, then versions 5, 15, ..., 65 behind it.
// Opponents must be positive. Returns nil for v <= 0.
func ForVersion(v model.VersionID) []model.Pair {
	if v <= 0 {
		return nil
	}
	var pairs []model.Pair
	for i := 1; i <= nearBand; i++ {
		if o := v - model.VersionID(i); o > 0 {
			pairs = append(pairs, model.Pair{v, o})
		}
	}
	for i := farStart; i < farEnd; i += farStep {
		if o := v - model.VersionID(i); o > 0 {
			pairs = append(pairs, model.Pair{v, o})
		}
	}
	return pairs
}

// TopPairs pairs the head of a leaderboard against itself. ranked is ordered
// best first; each of the first ten versions plays the next four below it.
func TopPairs(ranked []model.VersionID) []model.Pair {
	var pairs []model.Pair
	for i := 0; i < len(ranked) && i < topHeads; i++ {
		end := min(i+1+topWindow, len(ranked))
		for _, o := range ranked[i+1 : end] {
			pairs = append(pairs, model.Pair{ranked[i], o})
		}
	}
	return pairs
}

// Suggester proposes pairs that would most reduce rating uncertainty.
type Suggester interface {
	Suggest(ctx context.Context, ignoreBefore model.VersionID) ([]model.Pair, error)
}

// Uncertain asks the ranking subsystem for its most informative pairs. Pairs
// touching versions older than ignoreBefore, and self-pairs, are dropped.
func Uncertain(ctx context.Context, s Suggester, ignoreBefore model.VersionID) ([]model.Pair, error) {
	suggested, err := s.Suggest(ctx, ignoreBefore)
	if err != nil {
		return nil, fmt.Errorf("suggest pairs: %w", err)
	}
	pairs := make([]model.Pair, 0, len(suggested))
	for _, p := range suggested {
		if p[0] == p[1] || p[0] < ignoreBefore || p[1] < ignoreBefore {
			continue
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}
