// Package ranking talks to the external rating system: it ingests finished
// evaluation games, reports the leaderboard and suggests informative pairs.
package ranking

import (
	"context"

	"github.com/me/evalzoo/pkg/model"
)

// Rating is one leaderboard entry.
type Rating struct {
	Version model.VersionID `json:"version"`
	Rating  float64         `json:"rating"`
	Sigma   float64         `json:"sigma"`
}

// Source is the ranking subsystem.
type Source interface {
	// Sync ingests the evaluation games found under evalDir.
	Sync(ctx context.Context, evalDir string) error

	// Top returns up to n versions, best first.
	Top(ctx context.Context, n int) ([]Rating, error)

	// Suggest proposes pairs that would most reduce rating uncertainty,
	// ignoring versions older than ignoreBefore.
	Suggest(ctx context.Context, ignoreBefore model.VersionID) ([]model.Pair, error)
}

// Versions returns the versions of ratings, in order.
func Versions(ratings []Rating) []model.VersionID {
	out := make([]model.VersionID, len(ratings))
	for i, r := range ratings {
		out[i] = r.Version
	}
	return out
}
