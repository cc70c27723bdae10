// Package analysis sends a thought record's three free-text fields to
// an external text-analysis model and returns structured findings.
package analysis

import (
	"context"
	"errors"
)

var ErrFailed = errors.New("analysis failed")

// Input is the text of one thought record plus the exercise catalog
// the model may recommend from.
type Input struct {
	ActivatingEvent string
	Beliefs         string
	Consequences    string
	Catalog         []CatalogExercise
}

// CatalogExercise identifies one recommendable catalog exercise.
type CatalogExercise struct {
	ID       string
	Title    string
	Category string
}

type Distortion struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

type Recommendation struct {
	ExerciseID    string  `json:"exerciseId"`
	Reason        string  `json:"reason"`
	Effectiveness float64 `json:"effectiveness"`
}

// Result replaces any previous analysis on the record wholesale.
type Result struct {
	Distortions     []Distortion     `json:"distortions"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Analyzer produces a Result for one thought record. Implementations
// must be safe for concurrent use.
type Analyzer interface {
	Analyze(ctx context.Context, input Input) (Result, error)
}

// sanitize clamps confidence values into [0,1] and drops
// recommendations whose exercise id is not in the catalog.
func sanitize(result Result, catalog []CatalogExercise) Result {
	known := make(map[string]struct{}, len(catalog))
	for _, ex := range catalog {
		known[ex.ID] = struct{}{}
	}

	distortions := make([]Distortion, 0, len(result.Distortions))
	for _, d := range result.Distortions {
		d.Confidence = clamp01(d.Confidence)
		distortions = append(distortions, d)
	}

	recommendations := make([]Recommendation, 0, len(result.Recommendations))
	for _, rec := range result.Recommendations {
		if _, ok := known[rec.ExerciseID]; !ok {
			continue
		}
		rec.Effectiveness = clamp01(rec.Effectiveness)
		recommendations = append(recommendations, rec)
	}

	return Result{Distortions: distortions, Recommendations: recommendations}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
