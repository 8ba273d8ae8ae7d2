package store

import (
	"context"
	"fmt"
)

// Bundle is a run together with all of its rows, the unit of export and
// import.
type Bundle struct {
	Run          Run           `json:"run"`
	GridScores   []GridScore   `json:"grid_scores,omitempty"`
	FixationBins []FixationBin `json:"fixation_bins,omitempty"`
}

// ExportRun collects a run and its rows into a Bundle.
func (s *SQLiteRunStore) ExportRun(ctx context.Context, id string) (*Bundle, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	scores, err := s.GridScores(ctx, id)
	if err != nil {
		return nil, err
	}
	bins, err := s.FixationBins(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Bundle{Run: run, GridScores: scores, FixationBins: bins}, nil
}

// ImportRun stores a previously exported Bundle under its original id.
func (s *SQLiteRunStore) ImportRun(ctx context.Context, b *Bundle) (string, error) {
	if b.Run.ID == "" {
		return "", fmt.Errorf("bundle has no run id")
	}
	return s.SaveRun(ctx, b.Run, b.GridScores, b.FixationBins)
}
