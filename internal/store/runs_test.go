package store

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/manvincent/aDDM-Toolbox/internal/estimate"
	"github.com/manvincent/aDDM-Toolbox/internal/fixation"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
)

func newTestStore(t *testing.T) *SQLiteRunStore {
	t.Helper()
	s, err := NewSQLiteRunStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteRunStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteRunStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "store")
	s, err := NewSQLiteRunStore(dir)
	if err != nil {
		t.Fatalf("NewSQLiteRunStore() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, DBFile)); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if s.Path() != filepath.Join(dir, DBFile) {
		t.Errorf("Path() = %s", s.Path())
	}
}

func TestSQLiteRunStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewSQLiteRunStore(dir)
	if err != nil {
		t.Fatalf("NewSQLiteRunStore() error = %v", err)
	}
	id, err := s.SaveRun(ctx, Run{Command: "fit", Model: models.ModelDDM, Seed: 7}, nil, nil)
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	s.Close()

	s, err = NewSQLiteRunStore(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	run, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun() after reopen error = %v", err)
	}
	if run.Seed != 7 {
		t.Errorf("Seed = %d, want 7", run.Seed)
	}
}

func TestSQLiteRunStore_SaveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	best := models.ParameterSet{D: 0.006, Sigma: 0.08}
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	run := Run{
		Command:   "fit",
		Model:     models.ModelDDM,
		Seed:      math.MaxUint64 - 3,
		NumTrials: 120,
		Best:      &best,
		Config:    `{"seed":1}`,
		CreatedAt: created,
	}
	scores := []GridScore{
		{Index: 0, Params: best, LogLikelihood: -100, Score: -100},
		{Index: 1, Params: models.ParameterSet{D: 0.007, Sigma: 0.08}, LogLikelihood: math.Inf(-1), Score: math.Inf(-1)},
	}
	bins := []FixationBin{{FixNumber: 1, ValueDiff: -2, Bin: 3, Lower: 30, Mass: 0.25}}

	id, err := s.SaveRun(ctx, run, scores, bins)
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	if id == "" {
		t.Fatal("SaveRun() returned empty id")
	}

	got, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	run.ID = id
	if !reflect.DeepEqual(got, run) {
		t.Errorf("GetRun() = %+v, want %+v", got, run)
	}

	gotScores, err := s.GridScores(ctx, id)
	if err != nil {
		t.Fatalf("GridScores() error = %v", err)
	}
	if !reflect.DeepEqual(gotScores, scores) {
		t.Errorf("GridScores() = %+v, want %+v", gotScores, scores)
	}

	gotBins, err := s.FixationBins(ctx, id)
	if err != nil {
		t.Fatalf("FixationBins() error = %v", err)
	}
	if !reflect.DeepEqual(gotBins, bins) {
		t.Errorf("FixationBins() = %+v, want %+v", gotBins, bins)
	}
}

func TestSQLiteRunStore_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
	}
	if err := s.DeleteRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("DeleteRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestSQLiteRunStore_InvalidModel(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SaveRun(context.Background(), Run{Command: "fit", Model: "lba"}, nil, nil); err == nil {
		t.Error("expected error for invalid model")
	}
}

func TestSQLiteRunStore_ListAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.SaveRun(ctx, Run{
			Command:   "ddm-test",
			Model:     models.ModelDDM,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}, []GridScore{{Index: 0, Params: models.ParameterSet{Sigma: 0.1}}}, nil)
		if err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
		ids = append(ids, id)
	}

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("ListRuns() returned %d runs, want 3", len(runs))
	}
	if runs[0].ID != ids[2] || runs[2].ID != ids[0] {
		t.Errorf("ListRuns() not newest first: %v", []string{runs[0].ID, runs[1].ID, runs[2].ID})
	}

	if err := s.DeleteRun(ctx, ids[1]); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}
	runs, _ = s.ListRuns(ctx)
	if len(runs) != 2 {
		t.Errorf("after delete got %d runs, want 2", len(runs))
	}
	scores, err := s.GridScores(ctx, ids[1])
	if err != nil {
		t.Fatalf("GridScores() error = %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("grid scores of deleted run should cascade, got %d", len(scores))
	}
}

func TestSQLiteRunStore_ExportImport(t *testing.T) {
	src := newTestStore(t)
	dst := newTestStore(t)
	ctx := context.Background()

	best := models.ParameterSet{D: 0.005, Sigma: 0.07, Theta: 0.5}
	id, err := src.SaveRun(ctx, Run{Command: "fit", Model: models.ModelADDM, Best: &best},
		[]GridScore{{Index: 0, Params: best, LogLikelihood: -5, LogPrior: -1, Score: -6}},
		[]FixationBin{{FixNumber: 2, ValueDiff: 1, Bin: 0, Lower: 0, Mass: 1}})
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	bundle, err := src.ExportRun(ctx, id)
	if err != nil {
		t.Fatalf("ExportRun() error = %v", err)
	}
	gotID, err := dst.ImportRun(ctx, bundle)
	if err != nil {
		t.Fatalf("ImportRun() error = %v", err)
	}
	if gotID != id {
		t.Errorf("ImportRun() id = %s, want %s", gotID, id)
	}
	again, err := dst.ExportRun(ctx, id)
	if err != nil {
		t.Fatalf("ExportRun() from destination error = %v", err)
	}
	if !reflect.DeepEqual(again, bundle) {
		t.Errorf("imported bundle = %+v, want %+v", again, bundle)
	}

	if _, err := dst.ImportRun(ctx, &Bundle{}); err == nil {
		t.Error("expected error for bundle without id")
	}
}

func TestScoresFromResult(t *testing.T) {
	res := &estimate.Result{
		Points:         []models.ParameterSet{{D: 1, Sigma: 1}, {D: 2, Sigma: 1}},
		LogLikelihoods: []float64{-3, -4},
		LogPriors:      []float64{-0.5, -1},
		Scores:         []float64{-3.5, -5},
	}
	got := ScoresFromResult(res)
	want := []GridScore{
		{Index: 0, Params: res.Points[0], LogLikelihood: -3, LogPrior: -0.5, Score: -3.5},
		{Index: 1, Params: res.Points[1], LogLikelihood: -4, LogPrior: -1, Score: -5},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ScoresFromResult() = %+v, want %+v", got, want)
	}
}

func TestBinsFromData(t *testing.T) {
	opts := fixation.DefaultOptions()
	dist := fixation.NewDistribution(opts.Binning())
	dist.Add(25)
	dist.Add(27)
	key := fixation.Key{FixNumber: 1, ValueDiff: 0}
	data, err := fixation.NewData(opts, 0.5, []int{100}, []int{20}, map[fixation.Key]*fixation.Distribution{key: dist})
	if err != nil {
		t.Fatalf("NewData() error = %v", err)
	}

	bins := BinsFromData(data)
	want := []FixationBin{{FixNumber: 1, ValueDiff: 0, Bin: 2, Lower: 20, Mass: 2}}
	if !reflect.DeepEqual(bins, want) {
		t.Errorf("BinsFromData() = %+v, want %+v", bins, want)
	}
}

func TestGridScore_JSONNonFinite(t *testing.T) {
	in := GridScore{Index: 3, Params: models.ParameterSet{D: 1, Sigma: 2}, LogLikelihood: math.Inf(-1), LogPrior: -1, Score: math.Inf(-1)}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"score":null`) {
		t.Errorf("non-finite score should marshal as null: %s", data)
	}
	var out GridScore
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}
