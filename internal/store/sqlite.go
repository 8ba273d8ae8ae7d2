// Package store persists fit runs, their grid scores and the fixation
// distributions they produced in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
	_ "modernc.org/sqlite" // SQLite driver
)

// DBFile is the database file name inside the store directory.
const DBFile = "runs.db"

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run describes one stored run.
type Run struct {
	ID        string               `json:"id"`
	Command   string               `json:"command"`
	Model     models.ModelKind     `json:"model"`
	Seed      uint64               `json:"seed"`
	NumTrials int                  `json:"num_trials"`
	Best      *models.ParameterSet `json:"best,omitempty"`
	Config    string               `json:"config,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// GridScore is the stored score of one grid point. Non-finite values are
// stored as NULL and read back as negative infinity.
type GridScore struct {
	Index         int                 `json:"index"`
	Params        models.ParameterSet `json:"params"`
	LogLikelihood float64             `json:"log_likelihood"`
	LogPrior      float64             `json:"log_prior"`
	Score         float64             `json:"score"`
}

// FixationBin is the mass of one bin of a fixation distribution.
type FixationBin struct {
	FixNumber int     `json:"fix_number"`
	ValueDiff float64 `json:"value_diff"`
	Bin       int     `json:"bin"`
	Lower     int     `json:"lower_ms"`
	Mass      float64 `json:"mass"`
}

// SQLiteRunStore stores runs in a SQLite database.
type SQLiteRunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteRunStore opens or creates the database in dir.
func NewSQLiteRunStore(dir string) (*SQLiteRunStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	dbPath := filepath.Join(dir, DBFile)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteRunStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteRunStore) Path() string { return s.dbPath }

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveRun stores run with its grid scores and fixation bins in one
// transaction. An empty run.ID gets a fresh UUID; a zero CreatedAt gets the
// current time. It returns the run id.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, run Run, scores []GridScore, bins []FixationBin) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if !run.Model.Valid() {
		return "", fmt.Errorf("run %s: invalid model %q", run.ID, run.Model)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var bestD, bestSigma, bestTheta sql.NullFloat64
	if run.Best != nil {
		bestD = sql.NullFloat64{Float64: run.Best.D, Valid: true}
		bestSigma = sql.NullFloat64{Float64: run.Best.Sigma, Valid: true}
		bestTheta = sql.NullFloat64{Float64: run.Best.Theta, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, command, model, seed, num_trials, best_d, best_sigma, best_theta, config, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Command, string(run.Model), int64(run.Seed), run.NumTrials,
		bestD, bestSigma, bestTheta, run.Config, run.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	if len(scores) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO grid_scores (run_id, idx, d, sigma, theta, log_likelihood, log_prior, score)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return "", fmt.Errorf("failed to prepare grid score insert: %w", err)
		}
		defer stmt.Close()
		for _, g := range scores {
			if _, err := stmt.ExecContext(ctx, run.ID, g.Index, g.Params.D, g.Params.Sigma, g.Params.Theta,
				finite(g.LogLikelihood), finite(g.LogPrior), finite(g.Score)); err != nil {
				return "", fmt.Errorf("failed to insert grid score %d: %w", g.Index, err)
			}
		}
	}

	if len(bins) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO fixation_bins (run_id, fix_number, value_diff, bin, lower_ms, mass)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return "", fmt.Errorf("failed to prepare fixation bin insert: %w", err)
		}
		defer stmt.Close()
		for _, b := range bins {
			if _, err := stmt.ExecContext(ctx, run.ID, b.FixNumber, b.ValueDiff, b.Bin, b.Lower, b.Mass); err != nil {
				return "", fmt.Errorf("failed to insert fixation bin: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return run.ID, nil
}

// ListRuns returns every run, newest first.
func (s *SQLiteRunStore) ListRuns(ctx context.Context) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, command, model, seed, num_trials, best_d, best_sigma, best_theta, config, created_at
		FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run. Unknown ids yield ErrRunNotFound.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, command, model, seed, num_trials, best_d, best_sigma, best_theta, config, created_at
		FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// GridScores returns a run's grid scores in grid order.
func (s *SQLiteRunStore) GridScores(ctx context.Context, runID string) ([]GridScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, d, sigma, theta, log_likelihood, log_prior, score
		FROM grid_scores WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query grid scores: %w", err)
	}
	defer rows.Close()

	var out []GridScore
	for rows.Next() {
		var g GridScore
		var ll, lp, sc sql.NullFloat64
		if err := rows.Scan(&g.Index, &g.Params.D, &g.Params.Sigma, &g.Params.Theta, &ll, &lp, &sc); err != nil {
			return nil, fmt.Errorf("failed to scan grid score: %w", err)
		}
		g.LogLikelihood, g.LogPrior, g.Score = orNegInf(ll), orZero(lp), orNegInf(sc)
		out = append(out, g)
	}
	return out, rows.Err()
}

// FixationBins returns a run's fixation bins ordered by key and bin.
func (s *SQLiteRunStore) FixationBins(ctx context.Context, runID string) ([]FixationBin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT fix_number, value_diff, bin, lower_ms, mass
		FROM fixation_bins WHERE run_id = ? ORDER BY fix_number, value_diff, bin`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fixation bins: %w", err)
	}
	defer rows.Close()

	var out []FixationBin
	for rows.Next() {
		var b FixationBin
		if err := rows.Scan(&b.FixNumber, &b.ValueDiff, &b.Bin, &b.Lower, &b.Mass); err != nil {
			return nil, fmt.Errorf("failed to scan fixation bin: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its rows.
func (s *SQLiteRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	var model, created string
	var seed int64
	var config sql.NullString
	var d, sigma, theta sql.NullFloat64
	if err := sc.Scan(&r.ID, &r.Command, &model, &seed, &r.NumTrials, &d, &sigma, &theta, &config, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	r.Model = models.ModelKind(model)
	r.Seed = uint64(seed)
	r.Config = config.String
	if d.Valid && sigma.Valid {
		r.Best = &models.ParameterSet{D: d.Float64, Sigma: sigma.Float64, Theta: theta.Float64}
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Run{}, fmt.Errorf("run %s: invalid created_at %q: %w", r.ID, created, err)
	}
	r.CreatedAt = t
	return r, nil
}

func finite(v float64) sql.NullFloat64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func orNegInf(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.Inf(-1)
	}
	return v.Float64
}

func orZero(v sql.NullFloat64) float64 {
	if !v.Valid {
		return 0
	}
	return v.Float64
}
