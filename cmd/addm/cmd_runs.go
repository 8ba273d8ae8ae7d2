package main

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/manvincent/aDDM-Toolbox/internal/archive"
	"github.com/manvincent/aDDM-Toolbox/internal/store"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and archive stored runs",
		Long: `Every estimation, correction and simulation run is recorded in the run
store (~/.addm/runs.db unless store.dir is set) with its seed, its
configuration, the score of every grid point and the fixation
distributions it used.

Examples:
  addm runs list
  addm runs show <id>
  addm runs export <id> --output run.addm.gz
  addm runs verify run.addm.gz
  addm runs import run.addm.gz`,
	}

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsDeleteCmd(),
		newRunsExportCmd(),
		newRunsVerifyCmd(),
		newRunsImportCmd(),
	)
	return cmd
}

// withStore runs fn against the configured run store.
func withStore(cmd *cobra.Command, fn func(env *runEnv, s *store.SQLiteRunStore) error) error {
	env, err := setup(cmd, "")
	if err != nil {
		return err
	}
	defer env.Close()

	s, err := openStore(env.cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(env, s)
}

func newRunsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(env *runEnv, s *store.SQLiteRunStore) error {
				runs, err := s.ListRuns(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list runs: %w", err)
				}
				if env.jsonOut {
					return env.emit(map[string]any{
						"runs":        runs,
						"total_count": len(runs),
						"database":    s.Path(),
					})
				}

				if len(runs) == 0 {
					env.printf("No runs in %s\n", s.Path())
					return nil
				}
				env.printf("Runs in %s:\n", s.Path())
				for _, r := range runs {
					best := "-"
					if r.Best != nil {
						best = r.Best.Format(r.Model)
					}
					env.printf("  %s  %s  %-10s %-4s  %6d trials  %s\n",
						r.CreatedAt.Local().Format("2006-01-02 15:04"),
						r.ID, r.Command, r.Model, r.NumTrials, best)
				}
				env.printf("Total: %d runs\n", len(runs))
				return nil
			})
		},
	}
}

func newRunsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			top, _ := cmd.Flags().GetInt("top")
			return withStore(cmd, func(env *runEnv, s *store.SQLiteRunStore) error {
				b, err := s.ExportRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if env.jsonOut {
					return env.emit(b)
				}

				r := b.Run
				env.printf("Run:        %s\n", r.ID)
				env.printf("Command:    %s\n", r.Command)
				env.printf("Model:      %s\n", r.Model)
				env.printf("Created:    %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
				env.printf("Seed:       %d\n", r.Seed)
				env.printf("Trials:     %d\n", r.NumTrials)
				if r.Best != nil {
					env.printf("Parameters: %s\n", r.Best.Format(r.Model))
				}
				env.printf("Fixation bins: %d\n", len(b.FixationBins))
				if len(b.GridScores) == 0 {
					return nil
				}

				env.printf("Grid scores (%d points, best %d):\n", len(b.GridScores), min(top, len(b.GridScores)))
				for _, g := range topScores(b.GridScores, top) {
					env.printf("  %4d  %-32s  %s\n", g.Index, g.Params.Format(r.Model), formatScore(g.Score))
				}
				return nil
			})
		},
	}
	cmd.Flags().Int("top", 10, "Number of best grid points to show")
	return cmd
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(env *runEnv, s *store.SQLiteRunStore) error {
				if err := s.DeleteRun(cmd.Context(), args[0]); err != nil {
					return err
				}
				if env.jsonOut {
					return env.emit(map[string]any{"deleted": args[0]})
				}
				env.printf("Deleted run %s\n", args[0])
				return nil
			})
		},
	}
}

func newRunsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write a stored run to an archive file",
		Long: `Write a run, its grid scores and its fixation distributions to a
compressed archive file with a SHA-256 checksum.

Examples:
  addm runs export 0b6c1f9e-... --output fit.addm.gz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := pathFlag(cmd, "output")
			if err != nil {
				return err
			}
			if output == "" {
				output = args[0] + ".addm.gz"
			}
			return withStore(cmd, func(env *runEnv, s *store.SQLiteRunStore) error {
				b, err := s.ExportRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := archive.Write(output, b); err != nil {
					return fmt.Errorf("failed to write archive: %w", err)
				}
				if env.jsonOut {
					return env.emit(map[string]any{"run_id": args[0], "path": output})
				}
				env.printf("Exported run %s to %s\n", args[0], output)
				return nil
			})
		},
	}
	cmd.Flags().String("output", "", "Archive path (default <id>.addm.gz)")
	return cmd
}

func newRunsVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify archive file integrity",
		Long: `Verify the integrity of an archive file by checking its SHA-256 checksum.

Examples:
  addm runs verify fit.addm.gz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			path := args[0]

			header, err := archive.ReadHeader(path)
			if err != nil {
				return fmt.Errorf("failed to read archive header: %w", err)
			}
			verr := archive.VerifyChecksum(path)

			if jsonOut {
				result := map[string]any{
					"path":          path,
					"valid":         verr == nil,
					"version":       header.Version,
					"run_id":        header.RunID,
					"command":       header.Command,
					"model":         header.Model,
					"grid_scores":   header.GridScores,
					"fixation_bins": header.FixationBins,
					"checksum":      header.Checksum,
				}
				if verr != nil {
					result["error"] = verr.Error()
				}
				env := &runEnv{jsonOut: true, out: cmd.OutOrStdout()}
				if err := env.emit(result); err != nil {
					return err
				}
				return verr
			}

			if verr != nil {
				return fmt.Errorf("verification failed: %w", verr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archive verified: %s\n", path)
			fmt.Fprintf(cmd.OutOrStdout(), "  Run: %s (%s, %s)\n", header.RunID, header.Command, header.Model)
			fmt.Fprintf(cmd.OutOrStdout(), "  Grid scores: %d, fixation bins: %d\n", header.GridScores, header.FixationBins)
			fmt.Fprintf(cmd.OutOrStdout(), "  Checksum: %s\n", header.Checksum)
			return nil
		},
	}
}

func newRunsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Add an archived run to the run store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, b, err := archive.Read(args[0])
			if err != nil {
				return fmt.Errorf("failed to read archive: %w", err)
			}
			return withStore(cmd, func(env *runEnv, s *store.SQLiteRunStore) error {
				id, err := s.ImportRun(cmd.Context(), b)
				if err != nil {
					return fmt.Errorf("failed to import run: %w", err)
				}
				if env.jsonOut {
					return env.emit(map[string]any{"run_id": id, "path": args[0]})
				}
				env.printf("Imported run %s from %s\n", id, args[0])
				return nil
			})
		},
	}
}

// topScores returns the n highest-scoring grid points, best first. Ties
// keep grid order.
func topScores(scores []store.GridScore, n int) []store.GridScore {
	sorted := slices.Clone(scores)
	slices.SortStableFunc(sorted, func(a, b store.GridScore) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

func formatScore(s float64) string {
	if math.IsInf(s, -1) {
		return "failed"
	}
	return fmt.Sprintf("%.4f", s)
}
