package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/urbanflow/rebal/internal/data"
	"github.com/urbanflow/rebal/internal/domain/model"
)

type runShowOptions struct {
	RunID string
	Moves int
	JSON  bool
	Query string
}

// runShowPayload is the JSON shape emitted by run-show --json.
type runShowPayload struct {
	Run   *model.PolicyRun   `json:"run"`
	Moves []model.PolicyMove `json:"moves"`
}

func runRunShow(cmdCtx *commandContext, args []string) error {
	opts, err := parseRunShowFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewRunRepo(db, data.RepoConfig{})

		run, getErr := repo.GetRunByID(ctx, opts.RunID)
		if getErr != nil {
			if errors.Is(getErr, data.ErrRunNotFound) {
				return fmt.Errorf("run %q not found", opts.RunID)
			}
			return fmt.Errorf("get run: %w", getErr)
		}

		moves, listErr := repo.ListMoves(ctx, run.RunID, opts.Moves)
		if listErr != nil {
			return fmt.Errorf("list moves: %w", listErr)
		}

		if opts.JSON || opts.Query != "" {
			return printJSON(runShowPayload{Run: run, Moves: moves}, opts.Query)
		}

		if renderErr := renderRunSummary(run); renderErr != nil {
			return renderErr
		}
		return renderMovesTable(run, moves, opts.Moves)
	})
}

func renderRunSummary(run *model.PolicyRun) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	rows := []struct {
		label string
		value string
	}{
		{"Run ID", run.RunID},
		{"System", run.SystemID},
		{"Policy Version", run.PolicyVersion},
		{"Spec Digest", run.PolicySpecSHA256},
		{"Snapshot", run.SV},
		{"Decision Bucket", run.DecisionBucketTS.UTC().Format(time.RFC3339)},
		{"Horizon Steps", fmt.Sprintf("%d", run.HorizonSteps)},
		{"Input Quality", run.InputQuality},
		{"Status", runStatusLine(run)},
		{"Move Count", fmt.Sprintf("%d", run.MoveCount)},
		{"Created At", run.CreatedAt.UTC().Format(time.RFC3339)},
	}
	for _, row := range rows {
		if err := writef(w, "%s\t%s\n", row.label, row.value); err != nil {
			return fmt.Errorf("write run summary row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush run summary: %w", err)
	}
	return nil
}

func runStatusLine(run *model.PolicyRun) string {
	status := run.Status
	if run.NoOp {
		reason := ""
		if run.NoOpReason != nil {
			reason = *run.NoOpReason
		}
		if reason != "" {
			return fmt.Sprintf("%s (no-op: %s)", status, reason)
		}
		return status + " (no-op)"
	}
	if run.ErrorReason != nil && *run.ErrorReason != "" {
		return fmt.Sprintf("%s (%s)", status, *run.ErrorReason)
	}
	return status
}

func renderMovesTable(run *model.PolicyRun, moves []model.PolicyMove, limit int) error {
	if err := writeln(os.Stdout); err != nil {
		return fmt.Errorf("write moves spacer: %w", err)
	}

	if len(moves) == 0 {
		if err := writeln(os.Stdout, "No moves recorded for this run."); err != nil {
			return fmt.Errorf("write moves empty message: %w", err)
		}
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "RANK\tFROM\tTO\tBIKES\tDIST (M)\tREASONS"); err != nil {
		return fmt.Errorf("write moves header row: %w", err)
	}
	for i := range moves {
		m := &moves[i]
		reasons := "-"
		if len(m.ReasonCodes) > 0 {
			reasons = strings.Join(m.ReasonCodes, ",")
		}
		if err := writef(
			tw,
			"%d\t%s\t%s\t%d\t%.0f\t%s\n",
			m.MoveRank,
			m.FromStationKey,
			m.ToStationKey,
			m.BikesMoved,
			m.DistM,
			reasons,
		); err != nil {
			return fmt.Errorf("write move entry: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush moves table: %w", err)
	}

	if run.MoveCount > len(moves) && len(moves) == limit {
		if err := writeln(os.Stdout, "More moves available; increase --moves to view additional entries."); err != nil {
			return fmt.Errorf("write moves more message: %w", err)
		}
	}
	return nil
}

func parseRunShowFlags(args []string) (runShowOptions, error) {
	fs := flag.NewFlagSet("run-show", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := runShowOptions{}
	fs.StringVar(&opts.RunID, "run-id", "", "Run id (UUID) to inspect (required)")
	fs.IntVar(&opts.Moves, "moves", 50, "Maximum number of moves to show")
	fs.BoolVar(&opts.JSON, "json", false, "Emit the run and its moves as JSON instead of tables")
	fs.StringVar(&opts.Query, "query", "", "JMESPath expression applied to the JSON output (implies --json)")

	if err := fs.Parse(args); err != nil {
		return runShowOptions{}, err
	}

	opts.RunID = strings.TrimSpace(opts.RunID)
	if opts.RunID == "" {
		return runShowOptions{}, errors.New("--run-id is required")
	}
	if _, err := uuid.Parse(opts.RunID); err != nil {
		return runShowOptions{}, fmt.Errorf("--run-id must be a UUID: %w", err)
	}
	if opts.Moves <= 0 {
		return runShowOptions{}, errors.New("--moves must be greater than zero")
	}
	return opts, nil
}

// applyQuery filters v through a JMESPath expression. The value is round
// tripped through JSON first so the expression sees the same field names the
// --json output uses.
func applyQuery(v any, query string) (any, error) {
	if query == "" {
		return v, nil
	}

	if _, err := jmespath.Compile(query); err != nil {
		return nil, fmt.Errorf("invalid --query expression: %w", err)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for query: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal for query: %w", err)
	}

	result, err := jmespath.Search(query, doc)
	if err != nil {
		return nil, fmt.Errorf("evaluate --query expression: %w", err)
	}
	return result, nil
}
