package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urbanflow/rebal/internal/data"
	"github.com/urbanflow/rebal/internal/domain/model"
)

type queueStatsOptions struct {
	JSON bool
}

type dlqListOptions struct {
	Limit int
	JSON  bool
	Query string
}

type dlqRequeueOptions struct {
	DlqID int64
	Yes   bool
}

func runQueueStats(cmdCtx *commandContext, args []string) error {
	opts, err := parseQueueStatsFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewQueueRepo(db, data.QueueRepoConfig{})
		stats, statsErr := repo.Stats(ctx)
		if statsErr != nil {
			return fmt.Errorf("queue stats: %w", statsErr)
		}

		if opts.JSON {
			return printJSON(stats, "")
		}
		return printQueueStats(stats)
	})
}

func printQueueStats(stats model.QueueStats) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "State\tJobs"); err != nil {
		return fmt.Errorf("write stats header: %w", err)
	}
	if err := writef(w, "Visible\t%d\n", stats.Visible); err != nil {
		return fmt.Errorf("write visible count: %w", err)
	}
	if err := writef(w, "Leased\t%d\n", stats.Leased); err != nil {
		return fmt.Errorf("write leased count: %w", err)
	}
	if err := writef(w, "Dead-lettered\t%d\n", stats.DeadLettered); err != nil {
		return fmt.Errorf("write dead-lettered count: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush stats table: %w", err)
	}
	return nil
}

func runDLQList(cmdCtx *commandContext, args []string) error {
	opts, err := parseDLQListFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewQueueRepo(db, data.QueueRepoConfig{})
		records, listErr := repo.ListDLQ(ctx, opts.Limit)
		if listErr != nil {
			return fmt.Errorf("list dlq: %w", listErr)
		}

		if opts.JSON || opts.Query != "" {
			return printJSON(records, opts.Query)
		}
		return renderDLQTable(records)
	})
}

func renderDLQTable(records []model.DlqRecord) error {
	if len(records) == 0 {
		if err := writeln(os.Stdout, "No dead-lettered jobs."); err != nil {
			return fmt.Errorf("write dlq empty message: %w", err)
		}
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "DLQ ID\tTYPE\tREASON\tATTEMPTS\tDEDUPE KEY\tFAILED AT"); err != nil {
		return fmt.Errorf("write dlq header row: %w", err)
	}
	for i := range records {
		rec := &records[i]
		dedupe := "-"
		if rec.DedupeKey != nil {
			dedupe = *rec.DedupeKey
		}
		if err := writef(
			tw,
			"%d\t%s\t%s\t%d/%d\t%s\t%s\n",
			rec.DlqID,
			rec.Type,
			rec.ReasonCode,
			rec.Attempts,
			rec.MaxAttempts,
			dedupe,
			rec.FailedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("write dlq entry: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush dlq table: %w", err)
	}

	if err := writef(os.Stdout, "Total records shown: %d\n", len(records)); err != nil {
		return fmt.Errorf("write dlq total: %w", err)
	}
	return nil
}

func runDLQRequeue(cmdCtx *commandContext, args []string) error {
	opts, err := parseDLQRequeueFlags(args)
	if err != nil {
		return err
	}

	if confirmErr := confirmAction(requeueConfirmOptions{
		yes:   opts.Yes,
		dlqID: opts.DlqID,
	}, "requeue dead-lettered job"); confirmErr != nil {
		return confirmErr
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewQueueRepo(db, data.QueueRepoConfig{})
		jobID, requeueErr := repo.RequeueFromDLQ(ctx, opts.DlqID)
		if requeueErr != nil {
			if errors.Is(requeueErr, data.ErrDlqRecordNotFound) {
				return fmt.Errorf("dlq record %d not found", opts.DlqID)
			}
			return fmt.Errorf("requeue from dlq: %w", requeueErr)
		}

		cmdCtx.Logger.Info("requeued dead-lettered job", "dlq_id", opts.DlqID, "job_id", jobID)
		return nil
	})
}

func parseQueueStatsFlags(args []string) (queueStatsOptions, error) {
	fs := flag.NewFlagSet("queue-stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := queueStatsOptions{}
	fs.BoolVar(&opts.JSON, "json", false, "Emit stats as JSON instead of a table")

	if err := fs.Parse(args); err != nil {
		return queueStatsOptions{}, err
	}
	return opts, nil
}

func parseDLQListFlags(args []string) (dlqListOptions, error) {
	fs := flag.NewFlagSet("dlq-list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := dlqListOptions{}
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum number of records to show")
	fs.BoolVar(&opts.JSON, "json", false, "Emit records as JSON instead of a table")
	fs.StringVar(&opts.Query, "query", "", "JMESPath expression applied to the JSON output (implies --json)")

	if err := fs.Parse(args); err != nil {
		return dlqListOptions{}, err
	}

	if opts.Limit <= 0 {
		return dlqListOptions{}, errors.New("--limit must be greater than zero")
	}
	return opts, nil
}

func parseDLQRequeueFlags(args []string) (dlqRequeueOptions, error) {
	fs := flag.NewFlagSet("dlq-requeue", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := dlqRequeueOptions{}
	fs.Int64Var(&opts.DlqID, "id", 0, "DLQ record id to requeue (required)")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return dlqRequeueOptions{}, err
	}

	if opts.DlqID <= 0 {
		return dlqRequeueOptions{}, errors.New("--id is required and must be a positive DLQ record id")
	}
	return opts, nil
}

// printJSON marshals v to indented JSON on stdout, optionally filtered
// through a JMESPath expression first.
func printJSON(v any, query string) error {
	filtered, err := applyQuery(v, query)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(filtered, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	return writeln(os.Stdout, string(out))
}
