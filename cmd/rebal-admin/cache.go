package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/urbanflow/rebal/internal/data"
)

type cacheClearOptions struct {
	SystemID string
	DryRun   bool
	Yes      bool
}

type cacheClearConfirmOptions struct {
	opts cacheClearOptions
}

func (c cacheClearConfirmOptions) IsYes() bool { return c.opts.DryRun || c.opts.Yes }
func (c cacheClearConfirmOptions) GetWarning() string {
	return "WARNING: this will remove cached run summaries; subsequent status reads fall back to Postgres."
}

func (c cacheClearConfirmOptions) GetTarget() string {
	if c.opts.SystemID == "" {
		return "all systems"
	}
	return fmt.Sprintf("system %q", c.opts.SystemID)
}

func runCacheClear(cmdCtx *commandContext, args []string) error {
	opts, err := parseCacheClearFlags(args)
	if err != nil {
		return err
	}

	if confirmErr := confirmAction(cacheClearConfirmOptions{opts: opts}, "clear run cache entries"); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantDB:    false,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	if redisClient == nil {
		return errors.New("redis is not configured; nothing to clear")
	}
	defer func() {
		if closeErr := closeInfra(db, redisClient); closeErr != nil {
			cmdCtx.Logger.Warn("close infra failed", "error", closeErr)
		}
	}()

	deleted, scanned, err := clearRunCacheKeys(ctx, redisClient, &opts)
	if err != nil {
		return err
	}

	if opts.DryRun {
		cmdCtx.Logger.Info("cache clear dry run complete", "keys_matched", scanned)
		return nil
	}
	cmdCtx.Logger.Info("cache clear complete", "keys_scanned", scanned, "keys_deleted", deleted)
	return nil
}

func clearRunCacheKeys(
	ctx context.Context,
	client *redis.Client,
	opts *cacheClearOptions,
) (int, int, error) {
	match := cacheClearPattern(opts.SystemID)
	iter := client.Scan(ctx, 0, match, 100).Iterator()

	deleted := 0
	scanned := 0
	for iter.Next(ctx) {
		key := iter.Val()
		scanned++

		if opts.DryRun {
			if err := writeln(os.Stdout, key); err != nil {
				return deleted, scanned, fmt.Errorf("write cache key: %w", err)
			}
			continue
		}

		if err := client.Del(ctx, key).Err(); err != nil {
			return deleted, scanned, fmt.Errorf("delete cache key %q: %w", key, err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, scanned, fmt.Errorf("scan run cache keys: %w", err)
	}
	return deleted, scanned, nil
}

// cacheClearPattern builds the SCAN match pattern. Glob metacharacters in a
// system id are escaped so operator input cannot widen the match.
func cacheClearPattern(systemID string) string {
	if systemID == "" {
		return data.RunCachePrefix + "*"
	}
	escaper := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return data.RunCachePrefix + escaper.Replace(systemID) + ":*"
}

func parseCacheClearFlags(args []string) (cacheClearOptions, error) {
	fs := flag.NewFlagSet("cache-clear", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := cacheClearOptions{}
	fs.StringVar(&opts.SystemID, "system", "", "Only clear entries for this system id (default: all systems)")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "List matching keys without deleting them")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return cacheClearOptions{}, err
	}
	return opts, nil
}
