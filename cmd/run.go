package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/bulkgen/internal/job"
	"github.com/JakeFAU/bulkgen/internal/logbridge"
)

type runFlags struct {
	region          string
	namePrefix      string
	passwordPrefix  string
	count           int64
	threads         int
	autoActivation  bool
	rarityThreshold int
	poll            time.Duration
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one generation job and stream its activity log",
		Long: `run starts a single job with the configured defaults, overridden by any
flags given, prints activity log entries as they arrive and finishes with
the final statistics as JSON. An interrupt stops the job early.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := runJob(cmd, flags)
			if err != nil {
				// Post-run hooks are skipped on error.
				if app, appErr := appFrom(cmd.Context()); appErr == nil {
					_ = app.Close(context.WithoutCancel(cmd.Context()))
				}
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.region, "region", "", "region code, or GHOST")
	f.StringVar(&flags.namePrefix, "name-prefix", "", "account name prefix")
	f.StringVar(&flags.passwordPrefix, "password-prefix", "", "account password prefix")
	f.Int64Var(&flags.count, "count", 0, "number of accounts to generate")
	f.IntVar(&flags.threads, "threads", 0, "number of concurrent workers")
	f.BoolVar(&flags.autoActivation, "auto-activation", true, "activate accounts after creation")
	f.IntVar(&flags.rarityThreshold, "rarity-threshold", 0, "minimum rarity score for the rare category")
	f.DurationVar(&flags.poll, "poll", 250*time.Millisecond, "activity log poll interval")
	return cmd
}

func (r *runFlags) apply(changed func(name string) bool, cfg job.Config) job.Config {
	if changed("region") {
		cfg.Region = r.region
	}
	if changed("name-prefix") {
		cfg.NamePrefix = r.namePrefix
	}
	if changed("password-prefix") {
		cfg.PasswordPrefix = r.passwordPrefix
	}
	if changed("count") {
		cfg.AccountCount = r.count
	}
	if changed("threads") {
		cfg.ThreadCount = r.threads
	}
	if changed("auto-activation") {
		cfg.AutoActivation = r.autoActivation
	}
	if changed("rarity-threshold") {
		cfg.RarityThreshold = r.rarityThreshold
	}
	return cfg
}

func runJob(cmd *cobra.Command, flags *runFlags) error {
	ctx := cmd.Context()
	app, err := appFrom(ctx)
	if err != nil {
		return err
	}
	if flags.poll <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", flags.poll)
	}

	sup := app.Supervisor()
	jobCfg := flags.apply(cmd.Flags().Changed, app.Config().Job.Defaults())
	runID, err := sup.Start(jobCfg)
	if err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s started\n", runID)

	done := make(chan error, 1)
	go func() {
		done <- sup.Wait(context.WithoutCancel(ctx))
	}()

	ticker := time.NewTicker(flags.poll)
	defer ticker.Stop()
	interrupted := ctx.Done()
	for {
		select {
		case <-interrupted:
			interrupted = nil
			sup.Stop()
		case <-ticker.C:
			printEvents(out, app.Bridge().Drain())
		case err := <-done:
			printEvents(out, app.Bridge().Drain())
			if err != nil {
				return err
			}
			return printStats(out, app.Stats().Snapshot())
		}
	}
}

func printEvents(w io.Writer, events []logbridge.Event) {
	for _, ev := range events {
		fmt.Fprintf(w, "[%s] %-10s %s\n", ev.Timestamp, ev.Category, ev.Message)
	}
}

func printStats(w io.Writer, snapshot any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	return nil
}
