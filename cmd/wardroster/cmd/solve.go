package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wardroster/wardroster/internal/bundle"
	"github.com/wardroster/wardroster/internal/job"
	"github.com/wardroster/wardroster/internal/types"
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Run an optimization job for a scheduling period",
	Long: `Solve enqueues and runs one optimization job against the period's
active bundle (or an explicit --bundle), printing run events as they
arrive. SIGINT requests cooperative cancellation.`,
	RunE: runSolve,
}

func init() {
	rootCmd.AddCommand(solveCmd)
	solveCmd.Flags().String("project", "default", "project id")
	solveCmd.Flags().String("period", "", "scheduling period id (required)")
	solveCmd.Flags().String("bundle", "", "bundle id (defaults to the period's active bundle)")
	solveCmd.Flags().Int("time-limit", 0, "solver time limit in seconds (0 uses the configured default)")
	solveCmd.Flags().Int64("seed", 0, "random seed for deterministic solving")
	solveCmd.Flags().Int("workers", 0, "solver workers (0 uses the configured default)")
	solveCmd.MarkFlagRequired("period")
}

func runSolve(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, database, st, log, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	periodFlag, _ := cmd.Flags().GetString("period")
	project, _ := cmd.Flags().GetString("project")
	bundleFlag, _ := cmd.Flags().GetString("bundle")
	timeLimit, _ := cmd.Flags().GetInt("time-limit")
	seed, _ := cmd.Flags().GetInt64("seed")
	workers, _ := cmd.Flags().GetInt("workers")

	if timeLimit <= 0 {
		timeLimit = int(cfg.SolveTimeLimit.Seconds())
	}
	if workers <= 0 {
		workers = cfg.SolverWorkers
	}

	sink := job.NewChannelSink(cfg.EventBuffer)
	orch := job.New(st, bundle.New(st, log), nil, sink, log)

	j, err := orch.Enqueue(ctx, types.JobSpec{
		ProjectID:        project,
		PeriodID:         types.PeriodID(periodFlag),
		BundleID:         types.BundleID(bundleFlag),
		TimeLimitSeconds: timeLimit,
		RandomSeed:       seed,
		SolverWorkers:    workers,
	})
	if err != nil {
		return err
	}
	fmt.Printf("job %s enqueued\n", j.ID)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("cancellation requested")
		orch.Cancel(j.ID)
	}()

	done := make(chan error, 1)
	go func() {
		done <- orch.Run(ctx, j.ID)
		sink.Close()
	}()

	for ev := range sink.Events() {
		payload, _ := json.Marshal(ev.Payload)
		fmt.Printf("[%s] %s %s\n", ev.At.Format("15:04:05"), ev.Type, payload)
	}
	return <-done
}
