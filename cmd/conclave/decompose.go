package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conclave-ai/conclave/internal/debate"
)

func newDecomposeCommand(flags *rootFlags) *cobra.Command {
	var (
		maxSubtasks int
		serial      bool
	)

	cmd := &cobra.Command{
		Use:   "decompose [question]",
		Short: "Split the question into sub-tasks, deliberate each, synthesize",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			engine, cleanup, err := setup(flags, func(cfg *debate.Config) {
				cfg.Protocol = debate.ProtocolDecompose
				if maxSubtasks > 0 {
					cfg.DecomposeMaxSubtasks = maxSubtasks
				}
				if serial {
					cfg.DecomposeParallel = false
				}
			})
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := engine.RunDecompose(ctx, question)
			if err != nil {
				var storageErr *debate.StorageError
				if !errors.As(err, &storageErr) {
					return err
				}
				fmt.Fprintln(os.Stderr, "Warning:", storageErr)
			}

			printResult(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxSubtasks, "max-subtasks", 0, "maximum sub-tasks in the decomposition")
	cmd.Flags().BoolVar(&serial, "serial", false, "run independent sub-tasks serially")
	return cmd
}
