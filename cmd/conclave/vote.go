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

func newVoteCommand(flags *rootFlags) *cobra.Command {
	var aggregation string

	cmd := &cobra.Command{
		Use:   "vote [question]",
		Short: "Run a single-turn vote across all models",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			engine, cleanup, err := setup(flags, func(cfg *debate.Config) {
				cfg.Protocol = debate.ProtocolVoting
				if aggregation != "" {
					cfg.VotingAggregation = aggregation
				}
			})
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := engine.RunVoting(ctx, question)
			if err != nil {
				var storageErr *debate.StorageError
				if !errors.As(err, &storageErr) {
					return err
				}
				fmt.Fprintln(os.Stderr, "Warning:", storageErr)
			}

			if len(result.Votes) == 0 {
				fmt.Println("No votes were cast.")
				return nil
			}

			fmt.Println(result.Decision)
			fmt.Println()
			fmt.Printf("Strategy:   %s\n", result.Strategy)
			fmt.Printf("Confidence: %.2f\n", result.Confidence)
			fmt.Printf("Votes:      %d\n", len(result.Votes))
			for _, vote := range result.Votes {
				fmt.Printf("\n[%s]\n%s\n", vote.ModelRef, vote.Content)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&aggregation, "aggregation", "a", "", "aggregation strategy: majority or weighted")
	return cmd
}
