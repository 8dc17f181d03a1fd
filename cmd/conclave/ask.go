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

func newAskCommand(flags *rootFlags) *cobra.Command {
	var (
		protocol    string
		rounds      int
		challengers int
		panel       []string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Deliberate a question and print the decision",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			engine, cleanup, err := setup(flags, func(cfg *debate.Config) {
				if protocol != "" {
					cfg.Protocol = debate.Protocol(protocol)
				}
				if rounds > 0 {
					cfg.MaxRounds = rounds
				}
				if challengers > 0 {
					cfg.Challengers = challengers
				}
				if len(panel) > 0 {
					cfg.Panel = panel
				}
			})
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := engine.Run(ctx, question)
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

	cmd.Flags().StringVarP(&protocol, "protocol", "p", "", "protocol override: consensus, voting, decompose, or auto")
	cmd.Flags().IntVarP(&rounds, "rounds", "r", 0, "maximum deliberation rounds")
	cmd.Flags().IntVar(&challengers, "challengers", 0, "challengers per round")
	cmd.Flags().StringSliceVar(&panel, "panel", nil, "restrict eligible models to these provider:model refs")
	return cmd
}

func printResult(result *debate.Result) {
	fmt.Println(result.Decision)
	fmt.Println()
	fmt.Printf("Confidence: %.2f\n", result.Confidence)
	if result.Rounds > 0 {
		fmt.Printf("Rounds:     %d\n", result.Rounds)
	}
	if result.Cost > 0 {
		fmt.Printf("Cost:       $%.4f\n", result.Cost)
	}
	if result.Dissent != "" {
		fmt.Println("\nDissent:")
		fmt.Println(result.Dissent)
	}
	for _, sub := range result.Subtasks {
		fmt.Printf("\n[%s] (confidence %.2f)\n%s\n", sub.Label, sub.Confidence, sub.Decision)
	}
}
