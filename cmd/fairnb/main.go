package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	apperrors "fairnb/internal/errors"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit status: 1 on any error,
// including search timeouts and infeasible fits.
func execute(args []string, stdout, stderr io.Writer) int {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:           "fairnb",
		Short:         "Learn naive-Bayes parameters free of discrimination patterns",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(rootCmd)

	rootCmd.AddCommand(
		newLearnCmd(opts),
		newSweepCmd(opts),
		newHistoryCmd(opts),
		newShowCmd(),
	)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "fairnb: [%s] %v\n", apperrors.Classify(err), err)
		return 1
	}
	return 0
}
