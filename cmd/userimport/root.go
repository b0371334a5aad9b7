package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "userimport",
		Short:         "Bulk user import and course enrolment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newPreviewCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newMigrateCmd())
	return cmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
