package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cukesight/backend/internal/app"
	"github.com/cukesight/backend/internal/config"
	"github.com/cukesight/backend/pkg/utils"
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Link stored test runs that are missing from the vector store",
	Args:  cobra.NoArgs,
	RunE:  runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	logger := utils.GetLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	report, err := application.Reconciler.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("reconciling: %w", err)
	}
	if report.Failed > 0 {
		fail()
	}

	out := json.NewEncoder(cmd.OutOrStdout())
	out.SetIndent("", "  ")
	return out.Encode(report)
}
