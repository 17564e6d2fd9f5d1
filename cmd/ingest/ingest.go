package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cukesight/backend/internal/app"
	"github.com/cukesight/backend/internal/config"
	"github.com/cukesight/backend/internal/services"
	"github.com/cukesight/backend/pkg/utils"
	"github.com/spf13/cobra"
)

var ingestFlags struct {
	project     string
	environment string
	buildID     string
	timestamp   string
	tags        []string
	batch       bool
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-or-dir>...",
	Short: "Ingest Cucumber JSON report files",
	Long: `Ingest reads Cucumber JSON files (directories are searched for *.json)
and stores them as test runs. By default each file becomes its own run; with
--batch all files form a single run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestFlags.project, "project", "", "project name")
	f.StringVar(&ingestFlags.environment, "environment", "", "environment name")
	f.StringVar(&ingestFlags.buildID, "build-id", "", "build identifier")
	f.StringVar(&ingestFlags.timestamp, "timestamp", "", "run timestamp (ISO-8601), defaults to now")
	f.StringSliceVar(&ingestFlags.tags, "tag", nil, "run tag (repeatable)")
	f.BoolVar(&ingestFlags.batch, "batch", false, "ingest all files as one test run")
}

// reportFiles expands directories into their *.json files, sorted.
func reportFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".json") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	logger := utils.GetLogger()

	files, err := reportFiles(args)
	if err != nil {
		return fmt.Errorf("finding report files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no report files found")
	}

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

	meta := services.IngestMetadata{
		Project:     ingestFlags.project,
		Environment: ingestFlags.environment,
		BuildID:     ingestFlags.buildID,
		Timestamp:   ingestFlags.timestamp,
		Tags:        ingestFlags.tags,
	}

	groups := make([][]string, 0, len(files))
	if ingestFlags.batch {
		groups = append(groups, files)
	} else {
		for _, file := range files {
			groups = append(groups, []string{file})
		}
	}

	out := json.NewEncoder(cmd.OutOrStdout())
	out.SetIndent("", "  ")
	for _, group := range groups {
		payloads := make([][]byte, 0, len(group))
		for _, file := range group {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading %s: %w", file, err)
			}
			payloads = append(payloads, data)
		}

		meta.Metadata = map[string]interface{}{"source_files": group}
		resp, err := application.Ingest.Ingest(ctx, payloads, meta)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", strings.Join(group, ", "), err)
		}
		if !resp.Success {
			fail()
		}
		if err := out.Encode(resp); err != nil {
			return err
		}
	}
	return nil
}
