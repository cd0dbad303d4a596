package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/tally/internal/config"
	"github.com/cleared-dev/tally/internal/gitops"
	"github.com/cleared-dev/tally/internal/importer"
)

func newInitCommand() *cobra.Command {
	var owner string
	var useGit bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new tally repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(cmd.Context(), cmd.OutOrStdout(), absDir, owner, useGit)
		},
	}

	cmd.Flags().StringVar(&owner, "venmo-owner", "", "display name on your Venmo statements")
	cmd.Flags().BoolVar(&useGit, "git", false, "version the config with git")

	return cmd
}

func runInit(ctx context.Context, out io.Writer, dir, owner string, useGit bool) error {
	cfgPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config: %w", err)
	}

	cfg := config.Default()
	cfg.Venmo.Owner = owner

	// Create directory structure.
	dirs := []string{
		cfg.Import.Dir,
		filepath.Join(cfg.Import.Dir, importer.ProcessedDir),
		"logs",
		cfg.Store.Dir,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Exports and the store hold account data.
	gitignore := ".env\n" + cfg.Import.Dir + "/\n" + cfg.Store.Dir + "/\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	if useGit {
		if !gitops.IsRepo(dir) {
			if err := gitops.Init(ctx, dir); err != nil {
				return err
			}
		}
		hash, err := gitops.CommitFiles(ctx, dir, "tally: initialize repository", gitops.DefaultAuthor,
			config.FileName, ".gitignore")
		if err != nil {
			return fmt.Errorf("initial commit: %w", err)
		}
		fmt.Fprintf(out, "Committed config (%s)\n", hash)
	}

	fmt.Fprintf(out, "Initialized tally repository at %s\n", dir)
	fmt.Fprintf(out, "Drop exports into %s and run `tally sweep`.\n", filepath.Join(dir, cfg.Import.Dir))
	return nil
}
