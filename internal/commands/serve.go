package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/tally/internal/server"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP import API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return runServe(cmd, a)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")

	return cmd
}

func runServe(cmd *cobra.Command, a *app) error {
	ctx := cmd.Context()
	s, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	srv := server.New(a.coordinator(s), s, server.Options{
		RepoRoot:       a.root,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
	}, a.logger)
	return srv.ListenAndServe(ctx, a.cfg.Server.Addr)
}
