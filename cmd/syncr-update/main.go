// Command syncr-update dials a syncr-source daemon, drives one updater
// session, and applies the resulting instructions, exiting nonzero on any
// protocol or I/O error.
package main

import (
	"context"
	"net"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aalekhpatel07/syncr"
	"github.com/aalekhpatel07/syncr/config"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var (
		localFile  string
		remoteFile string
		addr       string
	)

	root := &cobra.Command{
		Use:   "syncr-update",
		Short: "Sync a local file against a remote syncr-source's authoritative copy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), localFile, remoteFile, addr, logger)
		},
	}
	root.Flags().StringVar(&localFile, "file", "", "local (stale) file path")
	root.Flags().StringVar(&remoteFile, "remote-file", "", "path the source should read as its authoritative copy")
	root.Flags().StringVar(&addr, "addr", "localhost:8000", "source daemon address")
	_ = root.MarkFlagRequired("file")
	_ = root.MarkFlagRequired("remote-file")

	if err := root.ExecuteContext(context.Background()); err != nil {
		logger.Error().Err(err).Msg("syncr-update failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, localFile, remoteFile, addr string, logger zerolog.Logger) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "dialing %s", addr)
	}
	defer conn.Close()

	reconstructed, err := syncr.RunUpdater(ctx, conn, config.Default(), logger, localFile, remoteFile)
	if err != nil {
		return errors.Wrap(err, "updater session")
	}

	if err := os.WriteFile(localFile, reconstructed, 0o644); err != nil {
		return errors.Wrapf(err, "writing reconstructed file %q", localFile)
	}

	logger.Info().Int("bytes", len(reconstructed)).Msg("sync complete")
	return nil
}
