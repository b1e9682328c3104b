// Command syncr-source runs the daemon that holds the authoritative file
// content: it accepts connections from updaters, drives one source session
// per connection, and logs terminal errors without stopping the accept
// loop.
package main

import (
	"context"
	"net"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aalekhpatel07/syncr"
	"github.com/aalekhpatel07/syncr/config"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var addr string

	root := &cobra.Command{
		Use:   "syncr-source",
		Short: "Serve the authoritative copy of a file for updater peers to sync against",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), addr, logger)
		},
	}
	root.Flags().StringVar(&addr, "addr", ":8000", "listen address")

	if err := root.ExecuteContext(context.Background()); err != nil {
		logger.Error().Err(err).Msg("syncr-source exiting")
		os.Exit(1)
	}
}

func serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer listener.Close()

	logger.Info().Str("addr", addr).Msg("listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			logger.Error().Err(err).Msg("accept failed")
			continue
		}
		go handleConnection(ctx, conn, logger)
	}
}

func handleConnection(ctx context.Context, conn net.Conn, logger zerolog.Logger) {
	defer conn.Close()

	peerLogger := logger.With().Str("remote", conn.RemoteAddr().String()).Logger()
	peerLogger.Info().Msg("accepted connection")

	if err := syncr.RunSource(ctx, conn, config.Default(), peerLogger); err != nil {
		peerLogger.Error().Err(err).Msg("session terminated with an error")
		return
	}
	peerLogger.Info().Msg("session complete")
}
