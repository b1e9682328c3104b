// Package syncr ties a Connection and a session together over a single
// transport, driving one pair of actors to completion for callers that
// don't want to manage the channel plumbing themselves. The caller retains
// ownership of the net.Conn and closes it once the Run function returns.
package syncr

import (
	"context"
	"net"

	"github.com/rs/zerolog"

	"github.com/aalekhpatel07/syncr/config"
	"github.com/aalekhpatel07/syncr/protocol"
	"github.com/aalekhpatel07/syncr/session"
)

// RunSource drives one SourceSession to completion over conn, running the
// Connection's I/O actor alongside it and returning once both finish. The
// session's final sends only enqueue frames, so on success the outbound
// queue is closed and the I/O actor drains it before the pair is torn
// down; canceling it any earlier could drop the Matches/Instructions
// frames still in the queue.
func RunSource(ctx context.Context, conn net.Conn, cfg config.ChecksumConfig, logger zerolog.Logger) error {
	pc := protocol.NewConnection(conn, logger)
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ioErrCh := make(chan error, 1)
	go func() { ioErrCh <- pc.Run(connCtx) }()

	if err := session.NewSource(pc, cfg, logger).Run(connCtx); err != nil {
		cancel()
		<-ioErrCh
		return err
	}

	pc.CloseSend()
	if err := <-ioErrCh; err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// RunUpdater drives one UpdaterSession to completion over conn, and returns
// the reconstructed file bytes on success.
func RunUpdater(ctx context.Context, conn net.Conn, cfg config.ChecksumConfig, logger zerolog.Logger, localPath, remotePath string) ([]byte, error) {
	pc := protocol.NewConnection(conn, logger)
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ioErrCh := make(chan error, 1)
	go func() { ioErrCh <- pc.Run(connCtx) }()

	updater := session.NewUpdater(pc, cfg, logger)
	if err := updater.Run(connCtx, localPath, remotePath); err != nil {
		cancel()
		<-ioErrCh
		return nil, err
	}

	pc.CloseSend()
	if err := <-ioErrCh; err != nil && err != context.Canceled {
		return nil, err
	}

	return updater.Reconstruct()
}
