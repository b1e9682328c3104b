package session

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/aalekhpatel07/syncr/config"
	"github.com/aalekhpatel07/syncr/instruction"
	"github.com/aalekhpatel07/syncr/protocol"
	"github.com/aalekhpatel07/syncr/strongchecksum"
	"github.com/aalekhpatel07/syncr/weakchecksum"
)

// Updater drives the updater side of one Connection: send the file name
// and its own weak checksums, answer the source's strong-hash request, then
// receive the match list and the reconstruction program.
type Updater struct {
	conn   *protocol.Connection
	cfg    config.ChecksumConfig
	logger zerolog.Logger

	readFile func(path string) ([]byte, error)

	// LocalData, once Run has completed U0, holds the updater's own file
	// bytes, retained for Replicate instructions in Apply.
	LocalData []byte
	// Instructions, once Run has completed, holds the reconstruction
	// program the source synthesized.
	Instructions []instruction.Instruction
}

// NewUpdater returns an Updater ready to run against conn.
func NewUpdater(conn *protocol.Connection, cfg config.ChecksumConfig, logger zerolog.Logger) *Updater {
	return &Updater{
		conn:     conn,
		cfg:      cfg,
		logger:   logger.With().Str("component", "updater-session").Logger(),
		readFile: os.ReadFile,
	}
}

// Run executes the updater state machine to completion. localPath is the
// updater's own file; remotePath is the name the source should use to
// locate its authoritative copy.
func (u *Updater) Run(ctx context.Context, localPath, remotePath string) error {
	data, err := u.readFile(localPath)
	if err != nil {
		return errors.Wrapf(err, "reading local file %q", localPath)
	}
	u.LocalData = data

	weak := weakchecksum.New(data, u.cfg).NonOverlapping()

	if err := u.conn.Send(ctx, &protocol.FileNameMsg{Path: remotePath}); err != nil {
		return err
	}
	if err := u.conn.Send(ctx, &protocol.WeakChecksumsMsg{Checksums: weak}); err != nil {
		return err
	}

	if err := u.awaitStrongChecksumRequest(ctx, data); err != nil {
		return err
	}

	if _, err := u.awaitMatches(ctx); err != nil {
		return err
	}

	instructions, err := u.awaitInstructions(ctx)
	if err != nil {
		return err
	}
	u.Instructions = instructions

	u.logger.Debug().Int("instructions", len(instructions)).Msg("reconstruction program received")
	return nil
}

// awaitStrongChecksumRequest answers the source's request for strong
// hashes over the offsets it named.
func (u *Updater) awaitStrongChecksumRequest(ctx context.Context, data []byte) error {
	msg, err := u.recv(ctx)
	if err != nil {
		return err
	}
	req, ok := msg.(*protocol.StrongChecksumRequestMsg)
	if !ok {
		return errors.Errorf("expected StrongChecksumRequest, got %T", msg)
	}

	hasher := strongchecksum.New(u.cfg)
	entries := make([]protocol.StrongChecksumEntry, 0, len(req.Offsets))
	for _, offset := range req.Offsets {
		end := offset + u.cfg.BlockSize
		if end > len(data) {
			end = len(data)
		}
		if offset >= end {
			continue
		}
		entries = append(entries, protocol.StrongChecksumEntry{
			Offset: offset,
			Hash:   hasher.Hash(data[offset:end]),
		})
	}

	return u.conn.Send(ctx, &protocol.StrongChecksumsMsg{Entries: entries})
}

// awaitMatches receives the source's confirmed match pairs and returns them;
// Run discards them and the Updater does not retain them. Instruction
// synthesis itself happens on the source side
// (see protocol.InstructionsMsg) since only the source holds the source
// file's literal bytes.
func (u *Updater) awaitMatches(ctx context.Context) ([]protocol.MatchPair, error) {
	msg, err := u.recv(ctx)
	if err != nil {
		return nil, err
	}
	matches, ok := msg.(*protocol.MatchesMsg)
	if !ok {
		return nil, errors.Errorf("expected Matches, got %T", msg)
	}
	return matches.Pairs, nil
}

// awaitInstructions receives the reconstruction program, the session's
// final message.
func (u *Updater) awaitInstructions(ctx context.Context) ([]instruction.Instruction, error) {
	msg, err := u.recv(ctx)
	if err != nil {
		return nil, err
	}
	ins, ok := msg.(*protocol.InstructionsMsg)
	if !ok {
		return nil, errors.Errorf("expected Instructions, got %T", msg)
	}
	return instruction.FromWireSlice(ins.Instructions), nil
}

func (u *Updater) recv(ctx context.Context) (protocol.Message, error) {
	select {
	case msg, ok := <-u.conn.Inbound:
		if !ok {
			return nil, protocol.ErrUnexpectedEOF
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reconstruct applies the received instruction program against the
// updater's own file bytes, yielding the reconstructed source file in
// memory. Writing it back to disk is the caller's job.
func (u *Updater) Reconstruct() ([]byte, error) {
	return instruction.Apply(u.Instructions, u.LocalData)
}
