// Package session implements the two per-connection state machines: the
// source, which holds the authoritative file and drives the match protocol,
// and the updater, which holds the stale file and receives the resulting
// instructions. Each state is a small, directly testable function rather
// than one monolithic dispatch loop over the inbound queue.
package session

import (
	"context"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/aalekhpatel07/syncr/config"
	"github.com/aalekhpatel07/syncr/instruction"
	"github.com/aalekhpatel07/syncr/matchindex"
	"github.com/aalekhpatel07/syncr/protocol"
	"github.com/aalekhpatel07/syncr/strongchecksum"
	"github.com/aalekhpatel07/syncr/weakchecksum"
)

// Source drives the source side of one Connection: await the file name and
// the updater's weak checksums, find and verify candidate matches, then
// send the match list and the reconstruction program.
type Source struct {
	conn   *protocol.Connection
	cfg    config.ChecksumConfig
	logger zerolog.Logger

	// readFile reads the local file named by the FileName message. It is a
	// field (defaulting to os.ReadFile) so tests can substitute an
	// in-memory filesystem.
	readFile func(path string) ([]byte, error)
}

// NewSource returns a Source ready to run against conn.
func NewSource(conn *protocol.Connection, cfg config.ChecksumConfig, logger zerolog.Logger) *Source {
	return &Source{
		conn:     conn,
		cfg:      cfg,
		logger:   logger.With().Str("component", "source-session").Logger(),
		readFile: os.ReadFile,
	}
}

// Run executes the source state machine to completion.
func (s *Source) Run(ctx context.Context) error {
	path, err := s.awaitFileName(ctx)
	if err != nil {
		return err
	}

	weak, err := s.awaitWeakChecksums(ctx)
	if err != nil {
		return err
	}

	sourceData, err := s.readFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading source file %q", path)
	}

	index := matchindex.New(s.cfg)
	index.Compile(weak)

	rolling := weakchecksum.New(sourceData, s.cfg).Rolling()
	candidateOffsets := selectCandidates(rolling, index)
	updaterOffsets := updaterOffsetsToHash(rolling, candidateOffsets, index)
	if err := s.conn.Send(ctx, &protocol.StrongChecksumRequestMsg{Offsets: updaterOffsets}); err != nil {
		return err
	}

	entries, err := s.awaitStrongChecksums(ctx)
	if err != nil {
		return err
	}

	matches := s.verify(sourceData, rolling, candidateOffsets, index, entries)

	pairs := make([]protocol.MatchPair, len(matches))
	for i, m := range matches {
		pairs[i] = protocol.MatchPair{UpdaterOffset: m.UpdaterOffset, SourceOffset: m.SourceOffset}
	}
	if err := s.conn.Send(ctx, &protocol.MatchesMsg{Pairs: pairs}); err != nil {
		return err
	}

	instructions := instruction.Synthesize(matches, sourceData, s.cfg.BlockSize)
	if err := s.conn.Send(ctx, &protocol.InstructionsMsg{Instructions: instruction.ToWireSlice(instructions)}); err != nil {
		return err
	}

	s.logger.Debug().Int("instructions", len(instructions)).Msg("synthesis complete")
	return nil
}

// awaitFileName blocks until the updater names the file to synchronize.
func (s *Source) awaitFileName(ctx context.Context) (string, error) {
	msg, err := s.recv(ctx)
	if err != nil {
		return "", err
	}
	fn, ok := msg.(*protocol.FileNameMsg)
	if !ok {
		return "", errors.Errorf("expected FileName, got %T", msg)
	}
	return fn.Path, nil
}

// awaitWeakChecksums blocks until the updater's non-overlapping weak
// checksums arrive.
func (s *Source) awaitWeakChecksums(ctx context.Context) ([]uint32, error) {
	msg, err := s.recv(ctx)
	if err != nil {
		return nil, err
	}
	wc, ok := msg.(*protocol.WeakChecksumsMsg)
	if !ok {
		return nil, errors.Errorf("expected WeakChecksums, got %T", msg)
	}
	return wc.Checksums, nil
}

// awaitStrongChecksums blocks until the updater answers the strong-hash
// request.
func (s *Source) awaitStrongChecksums(ctx context.Context) ([]protocol.StrongChecksumEntry, error) {
	msg, err := s.recv(ctx)
	if err != nil {
		return nil, err
	}
	sc, ok := msg.(*protocol.StrongChecksumsMsg)
	if !ok {
		return nil, errors.Errorf("expected StrongChecksums, got %T", msg)
	}
	return sc.Entries, nil
}

func (s *Source) recv(ctx context.Context) (protocol.Message, error) {
	select {
	case msg, ok := <-s.conn.Inbound:
		if !ok {
			return nil, protocol.ErrUnexpectedEOF
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// selectCandidates walks the source file's rolling weak checksums, probing
// the index at every offset, and collects the ascending, deduplicated
// source offsets with a non-empty candidate list.
func selectCandidates(rolling []uint32, index *matchindex.MatchIndex) []int {
	var offsets []int
	for o, w := range rolling {
		if len(index.Probe(w)) > 0 {
			offsets = append(offsets, o)
		}
	}
	return offsets
}

// updaterOffsetsToHash resolves each source candidate offset's rolling weak
// checksum back through the index to the updater byte offsets that share
// it: the strong-hash request names updater offsets, never the source's
// own. Deduplicated and sorted ascending.
func updaterOffsetsToHash(rolling []uint32, candidateOffsets []int, index *matchindex.MatchIndex) []int {
	seen := make(map[int]struct{})
	var offsets []int
	for _, o := range candidateOffsets {
		for _, u := range index.Probe(rolling[o]) {
			if _, ok := seen[u]; !ok {
				seen[u] = struct{}{}
				offsets = append(offsets, u)
			}
		}
	}
	sort.Ints(offsets)
	return offsets
}

// verify recomputes the strong hash of each source candidate offset's
// block and compares it against the updater's reported strong hashes,
// restricted to the updater offsets the index already identified as
// weak-checksum candidates for that source offset. A source offset matches
// at most one updater offset: the first one found, in ascending
// updater-offset order.
func (s *Source) verify(sourceData []byte, rolling []uint32, candidateOffsets []int, index *matchindex.MatchIndex, entries []protocol.StrongChecksumEntry) []instruction.Match {
	hasher := strongchecksum.New(s.cfg)

	byUpdaterOffset := make(map[int]strongchecksum.StrongHash, len(entries))
	for _, e := range entries {
		byUpdaterOffset[e.Offset] = e.Hash
	}

	var matches []instruction.Match
	for _, o := range candidateOffsets {
		blockEnd := o + s.cfg.BlockSize
		if blockEnd > len(sourceData) {
			blockEnd = len(sourceData)
		}
		sourceHash := hasher.Hash(sourceData[o:blockEnd])

		// Compile appends block offsets in ascending order, so the
		// candidate list is already sorted.
		for _, u := range index.Probe(rolling[o]) {
			updaterHash, ok := byUpdaterOffset[u]
			if ok && sourceHash.Equal(updaterHash) {
				matches = append(matches, instruction.Match{UpdaterOffset: u, SourceOffset: o})
				break
			}
		}
	}
	return matches
}
