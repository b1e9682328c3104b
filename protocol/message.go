// Package protocol defines the wire messages exchanged between a source
// and an updater session, and the framed duplex transport that carries
// them: length-prefixed frames, each holding one msgpack-encoded tagged
// message.
package protocol

import (
	"github.com/aalekhpatel07/syncr/instruction"
	"github.com/aalekhpatel07/syncr/strongchecksum"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Tag discriminates the wire message variants.
type Tag uint8

const (
	TagFileName Tag = iota
	TagWeakChecksums
	TagStrongChecksumRequest
	TagStrongChecksums
	TagMatches
	TagInstructions
)

// Message is anything that can travel over a Connection.
type Message interface {
	Tag() Tag
}

// FileNameMsg carries the path the source should read as its authoritative
// copy of the file being synchronized, as named by the updater.
// Sent Updater -> Source.
type FileNameMsg struct {
	Path string
}

func (FileNameMsg) Tag() Tag { return TagFileName }

// WeakChecksumsMsg carries the updater's non-overlapping weak checksums, one
// per block. Sent Updater -> Source.
type WeakChecksumsMsg struct {
	Checksums []uint32
}

func (WeakChecksumsMsg) Tag() Tag { return TagWeakChecksums }

// StrongChecksumRequestMsg carries the updater byte offsets the source
// wants strong-hashed: the source resolves its weak-checksum candidates
// back to updater block offsets and asks for those, never for its own
// offsets. Sent Source -> Updater.
type StrongChecksumRequestMsg struct {
	Offsets []int
}

func (StrongChecksumRequestMsg) Tag() Tag { return TagStrongChecksumRequest }

// StrongChecksumEntry pairs an updater offset with the strong hash of the
// block starting there.
type StrongChecksumEntry struct {
	Offset int
	Hash   strongchecksum.StrongHash
}

// StrongChecksumsMsg answers a StrongChecksumRequestMsg. Sent
// Updater -> Source.
type StrongChecksumsMsg struct {
	Entries []StrongChecksumEntry
}

func (StrongChecksumsMsg) Tag() Tag { return TagStrongChecksums }

// MatchPair is a confirmed (updater offset, source offset) pair.
type MatchPair struct {
	UpdaterOffset int
	SourceOffset  int
}

// MatchesMsg carries the confirmed match pairs computed by the source. Sent
// Source -> Updater.
type MatchesMsg struct {
	Pairs []MatchPair
}

func (MatchesMsg) Tag() Tag { return TagMatches }

// InstructionsMsg carries the reconstruction program synthesized by the
// source. The source, not the updater, performs synthesis: only the source
// holds the literal source-file bytes that NewData instructions require, so
// MatchesMsg alone can't be turned into instructions on the updater side.
// Sent Source -> Updater, immediately after MatchesMsg.
type InstructionsMsg struct {
	Instructions []instruction.Wire
}

func (InstructionsMsg) Tag() Tag { return TagInstructions }

// envelope is the on-wire shape: a tag plus the msgpack-encoded payload, so
// Decode can dispatch on the tag before parsing the payload's concrete
// shape.
type envelope struct {
	Tag     Tag
	Payload msgpack.RawMessage
}

// Encode serializes a Message to its msgpack payload, ready to be framed by
// a Connection.
func Encode(m Message) ([]byte, error) {
	payload, err := msgpack.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "encoding message payload")
	}
	return msgpack.Marshal(envelope{Tag: m.Tag(), Payload: payload})
}

// Decode deserializes a framed payload into a concrete Message.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "decoding message envelope")
	}

	var m Message
	switch env.Tag {
	case TagFileName:
		m = &FileNameMsg{}
	case TagWeakChecksums:
		m = &WeakChecksumsMsg{}
	case TagStrongChecksumRequest:
		m = &StrongChecksumRequestMsg{}
	case TagStrongChecksums:
		m = &StrongChecksumsMsg{}
	case TagMatches:
		m = &MatchesMsg{}
	case TagInstructions:
		m = &InstructionsMsg{}
	default:
		return nil, errors.Errorf("unknown message tag %d", env.Tag)
	}

	if err := msgpack.Unmarshal(env.Payload, m); err != nil {
		return nil, errors.Wrap(err, "decoding message payload")
	}
	return m, nil
}

