// Package strongchecksum implements the cryptographic block checksum that
// confirms weak-match candidates: a 128-bit digest of a block, MD4 by
// default per the historical rsync choice, with the underlying hash.Hash
// constructor left pluggable for debugging and benchmarks.
package strongchecksum

import (
	"hash"

	"github.com/aalekhpatel07/syncr/config"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/md4"
)

// StrongHash is a 128-bit strong checksum, stored as the raw digest bytes.
// Equality is byte-wise, which is equivalent to comparing the digests read
// as little-endian 128-bit integers; no integer form is computed, and
// formatting it (e.g. with %x) shows the bytes in digest order.
type StrongHash [16]byte

// Equal reports whether two strong hashes are identical.
func (s StrongHash) Equal(o StrongHash) bool {
	return s == o
}

// MarshalMsgpack encodes a StrongHash as its raw 16 bytes, rather than as
// an array of 16 integers, keeping it compact on the wire.
func (s StrongHash) MarshalMsgpack() ([]byte, error) {
	return msgpack.Marshal(s[:])
}

// UnmarshalMsgpack decodes a StrongHash from its raw byte encoding.
func (s *StrongHash) UnmarshalMsgpack(b []byte) error {
	var raw []byte
	if err := msgpack.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != len(s) {
		return errors.Errorf("strong hash: expected %d bytes, got %d", len(s), len(raw))
	}
	copy(s[:], raw)
	return nil
}

// Hasher computes strong checksums over byte blocks using a configurable
// underlying hash.Hash constructor.
type Hasher struct {
	newHash func() hash.Hash
	cfg     config.ChecksumConfig
}

// New returns a Hasher defaulting to MD4, the canonical strong hash for
// this protocol. Substituting a different hash breaks wire compatibility.
func New(cfg config.ChecksumConfig) *Hasher {
	return &Hasher{newHash: md4.New, cfg: cfg}
}

// WithHash returns a copy of the Hasher using a different underlying hash
// constructor. Intended for the debug CLI and benchmarks only: both peers
// of a real session MUST use the same strong hash, and that hash MUST be
// MD4 for wire compatibility.
func (h *Hasher) WithHash(newHash func() hash.Hash) *Hasher {
	return &Hasher{newHash: newHash, cfg: h.cfg}
}

// Hash computes the strong checksum of a single block.
func (h *Hasher) Hash(block []byte) StrongHash {
	digest := h.newHash()
	digest.Write(block)
	sum := digest.Sum(nil)

	var out StrongHash
	copy(out[:], sum)
	return out
}

// Rolling emits one strong checksum per full block-sized window, i.e. one
// per offset k in [0, N-B]. Unlike the weak checksum, it never emits a
// value for a buffer shorter than the block size or for a partial tail:
// the rolling iterator only emits full blocks (partial tails are the
// non-overlapping iterator's responsibility).
func (h *Hasher) Rolling(data []byte) []StrongHash {
	b := h.cfg.BlockSize
	n := len(data)
	if n < b {
		return nil
	}
	result := make([]StrongHash, 0, n-b+1)
	for k := 0; k+b <= n; k++ {
		result = append(result, h.Hash(data[k:k+b]))
	}
	return result
}

// NonOverlapping emits one strong checksum per non-overlapping block, plus
// a final tail covering any remainder shorter than the block size. Matches
// the weak checksum's tail policy.
func (h *Hasher) NonOverlapping(data []byte) []StrongHash {
	n := len(data)
	if n == 0 {
		return nil
	}
	b := h.cfg.BlockSize
	var result []StrongHash
	offset := 0
	for offset+b <= n {
		result = append(result, h.Hash(data[offset:offset+b]))
		offset += b
	}
	if offset < n {
		result = append(result, h.Hash(data[offset:n]))
	}
	return result
}
