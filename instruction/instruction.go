// Package instruction models the reconstruction directives a source session
// emits once it has confirmed which ranges of its file the updater already
// holds, and provides the match-to-instruction translation plus a reference
// in-memory apply function. Writing the updated file to disk is left to
// callers outside this package (cmd/syncr-update does it).
package instruction

import (
	"sort"

	"github.com/pkg/errors"
)

// Instruction is a reconstruction directive: either literal bytes to place
// in the output, or a back-reference into the updater's local file.
type Instruction interface {
	isInstruction()
}

// NewData carries literal content to place at Offset in the reconstructed
// file.
type NewData struct {
	Offset int
	Length int
	Bytes  []byte
}

func (NewData) isInstruction() {}

// Replicate copies Length bytes from FromOffset in the updater's local file
// to NewOffset in the reconstructed file.
type Replicate struct {
	FromOffset int
	Length     int
	NewOffset  int
}

func (Replicate) isInstruction() {}

// Match is a confirmed pair: an updater offset whose block content equals
// the source's block at SourceOffset.
type Match struct {
	UpdaterOffset int
	SourceOffset  int
}

// Synthesize builds the reconstruction program for the source file from a
// set of confirmed matches: sort by source offset, fill gaps with NewData,
// coalesce matches with Replicate, resolving overlaps by greedy-leftmost
// (pick the first match whose source offset is >= the current cursor, then
// advance the cursor by the block's length).
func Synthesize(matches []Match, sourceData []byte, blockSize int) []Instruction {
	sourceLen := len(sourceData)

	sorted := make([]Match, len(matches))
	copy(sorted, matches)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SourceOffset < sorted[j].SourceOffset
	})

	var result []Instruction
	cursor := 0
	for _, m := range sorted {
		if m.SourceOffset < cursor {
			// Overlaps a match we've already coalesced; greedy-leftmost
			// skips it.
			continue
		}
		if m.SourceOffset > cursor {
			result = append(result, NewData{
				Offset: cursor,
				Length: m.SourceOffset - cursor,
				Bytes:  sourceData[cursor:m.SourceOffset],
			})
		}

		length := blockSize
		if m.SourceOffset+length > sourceLen {
			length = sourceLen - m.SourceOffset
		}
		result = append(result, Replicate{
			FromOffset: m.UpdaterOffset,
			Length:     length,
			NewOffset:  m.SourceOffset,
		})
		cursor = m.SourceOffset + length
	}

	if cursor < sourceLen {
		result = append(result, NewData{
			Offset: cursor,
			Length: sourceLen - cursor,
			Bytes:  sourceData[cursor:sourceLen],
		})
	}

	return result
}

// Apply reconstructs a buffer from instructions and the updater's local
// file bytes, entirely in memory. Tests use it, and so does
// session.Updater.Reconstruct; it does no file I/O, so writing the result
// to disk is the caller's job.
func Apply(instructions []Instruction, updaterData []byte) ([]byte, error) {
	var total int
	for _, ins := range instructions {
		switch v := ins.(type) {
		case NewData:
			if v.Offset+v.Length > total {
				total = v.Offset + v.Length
			}
		case Replicate:
			if v.NewOffset+v.Length > total {
				total = v.NewOffset + v.Length
			}
		}
	}

	out := make([]byte, total)
	for _, ins := range instructions {
		switch v := ins.(type) {
		case NewData:
			if len(v.Bytes) != v.Length {
				return nil, errors.Errorf("NewData at offset %d: length %d does not match %d bytes", v.Offset, v.Length, len(v.Bytes))
			}
			copy(out[v.Offset:v.Offset+v.Length], v.Bytes)
		case Replicate:
			if v.FromOffset+v.Length > len(updaterData) {
				return nil, errors.Errorf("Replicate at %d reads %d bytes past the updater file", v.FromOffset, v.FromOffset+v.Length-len(updaterData))
			}
			copy(out[v.NewOffset:v.NewOffset+v.Length], updaterData[v.FromOffset:v.FromOffset+v.Length])
		}
	}
	return out, nil
}

// Wire is the flattened, tagged-union wire form of an Instruction: one
// struct whose Kind selects which fields are meaningful, so that it can be
// (de)serialized without reflecting through an interface.
type Wire struct {
	Kind WireKind

	// NewData fields.
	Offset int
	Length int
	Bytes  []byte

	// Replicate fields.
	FromOffset int
	NewOffset  int
}

// WireKind discriminates the two Instruction variants on the wire.
type WireKind uint8

const (
	WireKindNewData WireKind = iota
	WireKindReplicate
)

// ToWire converts an Instruction to its wire form.
func ToWire(ins Instruction) Wire {
	switch v := ins.(type) {
	case NewData:
		return Wire{Kind: WireKindNewData, Offset: v.Offset, Length: v.Length, Bytes: v.Bytes}
	case Replicate:
		return Wire{Kind: WireKindReplicate, FromOffset: v.FromOffset, Length: v.Length, NewOffset: v.NewOffset}
	default:
		panic(errors.Errorf("unknown instruction type %T", ins))
	}
}

// FromWire converts a wire-form instruction back to an Instruction.
func (w Wire) FromWire() Instruction {
	switch w.Kind {
	case WireKindNewData:
		return NewData{Offset: w.Offset, Length: w.Length, Bytes: w.Bytes}
	case WireKindReplicate:
		return Replicate{FromOffset: w.FromOffset, Length: w.Length, NewOffset: w.NewOffset}
	default:
		panic(errors.Errorf("unknown wire instruction kind %d", w.Kind))
	}
}

// ToWireSlice converts a slice of Instructions to their wire form.
func ToWireSlice(instructions []Instruction) []Wire {
	out := make([]Wire, len(instructions))
	for i, ins := range instructions {
		out[i] = ToWire(ins)
	}
	return out
}

// FromWireSlice converts a slice of wire-form instructions back.
func FromWireSlice(wire []Wire) []Instruction {
	out := make([]Instruction, len(wire))
	for i, w := range wire {
		out[i] = w.FromWire()
	}
	return out
}
