// Package matchindex implements the three-level lookup the source session
// uses to find candidate updater blocks for a rolling weak checksum:
// 16-bit bucket -> 32-bit weak checksum -> ordered block offsets. Compile
// builds the nested map from the updater's non-overlapping weak checksums;
// Probe answers per-checksum candidate queries.
package matchindex

import "github.com/aalekhpatel07/syncr/config"

// BucketHash derives the 16-bit bucket used to short-circuit the common
// no-match path before the more expensive 32-bit weak-checksum lookup.
func BucketHash(v uint32) uint16 {
	return uint16((v >> 16) ^ ((v & 0xFFFF) * 62171))
}

// MatchIndex is derived state, owned by the source session for the
// duration of one exchange: a mapping from bucket to weak checksum to the
// ordered list of updater byte offsets sharing that checksum.
type MatchIndex struct {
	cfg     config.ChecksumConfig
	buckets map[uint16]map[uint32][]int
}

// New returns an empty MatchIndex for the given configuration.
func New(cfg config.ChecksumConfig) *MatchIndex {
	return &MatchIndex{cfg: cfg, buckets: make(map[uint16]map[uint32][]int)}
}

// Compile populates the index from the updater's sequence of non-overlapping
// weak checksums, one per block. Block i's byte offset is i*BlockSize.
func (m *MatchIndex) Compile(weak []uint32) {
	for i, w := range weak {
		offset := i * m.cfg.BlockSize
		bucket := BucketHash(w)
		weakMap, ok := m.buckets[bucket]
		if !ok {
			weakMap = make(map[uint32][]int)
			m.buckets[bucket] = weakMap
		}
		weakMap[w] = append(weakMap[w], offset)
	}
}

// Probe returns the candidate updater byte offsets sharing weak checksum w,
// or nil if none. It checks the bucket first and short-circuits on a miss,
// keeping the common no-match path to a single hash lookup.
func (m *MatchIndex) Probe(w uint32) []int {
	weakMap, ok := m.buckets[BucketHash(w)]
	if !ok {
		return nil
	}
	return weakMap[w]
}
