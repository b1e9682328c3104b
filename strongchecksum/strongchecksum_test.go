package strongchecksum

import (
	"testing"

	"github.com/aalekhpatel07/syncr/config"
	sha256simd "github.com/minio/sha256-simd"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/md4"
)

func TestEmptyBufferProducesNoChecksums(t *testing.T) {
	h := New(config.Default())
	require.Empty(t, h.Rolling(nil))
	require.Empty(t, h.NonOverlapping(nil))
}

func TestRollingOnlyEmitsFullBlocks(t *testing.T) {
	cfg := config.ChecksumConfig{BlockSize: 4, Modulus: config.DefaultModulus}
	h := New(cfg)

	require.Empty(t, h.Rolling([]byte("ab")))

	data := []byte("abcdefg") // length 7, block size 4: windows at 0..3 and nothing past offset 3
	rolling := h.Rolling(data)
	require.Len(t, rolling, len(data)-cfg.BlockSize+1)
}

func TestNonOverlappingIncludesPartialTail(t *testing.T) {
	cfg := config.ChecksumConfig{BlockSize: 4, Modulus: config.DefaultModulus}
	h := New(cfg)

	data := []byte("abcdefg") // 4 + 3
	checksums := h.NonOverlapping(data)
	require.Len(t, checksums, 2)
	require.Equal(t, h.Hash(data[0:4]), checksums[0])
	require.Equal(t, h.Hash(data[4:7]), checksums[1])
}

func TestDefaultHashIsMD4(t *testing.T) {
	h := New(config.Default())
	block := []byte("the quick brown fox")

	got := h.Hash(block)

	ref := md4.New()
	ref.Write(block)
	want := ref.Sum(nil)

	require.Equal(t, want, got[:])
}

func benchmarkNonOverlapping(b *testing.B, hasher *Hasher, data []byte) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hasher.NonOverlapping(data)
	}
}

func BenchmarkHashMD4(b *testing.B) {
	cfg := config.ChecksumConfig{BlockSize: 4096, Modulus: config.DefaultModulus}
	data := make([]byte, 1<<20)
	benchmarkNonOverlapping(b, New(cfg), data)
}

// BenchmarkHashSHA256Simd measures the debug-only sha256simd path
// (cmd/syncr-debug's --strong-hash flag) against the same workload, purely
// for comparison: it is never valid on the wire, since both session peers
// must agree on MD4.
func BenchmarkHashSHA256Simd(b *testing.B) {
	cfg := config.ChecksumConfig{BlockSize: 4096, Modulus: config.DefaultModulus}
	data := make([]byte, 1<<20)
	benchmarkNonOverlapping(b, New(cfg).WithHash(sha256simd.New), data)
}
