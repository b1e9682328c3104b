package weakchecksum

import (
	"testing"

	"github.com/aalekhpatel07/syncr/config"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestRollingEqualsExpandedOverEveryWindow(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("rolling[k] equals the closed-form expansion of [k, k+B-1]", prop.ForAll(
		func(buf []byte) bool {
			const blockSize = 10
			cfg := config.ChecksumConfig{BlockSize: blockSize, Modulus: config.DefaultModulus}
			rolling := New(buf, cfg).Rolling()

			n := len(buf)
			if n == 0 {
				return len(rolling) == 0
			}
			if n < blockSize {
				a, b := expanded(buf, 0, n-1, cfg.Modulus)
				return len(rolling) == 1 && rolling[0] == Compose(a, b)
			}
			for k := 0; k <= n-blockSize; k++ {
				a, b := expanded(buf, k, k+blockSize-1, cfg.Modulus)
				if rolling[k] != Compose(a, b) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}

func TestEmptyBufferProducesNoChecksums(t *testing.T) {
	cfg := config.Default()
	w := New(nil, cfg)
	require.Empty(t, w.Rolling())
	require.Empty(t, w.NonOverlapping())
}

func TestShortBufferProducesExactlyOneRollingValue(t *testing.T) {
	cfg := config.ChecksumConfig{BlockSize: 10, Modulus: config.DefaultModulus}
	buf := []byte("short")
	w := New(buf, cfg)
	rolling := w.Rolling()
	require.Len(t, rolling, 1)

	a, b := expanded(buf, 0, len(buf)-1, cfg.Modulus)
	require.Equal(t, Compose(a, b), rolling[0])
}

func TestNonOverlappingTilesTheBuffer(t *testing.T) {
	cfg := config.ChecksumConfig{BlockSize: 7, Modulus: config.DefaultModulus}
	for n := 0; n <= 50; n++ {
		buf := make([]byte, n)
		for i := range buf {
			buf[i] = byte(i)
		}
		checksums := New(buf, cfg).NonOverlapping()
		require.Equal(t, BlockCount(n, cfg.BlockSize), len(checksums))
	}
}

func benchmarkRolling(b *testing.B, blockSize int) {
	buf := make([]byte, 1<<20)
	for i := range buf {
		buf[i] = byte(i)
	}
	cfg := config.ChecksumConfig{BlockSize: blockSize, Modulus: config.DefaultModulus}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		New(buf, cfg).Rolling()
	}
}

func Benchmark1kbBlockSize(b *testing.B)  { benchmarkRolling(b, 1024) }
func Benchmark6kbBlockSize(b *testing.B)  { benchmarkRolling(b, 6*1024) }
func Benchmark64kbBlockSize(b *testing.B) { benchmarkRolling(b, 64*1024) }
