package matchindex

import (
	"testing"

	"github.com/aalekhpatel07/syncr/config"
	"github.com/aalekhpatel07/syncr/weakchecksum"
	"github.com/stretchr/testify/require"
)

func TestHashIndexRoundTrip(t *testing.T) {
	cfg := config.ChecksumConfig{BlockSize: 8, Modulus: config.DefaultModulus}
	buf := make([]byte, 256)
	for i := range buf {
		buf[i] = byte(i * 7)
	}

	weak := weakchecksum.New(buf, cfg).NonOverlapping()
	idx := New(cfg)
	idx.Compile(weak)

	for i, w := range weak {
		offsets := idx.Probe(w)
		require.Contains(t, offsets, i*cfg.BlockSize)
	}
}

func TestProbeMissShortCircuitsOnBucket(t *testing.T) {
	cfg := config.Default()
	idx := New(cfg)
	idx.Compile([]uint32{42})

	require.Empty(t, idx.Probe(12345))
}
