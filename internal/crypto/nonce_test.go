package crypto

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextGeneralNonce_TimestampPrefix(t *testing.T) {
	fixed := time.UnixMilli(0x1_2345_6789)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	a, err := NextGeneralNonce()
	require.NoError(t, err)
	b, err := NextGeneralNonce()
	require.NoError(t, err)

	assert.Equal(t, uint32(0x2345_6789), binary.BigEndian.Uint32(a[:4]))
	assert.Equal(t, a[:4], b[:4])
	assert.NotEqual(t, a[4:], b[4:], "random tail")
}

func TestChunkNonceGenerator_Monotonic(t *testing.T) {
	const maxChunkID = 5

	g, err := NewChunkNonceGenerator(0, maxChunkID, nil)
	require.NoError(t, err)
	seed := g.Seed()

	var prev int64 = -1
	for i := 0; i <= maxChunkID; i++ {
		isLast := i == maxChunkID
		nonce, err := g.Next(isLast)
		require.NoError(t, err)

		counter := int64(binary.BigEndian.Uint32(nonce[1:5]))
		assert.Greater(t, counter, prev)
		prev = counter

		if isLast {
			assert.Equal(t, byte(1), nonce[0])
		} else {
			assert.Equal(t, byte(0), nonce[0])
		}
		assert.Equal(t, seed[5:], nonce[5:], "seed tail is shared by every chunk")
	}

	_, err = g.Next(false)
	assert.ErrorIs(t, err, ErrNonceExhausted)
}

func TestChunkNonceGenerator_ResumeMatchesFreshRun(t *testing.T) {
	seed := make([]byte, NonceSize)
	for i := range seed {
		seed[i] = byte(100 + i)
	}

	fresh, err := NewChunkNonceGenerator(0, 9, seed)
	require.NoError(t, err)
	var all [][NonceSize]byte
	for i := 0; i <= 9; i++ {
		n, err := fresh.Next(i == 9)
		require.NoError(t, err)
		all = append(all, n)
	}

	resumed, err := NewChunkNonceGenerator(4, 9, seed)
	require.NoError(t, err)
	for i := 4; i <= 9; i++ {
		n, err := resumed.Next(i == 9)
		require.NoError(t, err)
		assert.Equal(t, all[i], n, "chunk %d", i)
	}
}

func TestChunkNonceGenerator_Bounds(t *testing.T) {
	_, err := NewChunkNonceGenerator(3, 2, nil)
	assert.Error(t, err)

	_, err = NewChunkNonceGenerator(0, 2, make([]byte, 5))
	assert.Error(t, err)

	g, err := NewChunkNonceGenerator(0, 1, nil)
	require.NoError(t, err)
	_, err = g.Next(false)
	require.NoError(t, err)
	_, err = g.Next(false)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), g.ChunkID())

	_, err = g.Next(false)
	assert.ErrorIs(t, err, ErrNonceExhausted, "counter past max")
}
