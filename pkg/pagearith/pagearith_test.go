package pagearith_test

import (
	"testing"

	"github.com/fastqueue/fastqueue/pkg/pagearith"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShift_RejectsNonPowerOfTwo(t *testing.T) {
	_, err := pagearith.NewShift(0)
	require.Error(t, err)

	_, err = pagearith.NewShift(3)
	require.Error(t, err)

	_, err = pagearith.NewShift(100)
	require.Error(t, err)
}

func TestShift_MulDivMod(t *testing.T) {
	s, err := pagearith.NewShift(32 * 1024)
	require.NoError(t, err)

	assert.Equal(t, uint64(32*1024), s.Size())
	assert.Equal(t, uint64(32*1024*5), s.Mul(5))
	assert.Equal(t, uint64(5), s.Div(32*1024*5+100))
	assert.Equal(t, uint64(100), s.Mod(32*1024*5+100))
}

func TestShift_MatchesNativeArithmetic(t *testing.T) {
	const pageSize = uint64(1 << 17)

	s := pagearith.MustNewShift(pageSize)

	for _, v := range []uint64{0, 1, pageSize - 1, pageSize, pageSize + 1, pageSize*3 + 42} {
		assert.Equal(t, v/pageSize, s.Div(v), "div mismatch for %d", v)
		assert.Equal(t, v%pageSize, s.Mod(v), "mod mismatch for %d", v)
	}
}

func TestMustNewShift_PanicsOnInvalidSize(t *testing.T) {
	assert.Panics(t, func() {
		pagearith.MustNewShift(7)
	})
}
