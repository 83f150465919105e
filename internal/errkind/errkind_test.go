package errkind

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := New(DiscoveryAmbiguity, "found %d files", 2)
	assert.Equal(t, DiscoveryAmbiguity, KindOf(err))
	assert.Equal(t, "discovery ambiguity: found 2 files", err.Error())

	wrapped := errors.Wrap(err, "loading calibration")
	assert.True(t, Is(wrapped, DiscoveryAmbiguity))
	assert.False(t, Is(wrapped, ParseFailure))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, Unknown))
}

func TestWrap(t *testing.T) {
	require.NoError(t, Wrap(nil, ParseFailure, "nothing"))

	cause := errors.New("unexpected EOF")
	err := Wrapf(cause, ParseFailure, "reading %s", "left.txt")
	require.Error(t, err)
	assert.Equal(t, ParseFailure, KindOf(err))
	assert.Equal(t, cause, errors.Cause(err))
	assert.Contains(t, err.Error(), "unexpected EOF")
}

func TestRecoverable(t *testing.T) {
	for _, k := range []Kind{DetectionFailure, CountMismatch, TimingRejection, GeometricRejection} {
		assert.True(t, k.Recoverable(), k.String())
	}
	for _, k := range []Kind{InputEmpty, SizeMismatch, DiscoveryAmbiguity, ParseFailure, NotReady, InvalidInput} {
		assert.False(t, k.Recoverable(), k.String())
	}
	assert.Equal(t, "kind(99)", Kind(99).String())
}
