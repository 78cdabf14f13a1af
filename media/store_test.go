package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	s := NewStore()

	h := s.Put([]byte("audio-bytes"), "audio/wav")
	assert.NotEmpty(t, h.ID)
	assert.Equal(t, "/media/"+h.ID, h.URL)
	assert.Equal(t, "audio/wav", h.MIMEType)
	assert.Equal(t, 11, h.Size)

	data, mimeType, err := s.Get(h.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio-bytes"), data)
	assert.Equal(t, "audio/wav", mimeType)
}

func TestGetUnknown(t *testing.T) {
	s := NewStore()

	_, _, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRelease(t *testing.T) {
	s := NewStore()

	h := s.Put([]byte("x"), "audio/mpeg")
	require.Equal(t, 1, s.Len())

	s.Release(h.ID)
	assert.Equal(t, 0, s.Len())

	_, _, err := s.Get(h.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Releasing again is a no-op.
	s.Release(h.ID)
}

func TestHandlesAreUnique(t *testing.T) {
	s := NewStore()

	a := s.Put([]byte("a"), "audio/wav")
	b := s.Put([]byte("b"), "audio/wav")
	assert.NotEqual(t, a.ID, b.ID)
}
