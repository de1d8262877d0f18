package formdata

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStream_WithinLimit(t *testing.T) {
	s := newFileStream(strings.NewReader("hello"), 5)
	require.NoError(t, s.prefetch())
	assert.False(t, s.Truncated())

	data, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, int64(5), s.Size())
	assert.True(t, s.Drained())
}

func TestFileStream_PrefetchMarksSmallOverflow(t *testing.T) {
	s := newFileStream(strings.NewReader("hello world"), 5)
	require.NoError(t, s.prefetch())
	assert.True(t, s.Truncated())
}

func TestFileStream_LimitWithoutListener(t *testing.T) {
	content := strings.Repeat("x", readAhead*2)
	s := newFileStream(strings.NewReader(content), readAhead)
	require.NoError(t, s.prefetch())
	assert.False(t, s.Truncated(), "overflow beyond the read-ahead is found while reading")

	data, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Len(t, data, readAhead)
	assert.True(t, s.Truncated())
	assert.True(t, s.Drained())
}

func TestFileStream_ListenerFiresOnce(t *testing.T) {
	limitErr := newLimitError(CodeFileSizeLimit, "Reach fileSize limit")
	content := strings.Repeat("x", readAhead+100)
	s := newFileStream(strings.NewReader(content), readAhead)

	calls := 0
	s.OnLimit(func() {
		calls++
		s.Fail(limitErr)
	})

	data, err := io.ReadAll(s)
	assert.ErrorIs(t, err, limitErr)
	assert.Len(t, data, readAhead)

	_, err = s.Read(make([]byte, 10))
	assert.ErrorIs(t, err, limitErr, "the error is sticky")
	assert.Equal(t, 1, calls)
	assert.Equal(t, limitErr, s.Err())
}

func TestFileStream_ExactlyAtLimit(t *testing.T) {
	content := strings.Repeat("y", readAhead+10)
	s := newFileStream(strings.NewReader(content), int64(len(content)))
	s.OnLimit(func() { t.Fatal("listener must not fire") })

	data, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Len(t, data, len(content))
	assert.False(t, s.Truncated())
}

func TestFileStream_Discard(t *testing.T) {
	s := newFileStream(strings.NewReader(strings.Repeat("z", 100)), 1000)
	require.NoError(t, s.Discard())
	assert.True(t, s.Drained())

	failed := newFileStream(strings.NewReader(strings.Repeat("z", 100)), 1000)
	boom := errors.New("boom")
	failed.Fail(boom)
	assert.ErrorIs(t, failed.Discard(), boom)
	assert.True(t, failed.Drained())
}

type brokenReader struct{ err error }

func (b brokenReader) Read([]byte) (int, error) { return 0, b.err }

func TestFileStream_TransportError(t *testing.T) {
	boom := errors.New("connection reset")
	s := newFileStream(brokenReader{boom}, 1000)

	_, err := io.ReadAll(s)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Discard(), boom)
}
