package formdata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathMatcher(t *testing.T) {
	m, err := NewPathMatcher([]string{
		"/upload",
		"/api/*/files",
		"regexp:^/v[0-9]+/import$",
		"^/legacy",
	}, nil)
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"/upload", true},
		{"/upload/avatar", true},
		{"/uploads", false},
		{"/api/users/files", true},
		{"/api/users/files/1", false},
		{"/v2/import", true},
		{"/v2/import/x", false},
		{"/legacy/form", true},
		{"/other", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodPost, tt.path, nil)
		assert.Equal(t, tt.want, m.Match(r), tt.path)
	}
}

func TestPathMatcher_Func(t *testing.T) {
	m, err := NewPathMatcher(nil, func(r *http.Request) bool {
		return r.Header.Get("X-Save-Files") == "1"
	})
	require.NoError(t, err)
	assert.False(t, m.Empty())

	r := httptest.NewRequest(http.MethodPost, "/anything", nil)
	assert.False(t, m.Match(r))
	r.Header.Set("X-Save-Files", "1")
	assert.True(t, m.Match(r))
}

func TestPathMatcher_Invalid(t *testing.T) {
	_, err := NewPathMatcher([]string{"regexp:("}, nil)
	assert.Error(t, err)

	_, err = NewPathMatcher([]string{"/a/[b"}, nil)
	assert.Error(t, err)

	_, err = NewPathMatcher([]string{""}, nil)
	assert.Error(t, err)

	m, err := NewPathMatcher(nil, nil)
	require.NoError(t, err)
	assert.True(t, m.Empty())
}
