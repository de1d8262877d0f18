package formdata

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensionGate_Default(t *testing.T) {
	gate := NewExtensionGate(Whitelist{}, nil)

	assert.NoError(t, gate.Check("f", true, "photo.JPG"))
	assert.NoError(t, gate.Check("f", true, "bundle.tar.gz"))

	err := gate.Check("f", true, "run.exe")
	var ext *ExtensionError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "Invalid filename: run.exe", err.Error())
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))

	assert.Error(t, gate.Check("f", true, "Makefile"), "no extension is rejected by default")
}

func TestExtensionGate_FileExtensions(t *testing.T) {
	gate := NewExtensionGate(Whitelist{}, []string{"txt", ".CSV", ""})

	assert.NoError(t, gate.Check("f", true, "notes.txt"))
	assert.NoError(t, gate.Check("f", true, "data.csv"))
	assert.NoError(t, gate.Check("f", true, "Makefile"))
	assert.NoError(t, gate.Check("f", true, "logo.png"), "defaults are kept")
}

func TestExtensionGate_ExplicitList(t *testing.T) {
	gate := NewExtensionGate(AllowExtensions(".PDF"), []string{".txt"})

	assert.NoError(t, gate.Check("f", true, "report.pdf"))
	assert.Error(t, gate.Check("f", true, "notes.txt"), "fileExtensions ignored with an explicit whitelist")
	assert.Error(t, gate.Check("f", true, "logo.png"), "defaults ignored with an explicit whitelist")
}

func TestExtensionGate_Func(t *testing.T) {
	boom := errors.New("lookup failed")
	gate := NewExtensionGate(AllowFunc(func(name string) (bool, error) {
		switch name {
		case "ok.bin":
			return true, nil
		case "broken.bin":
			return false, boom
		}
		return false, nil
	}), nil)

	assert.NoError(t, gate.Check("f", true, "ok.bin"))
	assert.Error(t, gate.Check("f", true, "nope.bin"))

	err := gate.Check("f", true, "broken.bin")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
}

func TestExtensionGate_SkipsPartsWithoutFile(t *testing.T) {
	gate := NewExtensionGate(AllowExtensions(), nil)

	assert.NoError(t, gate.Check("f", false, "run.exe"))
	assert.NoError(t, gate.Check("f", true, ""))
}
