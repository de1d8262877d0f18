package formdata

import (
	"path/filepath"
	"strings"
)

// DefaultWhitelist is the list of extensions accepted when no explicit
// whitelist is configured. FileExtensions are added on top of it.
var DefaultWhitelist = []string{
	// images
	".jpg", ".jpeg",
	".png",
	".gif",
	".bmp",
	".wbmp",
	".webp",
	".tif",
	".psd",
	// text
	".svg",
	".js", ".jsx",
	".json",
	".css", ".less",
	".html", ".htm",
	".xml",
	// archives
	".zip",
	".gz", ".tgz", ".gzip",
	// media
	".mp3",
	".mp4",
	".avi",
}

type whitelistKind int

const (
	whitelistDefault whitelistKind = iota
	whitelistList
	whitelistFunc
)

// Whitelist selects how filenames are accepted. The zero value is the
// default list extended by FileExtensions.
type Whitelist struct {
	kind whitelistKind
	exts []string
	fn   func(filename string) (bool, error)
}

// AllowExtensions accepts exactly the given extensions. FileExtensions
// are ignored.
func AllowExtensions(exts ...string) Whitelist {
	return Whitelist{kind: whitelistList, exts: exts}
}

// AllowFunc delegates the decision to fn. An error from fn rejects the
// file as a client error.
func AllowFunc(fn func(filename string) (bool, error)) Whitelist {
	return Whitelist{kind: whitelistFunc, fn: fn}
}

// IsDefault reports whether w is the zero value.
func (w Whitelist) IsDefault() bool { return w.kind == whitelistDefault }

// ExtensionGate decides whether an uploaded filename may be accepted.
type ExtensionGate struct {
	allow func(filename string) (bool, error)
}

// NewExtensionGate resolves the whitelist configuration once.
func NewExtensionGate(w Whitelist, fileExtensions []string) *ExtensionGate {
	switch w.kind {
	case whitelistFunc:
		return &ExtensionGate{allow: w.fn}
	case whitelistList:
		set := make(map[string]struct{}, len(w.exts))
		for _, ext := range w.exts {
			set[strings.ToLower(ext)] = struct{}{}
		}
		return &ExtensionGate{allow: extensionIn(set)}
	default:
		set := make(map[string]struct{}, len(DefaultWhitelist)+len(fileExtensions))
		for _, ext := range DefaultWhitelist {
			set[ext] = struct{}{}
		}
		for _, ext := range fileExtensions {
			set[normalizeExtension(ext)] = struct{}{}
		}
		return &ExtensionGate{allow: extensionIn(set)}
	}
}

func extensionIn(set map[string]struct{}) func(string) (bool, error) {
	return func(filename string) (bool, error) {
		_, ok := set[strings.ToLower(filepath.Ext(filename))]
		return ok, nil
	}
}

// normalizeExtension lowercases ext and adds the leading dot. The empty
// extension is kept so files without one can be allowed.
func normalizeExtension(ext string) string {
	ext = strings.ToLower(ext)
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

// Check implements CheckFileFunc. Parts without a stream or filename pass;
// empty file inputs are dropped by the session.
func (g *ExtensionGate) Check(_ string, hasStream bool, filename string) error {
	if !hasStream || filename == "" {
		return nil
	}
	ok, err := g.allow(filename)
	if err != nil {
		return &ExtensionError{Filename: filename, Err: err}
	}
	if !ok {
		return &ExtensionError{Filename: filename}
	}
	return nil
}
