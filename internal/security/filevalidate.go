package security

import (
	"path/filepath"
	"strings"

	"github.com/hanmaum-labs/voicekiosk/pkg/wav"
)

// maxFilenameLength bounds upload filenames.
const maxFilenameLength = 255

// traversalChars must not appear anywhere in an uploaded filename.
var traversalChars = []string{"..", "/", "\\", ":", "*", "?", "\"", "<", ">", "|"}

// FileValidator checks uploaded audio files by name, size and content.
type FileValidator struct {
	maxSize     int64
	allowedExts map[string]bool
}

// NewFileValidator accepts files up to maxSize bytes whose extension is in
// allowedExts (e.g., ".wav").
func NewFileValidator(maxSize int64, allowedExts []string) *FileValidator {
	exts := make(map[string]bool, len(allowedExts))
	for _, e := range allowedExts {
		exts[strings.ToLower(e)] = true
	}
	return &FileValidator{maxSize: maxSize, allowedExts: exts}
}

// MaxSize returns the size bound in bytes.
func (v *FileValidator) MaxSize() int64 { return v.maxSize }

// AllowedExtensions returns the accepted extensions, for introspection
// endpoints.
func (v *FileValidator) AllowedExtensions() []string {
	out := make([]string, 0, len(v.allowedExts))
	for e := range v.allowedExts {
		out = append(out, e)
	}
	return out
}

// Validate runs all checks and returns per-field failures keyed "filename",
// "extension", "size" and "content". An empty map means the upload passed.
// head must contain at least the file's first 12 bytes.
func (v *FileValidator) Validate(filename string, size int64, head []byte) map[string]string {
	errs := make(map[string]string)

	if filename == "" {
		errs["filename"] = "filename is required"
	} else {
		if len(filename) > maxFilenameLength {
			errs["filename"] = "filename too long"
		}
		for _, c := range traversalChars {
			if strings.Contains(filename, c) {
				errs["filename"] = "filename contains forbidden characters"
				break
			}
		}
		if _, bad := errs["filename"]; !bad {
			ext := strings.ToLower(filepath.Ext(filename))
			if !v.allowedExts[ext] {
				errs["extension"] = "file extension not allowed"
			}
		}
	}

	switch {
	case size == 0:
		errs["size"] = "file is empty"
	case size > v.maxSize:
		errs["size"] = "file exceeds the size limit"
	}

	if len(errs) == 0 && !wav.IsWAV(head) {
		errs["content"] = "file is not a valid WAV audio file"
	}
	return errs
}
