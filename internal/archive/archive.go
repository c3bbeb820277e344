// Package archive stores uploaded audio clips on disk without ever
// overwriting an existing recording.
package archive

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/MadBale/Mewsage-project/internal/errors"
	"github.com/MadBale/Mewsage-project/internal/logging"
)

// safeFilenamePattern defines the acceptable characters for archived
// filenames. Parentheses and spaces appear in collision suffixes.
var safeFilenamePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-. ()]+$`)

// maxSuffixAttempts bounds the collision retry loop.
const maxSuffixAttempts = 10000

// Archive writes clips into a single flat directory.
type Archive struct {
	dir    string
	logger *slog.Logger
}

// New creates the archive directory if needed.
func New(dir string) (*Archive, error) {
	if dir == "" {
		return nil, errors.Newf("archive directory is not configured").
			Component("archive").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("archive").
			Category(errors.CategoryFileIO).
			Context("path", dir).
			Build()
	}
	return &Archive{dir: dir, logger: logging.ForService("archive")}, nil
}

// Dir returns the archive directory.
func (a *Archive) Dir() string {
	return a.dir
}

// Store writes data under a sanitized version of originalName and returns
// the filename actually used. When the name is taken, a " (N)" suffix is
// inserted before the extension, counting up until a free slot is found.
// Creation uses O_EXCL so two concurrent stores of the same name can never
// share a file.
func (a *Archive) Store(originalName string, data []byte) (string, error) {
	name, err := sanitizeName(originalName)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for n := 0; n < maxSuffixAttempts; n++ {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
		}

		f, err := os.OpenFile(filepath.Join(a.dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return "", errors.New(err).
				Component("archive").
				Category(errors.CategoryFileIO).
				Context("filename", candidate).
				Build()
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", errors.New(err).
				Component("archive").
				Category(errors.CategoryFileIO).
				Context("filename", candidate).
				Build()
		}
		if err := f.Close(); err != nil {
			return "", errors.New(err).
				Component("archive").
				Category(errors.CategoryFileIO).
				Context("filename", candidate).
				Build()
		}

		a.logger.Debug("clip archived", "filename", candidate, "bytes", len(data))
		return candidate, nil
	}

	return "", errors.Newf("could not find a free filename for %s after %d attempts", name, maxSuffixAttempts).
		Component("archive").
		Category(errors.CategoryFileIO).
		Build()
}

// Resolve validates a client-supplied filename and returns the absolute
// path inside the archive, or a validation error for anything that would
// escape the directory.
func (a *Archive) Resolve(filename string) (string, error) {
	if filename == "" {
		return "", errors.Newf("empty filename").
			Component("archive").
			Category(errors.CategoryValidation).
			Build()
	}
	if !safeFilenamePattern.MatchString(filename) {
		return "", errors.Newf("invalid filename characters").
			Component("archive").
			Category(errors.CategoryValidation).
			Context("filename", filename).
			Build()
	}

	filename = filepath.Base(filename)
	fullPath := filepath.Join(a.dir, filename)

	absDir, err := filepath.Abs(a.dir)
	if err != nil {
		return "", errors.New(err).
			Component("archive").
			Category(errors.CategoryFileIO).
			Build()
	}
	absFull, err := filepath.Abs(fullPath)
	if err != nil {
		return "", errors.New(err).
			Component("archive").
			Category(errors.CategoryFileIO).
			Build()
	}
	if !strings.HasPrefix(absFull, absDir+string(os.PathSeparator)) {
		return "", errors.Newf("path traversal attempt detected").
			Component("archive").
			Category(errors.CategoryValidation).
			Context("filename", filename).
			Build()
	}

	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return "", errors.Newf("clip %s not found", filename).
				Component("archive").
				Category(errors.CategoryNotFound).
				Context("filename", filename).
				Build()
		}
		return "", errors.New(err).
			Component("archive").
			Category(errors.CategoryFileIO).
			Context("filename", filename).
			Build()
	}

	return fullPath, nil
}

func sanitizeName(originalName string) (string, error) {
	name := filepath.Base(strings.TrimSpace(originalName))
	if name == "" || name == "." || name == ".." || name == string(os.PathSeparator) {
		return "", errors.Newf("unusable filename %q", originalName).
			Component("archive").
			Category(errors.CategoryValidation).
			Build()
	}
	if !safeFilenamePattern.MatchString(name) {
		return "", errors.Newf("invalid filename characters in %q", originalName).
			Component("archive").
			Category(errors.CategoryValidation).
			Build()
	}
	return name, nil
}
