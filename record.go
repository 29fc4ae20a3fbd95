package nobg

import (
	"errors"
	"fmt"
	"image"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidInput is returned when a source path is empty or does not refer
// to an existing local file.
var ErrInvalidInput = errors.New("invalid input")

// OutputSuffix is appended to the base name of every exported file.
const OutputSuffix = "_nobg"

// Status of a Record.
type Status int

// Record statuses.
const (
	Pending Status = iota
	Processed
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Processed:
		return "processed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Record tracks a single image from intake through processing to export.
// Record is not safe for concurrent use; it is owned by whoever consumes
// processor events.
type Record struct {
	id          uuid.UUID
	sourcePath  string
	displayName string

	status    Status
	processed image.Image
	errmsg    string
}

// NewRecord returns a pending Record for path. Plain paths and file:// URIs
// are accepted, the file must exist and must not be a directory.
func NewRecord(path string) (*Record, error) {
	local, err := resolveLocal(path)
	if err != nil {
		return nil, err
	}

	return &Record{
		id:          uuid.New(),
		sourcePath:  local,
		displayName: filepath.Base(local),
	}, nil
}

func resolveLocal(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidInput)
	}

	if strings.Contains(path, "://") {
		u, err := url.Parse(path)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrInvalidInput, path, err)
		}
		if u.Scheme != "file" {
			return "", fmt.Errorf("%w: %s: scheme %q is not local", ErrInvalidInput, path, u.Scheme)
		}
		path = filepath.FromSlash(u.Path)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if fi.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrInvalidInput, path)
	}
	return path, nil
}

// ID returns unique record identifier.
func (r *Record) ID() uuid.UUID { return r.id }

// SourcePath returns the local path the record was created from.
func (r *Record) SourcePath() string { return r.sourcePath }

// DisplayName returns base name of the source file.
func (r *Record) DisplayName() string { return r.displayName }

// Status returns current record status.
func (r *Record) Status() Status { return r.status }

// Image returns processed image or nil if the record is not Processed.
func (r *Record) Image() image.Image { return r.processed }

// Error returns failure message, empty unless the record is Failed.
func (r *Record) Error() string { return r.errmsg }

// MarkProcessed stores the processed image. The image content is not
// validated, a zero-size image is kept as-is.
func (r *Record) MarkProcessed(img image.Image) {
	if img == nil {
		img = image.NewNRGBA(image.Rectangle{})
	}
	r.processed = img
	r.errmsg = ""
	r.status = Processed
}

// MarkFailed stores the failure message.
func (r *Record) MarkFailed(msg string) {
	if msg == "" {
		msg = "unknown error"
	}
	r.errmsg = msg
	r.processed = nil
	r.status = Failed
}

// OutputFilename returns the export file name: display name without its
// final extension, followed by OutputSuffix and ".png".
func (r *Record) OutputFilename() string {
	return OutputFilename(r.displayName)
}

// OutputFilename derives export file name from a display name.
func OutputFilename(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + OutputSuffix + ".png"
}
