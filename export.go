package nobg

import (
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
)

var (
	// ErrEmptyImage is returned when a processed image has zero width or height.
	ErrEmptyImage = errors.New("processed image is empty")

	// ErrNotProcessed is returned when saving a record without a processed image.
	ErrNotProcessed = errors.New("record is not processed")
)

// SaveError describes a single failed export.
type SaveError struct {
	RecordID uuid.UUID
	Path     string
	Err      error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save %s: %s", e.Path, e.Err.Error())
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// Exporter writes processed records as PNG files into a directory. Existing
// files with the same name are replaced. Every file is written to a
// temporary name in the same directory first and renamed into place, so a
// failed save never leaves a truncated file behind.
type Exporter struct {
	log zerolog.Logger
}

// NewExporter returns new Exporter instance.
func NewExporter(l zerolog.Logger) *Exporter {
	return &Exporter{log: l.With().Str("component", "exporter").Logger()}
}

// Save writes every record to dir and returns amount of saved files. A
// failing file does not stop the others; all failures are returned combined
// as *multierror.Error holding *SaveError values. dir must exist, it is not
// created.
func (ex *Exporter) Save(dir string, records []*Record) (int, error) {
	var (
		saved int
		errs  *multierror.Error
	)

	for _, rec := range records {
		dst := filepath.Join(dir, rec.OutputFilename())
		if err := ex.SaveRecord(dst, rec); err != nil {
			ex.log.Error().Str("path", dst).Str("errmsg", err.Error()).Msg("saving failed")
			errs = multierror.Append(errs, &SaveError{RecordID: rec.ID(), Path: dst, Err: err})
			continue
		}
		saved++
		ex.log.Debug().Str("path", dst).Msg("saved")
	}

	return saved, errs.ErrorOrNil()
}

// SaveRecord encodes processed image of rec as PNG into dst.
func (ex *Exporter) SaveRecord(dst string, rec *Record) error {
	img := rec.Image()
	if rec.Status() != Processed || img == nil {
		return ErrNotProcessed
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return ErrEmptyImage
	}

	tmp := filepath.Join(filepath.Dir(dst), "."+ksuid.New().String()+".tmp")
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	if err := png.Encode(file, img); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return err
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
