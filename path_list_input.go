package nobg

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// PathListInput implements interface Inputer and provides image paths from
// a plain text file, one path per line. Blank lines and lines starting
// with '#' are skipped.
type PathListInput struct {
	line        chan string
	log         zerolog.Logger
	linesPassed int
}

// NewPathListInput returns new instance of PathListInput.
func NewPathListInput(l zerolog.Logger) *PathListInput {
	return &PathListInput{
		log:  l.With().Str("component", "inputer").Logger(),
		line: make(chan string),
	}
}

// Start opens an input file in read only mode and starts runner (separate
// goroutine) of line by line reading to chan string. Returns error if could
// not open a file.
func (inp *PathListInput) Start(ctx context.Context, fname string) error {

	file, err := os.Open(fname)
	if err != nil {
		return err
	}

	go func() {
		inp.runner(ctx, file)
		close(inp.line)
		_ = file.Close() // we can ignore file.Close() error because of readonly mode.
	}()
	return nil
}

func (inp *PathListInput) runner(ctx context.Context, file *os.File) {

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		s := strings.TrimSpace(scanner.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}

		if ctx.Err() != nil {
			inp.log.Debug().Int("lines", inp.linesPassed).Msg("reading interrupted")
			return
		}

		// catching ctx.Done() while nobody reads the line chan.
		select {
		case inp.line <- s:
			inp.linesPassed++
		case <-ctx.Done():
			inp.log.Debug().Int("lines", inp.linesPassed).Msg("reading interrupted")
			return
		}
	}

	if err := scanner.Err(); err != nil {
		inp.log.Error().Str("errmsg", err.Error()).Msg("scanner failed")
	}
	inp.log.Debug().Int("lines", inp.linesPassed).Msg("reached EOF")
}

// Next returns chan with paths read from file.
func (inp *PathListInput) Next() <-chan string {
	return inp.line
}
