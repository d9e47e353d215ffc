package logging

import (
	"fmt"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGraylogWriter dials a GELF UDP endpoint. The returned writer can be
// combined with the log file through io.MultiWriter before Setup.
func NewGraylogWriter(address string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("dialing graylog at %s: %w", address, err)
	}
	w.Facility = InstrumentationName
	return w, nil
}
