package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/onesync/clonecore/pkg/core"
)

// JournalExport is the root JSON structure of an exported journal.
type JournalExport struct {
	Started         time.Time              `json:"started"`
	Ended           time.Time              `json:"ended"`
	OwnershipChange []core.OwnershipChange `json:"ownershipChanges"`
	PlayerSessions  []core.PlayerSession   `json:"playerSessions"`
	PoolExhaustions []core.PoolExhaustion  `json:"poolExhaustions"`
}

// exportJSON writes the journal to a (optionally gzipped) JSON file.
func (b *Backend) exportJSON() error {
	export := b.buildExport(time.Now())

	filename := fmt.Sprintf("journal_%s.json", b.started.Format("20060102_150405"))
	if b.cfg.Compress {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.ExportDir, filename)

	if err := os.MkdirAll(b.cfg.ExportDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := writeJSON(outputPath, export, b.cfg.Compress); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport(ended time.Time) JournalExport {
	export := JournalExport{
		Started:         b.started,
		Ended:           ended,
		OwnershipChange: b.ownership,
		PlayerSessions:  b.sessions,
		PoolExhaustions: b.exhaustions,
	}
	// empty arrays rather than null for readers
	if export.OwnershipChange == nil {
		export.OwnershipChange = []core.OwnershipChange{}
	}
	if export.PlayerSessions == nil {
		export.PlayerSessions = []core.PlayerSession{}
	}
	if export.PoolExhaustions == nil {
		export.PoolExhaustions = []core.PoolExhaustion{}
	}
	return export
}

func writeJSON(path string, data JournalExport, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	if compress {
		gzWriter := gzip.NewWriter(f)
		defer gzWriter.Close()
		w = gzWriter
	}
	return json.NewEncoder(w).Encode(data)
}
