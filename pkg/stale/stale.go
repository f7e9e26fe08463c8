// Package stale compares the file checksums recorded on memories
// against the live files they reference. It is a read-side diagnostic:
// ranking never consults it and Check never mutates anything.
package stale

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/recall/pkg/memory"
)

// Detector resolves related-file paths relative to Root and hashes
// them. An empty Root leaves paths as stored.
type Detector struct {
	Root string
}

// New returns a detector rooted at the given directory.
func New(root string) *Detector {
	return &Detector{Root: root}
}

// FileStatus describes one checked file of a stale memory.
type FileStatus struct {
	Path       string `json:"path"`
	StoredHash string `json:"stored_hash,omitempty"`
	LiveHash   string `json:"live_hash,omitempty"`
	Missing    bool   `json:"missing_checksum,omitempty"`
}

// StaleMemory identifies a memory whose referenced files drifted.
type StaleMemory struct {
	ID       string       `json:"id"`
	Category string       `json:"category"`
	Files    []FileStatus `json:"files"`
}

// Report summarizes one staleness pass.
type Report struct {
	Stale          []StaleMemory `json:"stale"`
	TotalChecked   int           `json:"total_checked"`
	TotalWithFiles int           `json:"total_with_files"`
	TotalStale     int           `json:"total_stale"`
}

// Check hashes every referenced file of every active memory and
// reports the ones that drifted. A memory is stale when any checked
// file's live hash differs from its stored hash, or when a referenced
// file has no stored hash at all: legacy records without checksums
// stay stale until explicitly re-synced. Unreadable files are skipped
// and count as evidence for neither side.
func (detector *Detector) Check(memories []memory.Memory) Report {
	report := Report{Stale: []StaleMemory{}}

	for _, m := range memories {
		if !m.Active() {
			continue
		}

		report.TotalChecked++

		if len(m.RelatedFiles) == 0 {
			continue
		}

		report.TotalWithFiles++

		var drifted []FileStatus

		for _, path := range m.RelatedFiles {
			stored, hasStored := m.FileChecksums[path]

			if !hasStored {
				drifted = append(drifted, FileStatus{Path: path, Missing: true})
				continue
			}

			live, err := detector.hashFile(path)

			if err != nil {
				// Unreadable files are skipped, not treated as drift.
				log.Debug("skipping unreadable file", "path", path, "error", err)
				continue
			}

			if live != stored {
				drifted = append(drifted, FileStatus{
					Path:       path,
					StoredHash: stored,
					LiveHash:   live,
				})
			}
		}

		if len(drifted) > 0 {
			report.TotalStale++
			report.Stale = append(report.Stale, StaleMemory{
				ID:       m.ID,
				Category: m.Category,
				Files:    drifted,
			})
		}
	}

	return report
}

// Checksums hashes the given files and returns path → hex digest.
// Unreadable files are left out of the map.
func (detector *Detector) Checksums(paths []string) map[string]string {
	if len(paths) == 0 {
		return nil
	}

	sums := make(map[string]string, len(paths))

	for _, path := range paths {
		sum, err := detector.hashFile(path)

		if err != nil {
			log.Debug("skipping unreadable file", "path", path, "error", err)
			continue
		}

		sums[path] = sum
	}

	return sums
}

// Refresh re-syncs a memory's stored checksums with the live files so
// it is no longer reported stale.
func (detector *Detector) Refresh(m *memory.Memory) {
	m.FileChecksums = detector.Checksums(m.RelatedFiles)
}

func (detector *Detector) hashFile(path string) (string, error) {
	if detector.Root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(detector.Root, path)
	}

	f, err := os.Open(path)

	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()

	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
