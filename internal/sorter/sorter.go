package sorter

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/elviscruz45/api-facturas-transmind/internal/entity"
)

// Sorter orders extracted files chronologically and assigns dense
// 1-based sequence ids.
type Sorter struct {
	log *slog.Logger
}

func NewSorter(log *slog.Logger) *Sorter {
	if log == nil {
		log = slog.Default()
	}
	return &Sorter{log: log}
}

// Sort resolves a timestamp per descriptor, orders ascending (stable,
// ties broken by input order) and assigns sequence ids by rank.
func (s *Sorter) Sort(descriptors []entity.FileDescriptor) []entity.IndexedFile {
	type resolved struct {
		file   entity.IndexedFile
		ts     time.Time
		source entity.TimestampSource
	}

	items := make([]resolved, 0, len(descriptors))
	for _, d := range descriptors {
		var original *time.Time
		if ts, ok := ParseWhatsAppTimestamp(d.OriginalName, s.log); ok {
			original = &ts
		}

		ts, source := ResolveTimestamp(d.OriginalName, d.ExtractedPath, d.ModifiedTime, s.log)
		items = append(items, resolved{
			file: entity.IndexedFile{
				Filename:          d.OriginalName,
				OriginalTimestamp: original,
				ResolvedTimestamp: ts,
				FilePath:          d.ExtractedPath,
				FileSize:          d.SizeBytes,
			},
			ts:     ts,
			source: source,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ts.Before(items[j].ts)
	})

	out := make([]entity.IndexedFile, 0, len(items))
	for rank, it := range items {
		it.file.SequenceID = rank + 1
		out = append(out, it.file)

		s.log.Info("sorter.sequence_assigned",
			"filename", it.file.Filename,
			"sequence_id", it.file.SequenceID,
			"timestamp_source", string(it.source),
			"resolved_timestamp", it.ts.Format(time.RFC3339Nano),
		)
	}

	if len(out) > 0 {
		s.log.Info("sorter.sorted",
			"total_files", len(out),
			"first_file", out[0].Filename,
			"last_file", out[len(out)-1].Filename,
		)
	}
	return out
}

// ValidateChronologicalOrder checks the post-conditions of Sort.
// A sequence-id violation is an implementation bug and returns an
// error; same-or-decreasing adjacent timestamps are allowed but logged
// because they reduce ordering confidence downstream.
func (s *Sorter) ValidateChronologicalOrder(files []entity.IndexedFile) error {
	for i := 1; i < len(files); i++ {
		prev, cur := files[i-1], files[i]

		if cur.SequenceID != prev.SequenceID+1 {
			return fmt.Errorf("sequence id order violation: %q has %d after %q with %d",
				cur.Filename, cur.SequenceID, prev.Filename, prev.SequenceID)
		}

		if !cur.ResolvedTimestamp.After(prev.ResolvedTimestamp) {
			s.log.Warn("sorter.timestamp_order_inconsistency",
				"current_file", cur.Filename,
				"current_timestamp", cur.ResolvedTimestamp.Format(time.RFC3339Nano),
				"previous_file", prev.Filename,
				"previous_timestamp", prev.ResolvedTimestamp.Format(time.RFC3339Nano),
			)
		}
	}
	if len(files) > 0 && files[0].SequenceID != 1 {
		return fmt.Errorf("sequence ids must start at 1, got %d", files[0].SequenceID)
	}
	return nil
}
