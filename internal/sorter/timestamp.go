package sorter

import (
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/elviscruz45/api-facturas-transmind/constants"
	"github.com/elviscruz45/api-facturas-transmind/internal/entity"
)

// WhatsApp export filename patterns: <PREFIX>-YYYYMMDD-WA####.
// The 4-digit counter encodes intra-day ordering, not time of day.
var whatsappPatterns = func() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(constants.WhatsAppPrefixes))
	for _, prefix := range constants.WhatsAppPrefixes {
		patterns = append(patterns, regexp.MustCompile(prefix+`-(\d{8})-WA(\d{4})`))
	}
	return patterns
}()

const maxMicrosecondOffset = 999_999

// ParseWhatsAppTimestamp extracts the naming-convention timestamp from
// a filename. The WA counter maps to a fractional-second offset
// (seq*1000 microseconds, capped) so files sharing one export day keep
// a stable intra-day order. An invalid calendar date is a non-match,
// never an error.
func ParseWhatsAppTimestamp(filename string, log *slog.Logger) (time.Time, bool) {
	for _, pat := range whatsappPatterns {
		m := pat.FindStringSubmatch(filename)
		if m == nil {
			continue
		}
		dateStr, seqStr := m[1], m[2]

		year, _ := strconv.Atoi(dateStr[:4])
		month, _ := strconv.Atoi(dateStr[4:6])
		day, _ := strconv.Atoi(dateStr[6:8])
		if !validCalendarDate(year, month, day) {
			log.Warn("sorter.invalid_whatsapp_date",
				"filename", filename,
				"date_str", dateStr,
			)
			continue
		}

		seq, _ := strconv.Atoi(seqStr)
		micros := seq * 1000
		if micros > maxMicrosecondOffset {
			micros = maxMicrosecondOffset
		}

		ts := time.Date(year, time.Month(month), day, 0, 0, 0, micros*1000, time.UTC)
		log.Debug("sorter.whatsapp_timestamp_found",
			"filename", filename,
			"parsed_timestamp", ts.Format(time.RFC3339Nano),
		)
		return ts, true
	}
	return time.Time{}, false
}

func validCalendarDate(year, month, day int) bool {
	if year < 1 || month < 1 || month > 12 || day < 1 {
		return false
	}
	// time.Date normalizes out-of-range days; reject normalization.
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}

// ResolveTimestamp infers the best-effort chronological timestamp for
// one file, in priority order: naming convention, filesystem metadata
// (the earlier of the archive-member time and on-disk mtime), current
// wall-clock time as a degraded last resort.
func ResolveTimestamp(filename, filePath string, archiveMTime time.Time, log *slog.Logger) (time.Time, entity.TimestampSource) {
	if ts, ok := ParseWhatsAppTimestamp(filename, log); ok {
		return ts, entity.SourceWhatsAppName
	}

	if ts, ok := filesystemTimestamp(filePath, archiveMTime); ok {
		return ts, entity.SourceFilesystem
	}

	log.Warn("sorter.no_timestamp_found",
		"filename", filename,
		"file_path", filePath,
	)
	return time.Now().UTC(), entity.SourceCurrentTime
}

// filesystemTimestamp returns the earlier of the archive-member
// modified time and the on-disk mtime. Extraction can reset the mtime
// to "now"; the member time survives that.
func filesystemTimestamp(filePath string, archiveMTime time.Time) (time.Time, bool) {
	st, err := os.Stat(filePath)
	if err != nil {
		if !archiveMTime.IsZero() {
			return archiveMTime, true
		}
		return time.Time{}, false
	}
	mtime := st.ModTime()
	if !archiveMTime.IsZero() && archiveMTime.Before(mtime) {
		return archiveMTime, true
	}
	return mtime, true
}
