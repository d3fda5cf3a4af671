// Package codec reads and writes the track CSV line format.
//
// Files are written in the four-column layout
//
//	Timestamp,Type,Latitude,Longitude
//	2024-05-01T09:30:12.5,CONTINUOUS,52.52,13.405
//
// and read tolerantly: rows with three columns (the legacy layout without a
// Type column) decode as MANUAL points, the header is recognised by position
// rather than content, and unparseable or torn rows are reported and skipped.
package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/starford/geotracker/internal/models"
)

// Header is the first line of every file created by this package.
const Header = "Timestamp,Type,Latitude,Longitude\n"

// LegacyHeader is the header of three-column files.
const LegacyHeader = "Timestamp,Latitude,Longitude\n"

// MIMEType is the media type of track files.
const MIMEType = "text/csv"

// TimestampLayout is the local ISO-8601 form written to disk.
const TimestampLayout = "2006-01-02T15:04:05.999999999"

// Timestamps are parsed with these layouts in order. A layout without a
// fraction still accepts one when parsing.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.RFC3339Nano,
}

// SkipError describes a line that was not decoded.
type SkipError struct {
	Line   int
	Reason string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("codec: line %d skipped: %s", e.Line, e.Reason)
}

var (
	errFieldCount  = errors.New("expected 3 or 4 fields")
	errCoordinates = errors.New("latitude/longitude not a finite in-range number")
)

// Encode returns the record as one newline-terminated line.
func Encode(r models.PointRecord) []byte {
	return AppendEncoded(nil, r)
}

// AppendEncoded appends the encoded line for r to dst.
func AppendEncoded(dst []byte, r models.PointRecord) []byte {
	dst = r.Timestamp.AppendFormat(dst, TimestampLayout)
	dst = append(dst, ',')
	dst = append(dst, r.Kind...)
	dst = append(dst, ',')
	dst = strconv.AppendFloat(dst, r.Lat, 'f', -1, 64)
	dst = append(dst, ',')
	dst = strconv.AppendFloat(dst, r.Lon, 'f', -1, 64)
	return append(dst, '\n')
}

// Decode parses a single line without its terminator.
//
// Four or more fields are read as timestamp, kind, lat, lon; exactly three as
// timestamp, lat, lon with kind MANUAL. A timestamp that does not parse
// leaves Timestamp zero; only the coordinates decide whether a row is usable.
func Decode(line string) (models.PointRecord, error) {
	fields := strings.Split(line, ",")
	var rec models.PointRecord
	var latField, lonField string
	switch {
	case len(fields) >= 4:
		rec.Kind = models.Kind(strings.TrimSpace(fields[1]))
		latField, lonField = fields[2], fields[3]
	case len(fields) == 3:
		rec.Kind = models.KindManual
		latField, lonField = fields[1], fields[2]
	default:
		return models.PointRecord{}, fmt.Errorf("%w, got %d", errFieldCount, len(fields))
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(latField), 64)
	if err != nil {
		return models.PointRecord{}, errCoordinates
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonField), 64)
	if err != nil {
		return models.PointRecord{}, errCoordinates
	}
	if !models.ValidLatLon(lat, lon) {
		return models.PointRecord{}, errCoordinates
	}
	rec.Lat, rec.Lon = lat, lon
	rec.Timestamp, _ = ParseTimestamp(fields[0])
	return rec, nil
}

// ParseTimestamp parses a local ISO-8601 datetime. Zoned values are
// converted to local time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.In(time.Local), nil
		}
	}
	return time.Time{}, fmt.Errorf("codec: bad timestamp %q", s)
}

// Read decodes r lazily. Each step yields either a record or an error;
// *SkipError values are non-fatal and reading continues after them, any
// other error is an I/O failure and ends the sequence.
//
// The first non-empty line is tried as data and silently dropped when it
// does not decode (it is the header). A final line with no newline is
// decoded like any other, so a torn write is skipped only when its
// coordinates do not parse.
func Read(r io.Reader) iter.Seq2[models.PointRecord, error] {
	return func(yield func(models.PointRecord, error) bool) {
		br := bufio.NewReader(r)
		lineNo := 0
		seenFirst := false
		for {
			raw, err := br.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				yield(models.PointRecord{}, fmt.Errorf("codec: read: %w", err))
				return
			}
			if raw == "" {
				return
			}
			lineNo++
			terminated := strings.HasSuffix(raw, "\n")
			line := strings.TrimRight(raw, "\r\n")
			if strings.TrimSpace(line) == "" {
				if !terminated {
					return
				}
				continue
			}
			rec, decErr := Decode(line)
			if !seenFirst {
				seenFirst = true
				if decErr != nil {
					continue
				}
			}
			if decErr != nil {
				if !yield(models.PointRecord{}, &SkipError{Line: lineNo, Reason: decErr.Error()}) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// ReadAll collects the decodable records of r. Skipped lines are passed to
// onSkip when it is non-nil.
func ReadAll(r io.Reader, onSkip func(*SkipError)) ([]models.PointRecord, error) {
	var out []models.PointRecord
	for rec, err := range Read(r) {
		if err != nil {
			var skip *SkipError
			if errors.As(err, &skip) {
				if onSkip != nil {
					onSkip(skip)
				}
				continue
			}
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}
