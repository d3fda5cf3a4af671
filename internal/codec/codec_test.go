package codec

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/geotracker/internal/models"
)

func sameRecord(a, b models.PointRecord) bool {
	return a.Timestamp.Equal(b.Timestamp) && a.Kind == b.Kind && a.Lat == b.Lat && a.Lon == b.Lon
}

func TestEncode_Line(t *testing.T) {
	ts := time.Date(2024, 5, 1, 9, 30, 12, 500_000_000, time.Local)
	got := string(Encode(models.PointRecord{Timestamp: ts, Kind: models.KindManual, Lat: 52.52, Lon: 13.405}))
	want := "2024-05-01T09:30:12.5,MANUAL,52.52,13.405\n"
	if got != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	ts := time.Date(2023, 12, 31, 23, 59, 59, 123456789, time.Local)
	records := []models.PointRecord{
		{Timestamp: ts, Kind: models.KindManual, Lat: 52.52, Lon: 13.405},
		{Timestamp: ts.Add(time.Second), Kind: models.KindContinuous, Lat: -33.8688, Lon: 151.2093},
		{Timestamp: ts.Add(2 * time.Second), Kind: models.KindHighlight, Lat: 0.1 + 0.2, Lon: -179.99999999},
		{Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local), Kind: models.KindManual, Lat: 90, Lon: -180},
	}
	for _, r := range records {
		line := strings.TrimSuffix(string(Encode(r)), "\n")
		got, err := Decode(line)
		if err != nil {
			t.Fatalf("Decode(%q): %v", line, err)
		}
		if !sameRecord(got, r) {
			t.Errorf("round trip %q = %+v, want %+v", line, got, r)
		}
	}
}

func TestRead_LegacySchema(t *testing.T) {
	input := "Timestamp,Latitude,Longitude\n2024-01-01T00:00:00,10.0,20.0\n"
	recs, err := ReadAll(strings.NewReader(input), nil)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	r := recs[0]
	if r.Kind != models.KindManual || r.Lat != 10 || r.Lon != 20 {
		t.Errorf("record = %+v", r)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	if !r.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", r.Timestamp, want)
	}
}

func TestRead_HeaderlessFile(t *testing.T) {
	input := "2024-01-01T00:00,10.5,20.5\n2024-01-01T00:01,11,21\n"
	recs, err := ReadAll(strings.NewReader(input), nil)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2 (first line is data)", len(recs))
	}
}

func TestRead_MixedLegacyAndCurrentRows(t *testing.T) {
	input := LegacyHeader +
		"2024-01-01T00:00:00,10,20\n" +
		"2024-01-02T00:00:00,CONTINUOUS,11,21\n"
	recs, _ := ReadAll(strings.NewReader(input), nil)
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Kind != models.KindManual || recs[1].Kind != models.KindContinuous {
		t.Errorf("kinds = %s, %s", recs[0].Kind, recs[1].Kind)
	}
}

func TestRead_UnknownKindPreserved(t *testing.T) {
	input := Header + "2024-01-01T00:00:00,WAYPOINT,1,2\n"
	recs, _ := ReadAll(strings.NewReader(input), nil)
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0].Kind != "WAYPOINT" || recs[0].Kind.String() != "OTHER(WAYPOINT)" {
		t.Errorf("kind = %q", recs[0].Kind)
	}
	line := string(Encode(recs[0]))
	if !strings.Contains(line, ",WAYPOINT,") {
		t.Errorf("re-encoded line lost the token: %q", line)
	}
}

func TestRead_SkipsBadCoordinates(t *testing.T) {
	input := Header +
		"2024-01-01T00:00:00,MANUAL,abc,2\n" +
		"2024-01-01T00:00:01,MANUAL,95,2\n" +
		"2024-01-01T00:00:02,MANUAL,NaN,2\n" +
		"2024-01-01T00:00:03,MANUAL,1,2\n" +
		"only,two\n"
	var skipped []*SkipError
	recs, err := ReadAll(strings.NewReader(input), func(s *SkipError) { skipped = append(skipped, s) })
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(recs) != 1 || recs[0].Lat != 1 {
		t.Errorf("records = %+v", recs)
	}
	if len(skipped) != 4 {
		t.Fatalf("skipped %d lines, want 4", len(skipped))
	}
	if skipped[0].Line != 2 {
		t.Errorf("first skipped line = %d, want 2", skipped[0].Line)
	}
}

func TestRead_TruncatedFinalLine(t *testing.T) {
	input := Header +
		"2024-01-01T00:00:00,CONTINUOUS,1,1\n" +
		"2024-01-01T00:00:01,CONTINUOUS,2,2\n" +
		"2024-01-01T00:00:02,CONTI"
	var skipped []*SkipError
	recs, err := ReadAll(strings.NewReader(input), func(s *SkipError) { skipped = append(skipped, s) })
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if len(skipped) != 1 || skipped[0].Line != 4 {
		t.Errorf("skipped = %+v", skipped)
	}
}

func TestRead_UnterminatedCompleteFinalLine(t *testing.T) {
	input := LegacyHeader +
		"2024-01-01T00:00:00,10.0,20.0\n" +
		"2024-01-01T00:00:01,11.0,21.0"
	recs, err := ReadAll(strings.NewReader(input), nil)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[1].Lat != 11 || recs[1].Lon != 21 || recs[1].Kind != models.KindManual {
		t.Errorf("last record = %+v", recs[1])
	}
}

func TestRead_IsLazy(t *testing.T) {
	input := Header + "2024-01-01T00:00:00,MANUAL,1,1\n2024-01-01T00:00:01,MANUAL,2,2\n"
	n := 0
	for rec, err := range Read(strings.NewReader(input)) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		n++
		if rec.Lat != 1 {
			t.Errorf("first record lat = %v", rec.Lat)
		}
		break
	}
	if n != 1 {
		t.Errorf("iterated %d times", n)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestRead_IOErrorEndsSequence(t *testing.T) {
	_, err := ReadAll(failingReader{}, nil)
	if err == nil || !strings.Contains(err.Error(), "disk gone") {
		t.Errorf("err = %v", err)
	}
	var skip *SkipError
	if errors.As(err, &skip) {
		t.Error("I/O errors must not look like skips")
	}
}

func TestParseTimestamp_Zoned(t *testing.T) {
	got, err := ParseTimestamp("2024-01-01T12:00:00Z")
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	if !got.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("got %v", got)
	}
}
