package mcpserver

// CSVFormatContract describes the on-disk track file format so that LLM
// consumers can read exports and reason about recorded points.
const CSVFormatContract = `# geotracker Track File Format

Every track is stored as one CSV file named ` + "`" + `track_<slug>.csv` + "`" + ` where
<slug> is the track name with each whitespace run replaced by ` + "`" + `_` + "`" + `
(case preserved). The track "Morning Run" lives in ` + "`" + `track_Morning_Run.csv` + "`" + `.

## Layout

` + "```" + `csv
Timestamp,Type,Latitude,Longitude
2024-05-01T10:00:00.123,MANUAL,52.52,13.405
2024-05-01T10:00:02,CONTINUOUS,52.5201,13.4051
` + "```" + `

## Rules

1. **Header** is always the first line. Files are append-only below it.
2. **Timestamp** is local wall-clock time without a zone,
   ` + "`" + `YYYY-MM-DDTHH:MM:SS[.fraction]` + "`" + `.
3. **Type** is one of ` + "`" + `MANUAL` + "`" + `, ` + "`" + `CONTINUOUS` + "`" + `, ` + "`" + `HIGHLIGHT` + "`" + `.
   Manual saves in continuous mode are written as ` + "`" + `HIGHLIGHT` + "`" + `.
4. **Latitude/Longitude** are WGS84 decimal degrees with full precision.
5. **Legacy rows** have three columns (` + "`" + `Timestamp,Latitude,Longitude` + "`" + `)
   and are read as ` + "`" + `MANUAL` + "`" + ` points. Both layouts may be mixed in one file.
6. **Malformed rows** are skipped on read; they never abort a track.

## Tools

- ` + "`" + `list_tracks` + "`" + ` shows names, file names and which track is current.
- ` + "`" + `read_track` + "`" + ` returns the parsed points of one track.
- ` + "`" + `push_sample` + "`" + ` feeds a location fix; ` + "`" + `save_point` + "`" + ` stores the latest fix
  on the current track.
`
