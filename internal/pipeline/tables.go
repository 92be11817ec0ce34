package pipeline

import (
	"strconv"

	"datalake/internal/frame"
	"datalake/internal/lake"
	"datalake/internal/schema"
)

// Output table names. They are also the directory names under the output
// root.
const (
	TableSongs     = "songs"
	TableArtists   = "artists"
	TableUsers     = "user"
	TableTime      = "time"
	TableSongplays = "songplays"
)

// TableNames lists the output tables in write order.
var TableNames = []string{TableSongs, TableArtists, TableUsers, TableTime, TableSongplays}

// Parquet file rows. Partition columns are carried by the directory names
// and are not part of the files.

type songFile struct {
	SongID *string `parquet:"name=song_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Title  *string `parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

type artistFile struct {
	ArtistID  *string  `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Location  *string  `parquet:"name=artist_location, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Latitude  *float64 `parquet:"name=artist_latitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	Longitude *float64 `parquet:"name=artist_longitude, type=DOUBLE, repetitiontype=OPTIONAL"`
}

type userFile struct {
	UserID    *string `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	FirstName *string `parquet:"name=first_name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	LastName  *string `parquet:"name=last_name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Gender    *string `parquet:"name=gender, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Level     *string `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

type timeFile struct {
	StartTime string `parquet:"name=start_time, type=BYTE_ARRAY, convertedtype=UTF8"`
	Hour      int32  `parquet:"name=hour, type=INT32"`
	Day       int32  `parquet:"name=day, type=INT32"`
	Week      int32  `parquet:"name=week, type=INT32"`
	Weekday   int32  `parquet:"name=weekday, type=INT32"`
}

type songplayFile struct {
	SongplayID string  `parquet:"name=songplay_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	EventID    string  `parquet:"name=event_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	StartTime  string  `parquet:"name=start_time, type=BYTE_ARRAY, convertedtype=UTF8"`
	UserID     *string `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Level      *string `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	SongID     *string `parquet:"name=song_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ArtistID   *string `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	SessionID  *int64  `parquet:"name=session_id, type=INT64, repetitiontype=OPTIONAL"`
	Location   *string `parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	UserAgent  *string `parquet:"name=user_agent, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

// SongsTable is partitioned by (year, artist_id).
func SongsTable() lake.Table[schema.Song, songFile] {
	return lake.Table[schema.Song, songFile]{
		Name:        TableSongs,
		PartitionBy: []string{"year", "artist_id"},
		Partition: func(s schema.Song) []string {
			return []string{fmtInt64(s.Year), deref(s.ArtistID)}
		},
		Encode: func(s schema.Song) songFile {
			return songFile{SongID: s.SongID, Title: s.Title}
		},
		Decode: func(f songFile, v []string) schema.Song {
			return schema.Song{SongID: f.SongID, Title: f.Title, Year: parseInt64(v[0]), ArtistID: optString(v[1])}
		},
	}
}

// ArtistsTable is unpartitioned.
func ArtistsTable() lake.Table[schema.Artist, artistFile] {
	return lake.Table[schema.Artist, artistFile]{
		Name: TableArtists,
		Encode: func(a schema.Artist) artistFile {
			return artistFile(a)
		},
		Decode: func(f artistFile, _ []string) schema.Artist {
			return schema.Artist(f)
		},
	}
}

// UsersTable is unpartitioned.
func UsersTable() lake.Table[schema.User, userFile] {
	return lake.Table[schema.User, userFile]{
		Name: TableUsers,
		Encode: func(u schema.User) userFile {
			return userFile(u)
		},
		Decode: func(f userFile, _ []string) schema.User {
			return schema.User(f)
		},
	}
}

// TimeTable is partitioned by (year, month).
func TimeTable() lake.Table[schema.Time, timeFile] {
	return lake.Table[schema.Time, timeFile]{
		Name:        TableTime,
		PartitionBy: []string{"year", "month"},
		Partition: func(t schema.Time) []string {
			return []string{strconv.Itoa(int(t.Year)), strconv.Itoa(int(t.Month))}
		},
		Encode: func(t schema.Time) timeFile {
			return timeFile{StartTime: t.StartTime, Hour: t.Hour, Day: t.Day, Week: t.Week, Weekday: t.Weekday}
		},
		Decode: func(f timeFile, v []string) schema.Time {
			t := schema.Time{StartTime: f.StartTime, Hour: f.Hour, Day: f.Day, Week: f.Week, Weekday: f.Weekday}
			if y := parseInt32(v[0]); y != nil {
				t.Year = *y
			}
			if m := parseInt32(v[1]); m != nil {
				t.Month = *m
			}
			return t
		},
	}
}

// SongplaysTable is partitioned by (year, month). Merges replace rows by
// event_id.
func SongplaysTable() lake.Table[schema.Songplay, songplayFile] {
	return lake.Table[schema.Songplay, songplayFile]{
		Name:        TableSongplays,
		PartitionBy: []string{"year", "month"},
		Partition: func(p schema.Songplay) []string {
			return []string{fmtInt32(p.Year), fmtInt32(p.Month)}
		},
		Encode: func(p schema.Songplay) songplayFile {
			return songplayFile{
				SongplayID: p.SongplayID,
				EventID:    p.EventID,
				StartTime:  p.StartTime,
				UserID:     p.UserID,
				Level:      p.Level,
				SongID:     p.SongID,
				ArtistID:   p.ArtistID,
				SessionID:  p.SessionID,
				Location:   p.Location,
				UserAgent:  p.UserAgent,
			}
		},
		Decode: func(f songplayFile, v []string) schema.Songplay {
			return schema.Songplay{
				SongplayID: f.SongplayID,
				EventID:    f.EventID,
				StartTime:  f.StartTime,
				UserID:     f.UserID,
				Level:      f.Level,
				SongID:     f.SongID,
				ArtistID:   f.ArtistID,
				SessionID:  f.SessionID,
				Location:   f.Location,
				UserAgent:  f.UserAgent,
				Year:       parseInt32(v[0]),
				Month:      parseInt32(v[1]),
			}
		},
		Key: func(p schema.Songplay) string { return p.EventID },
	}
}

// Row encoders: every selected column takes part in equality.

func encodeSong(e *frame.Encoder, s schema.Song) {
	e.OptString(s.SongID)
	e.OptString(s.Title)
	e.OptString(s.ArtistID)
	e.OptInt(s.Year)
}

func encodeArtist(e *frame.Encoder, a schema.Artist) {
	e.OptString(a.ArtistID)
	e.OptString(a.Location)
	e.OptFloat(a.Latitude)
	e.OptFloat(a.Longitude)
}

func encodeUser(e *frame.Encoder, u schema.User) {
	e.OptString(u.UserID)
	e.OptString(u.FirstName)
	e.OptString(u.LastName)
	e.OptString(u.Gender)
	e.OptString(u.Level)
}

func encodeTime(e *frame.Encoder, t schema.Time) {
	e.String(t.StartTime)
	e.Int(int64(t.Hour))
	e.Int(int64(t.Day))
	e.Int(int64(t.Week))
	e.Int(int64(t.Month))
	e.Int(int64(t.Year))
	e.Int(int64(t.Weekday))
}

func encodeSongplay(e *frame.Encoder, p schema.Songplay) {
	e.String(p.SongplayID)
	e.String(p.EventID)
	e.String(p.StartTime)
	e.OptString(p.UserID)
	e.OptString(p.Level)
	e.OptString(p.SongID)
	e.OptString(p.ArtistID)
	e.OptInt(p.SessionID)
	e.OptString(p.Location)
	e.OptString(p.UserAgent)
	e.OptInt32(p.Year)
	e.OptInt32(p.Month)
}

// Fingerprints of the five tables, for tests and run logs.

// SongsFingerprint digests a songs table.
func SongsFingerprint(rows []schema.Song) uint64 { return frame.Fingerprint(rows, encodeSong) }

// ArtistsFingerprint digests an artists table.
func ArtistsFingerprint(rows []schema.Artist) uint64 { return frame.Fingerprint(rows, encodeArtist) }

// UsersFingerprint digests a user table.
func UsersFingerprint(rows []schema.User) uint64 { return frame.Fingerprint(rows, encodeUser) }

// TimeFingerprint digests a time table.
func TimeFingerprint(rows []schema.Time) uint64 { return frame.Fingerprint(rows, encodeTime) }

// SongplaysFingerprint digests a songplays table.
func SongplaysFingerprint(rows []schema.Songplay) uint64 {
	return frame.Fingerprint(rows, encodeSongplay)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func fmtInt64(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func fmtInt32(v *int32) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(int(*v))
}

func parseInt64(s string) *int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func parseInt32(s string) *int32 {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return nil
	}
	v := int32(n)
	return &v
}
