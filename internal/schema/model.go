// Package schema holds the record types read from the source files and the
// row types of the five output tables.
package schema

// PageNextSong is the page value that marks a song-play event.
const PageNextSong = "NextSong"

// SongRecord is one song-metadata file. Artist attributes are denormalized
// into every song.
type SongRecord struct {
	NumSongs        NullInt64   `json:"num_songs"`
	ArtistID        NullString  `json:"artist_id"`
	ArtistLatitude  NullFloat64 `json:"artist_latitude"`
	ArtistLongitude NullFloat64 `json:"artist_longitude"`
	ArtistLocation  NullString  `json:"artist_location"`
	ArtistName      NullString  `json:"artist_name"`
	SongID          NullString  `json:"song_id"`
	Title           NullString  `json:"title"`
	Duration        NullFloat64 `json:"duration"`
	Year            NullInt64   `json:"year"`
}

// LogEvent is one line of an event-log file.
type LogEvent struct {
	Artist        NullString  `json:"artist"`
	Auth          NullString  `json:"auth"`
	FirstName     NullString  `json:"firstName"`
	Gender        NullString  `json:"gender"`
	ItemInSession NullInt64   `json:"itemInSession"`
	LastName      NullString  `json:"lastName"`
	Length        NullFloat64 `json:"length"`
	Level         NullString  `json:"level"`
	Location      NullString  `json:"location"`
	Method        NullString  `json:"method"`
	Page          NullString  `json:"page"`
	Registration  NullFloat64 `json:"registration"`
	SessionID     NullInt64   `json:"sessionId"`
	Song          NullString  `json:"song"`
	Status        NullInt64   `json:"status"`
	TS            NullInt64   `json:"ts"`
	UserAgent     NullString  `json:"userAgent"`
	UserID        NullString  `json:"userId"`
}

// IsSongPlay reports whether the event is a song play.
func (e LogEvent) IsSongPlay() bool {
	return e.Page.Valid && e.Page.V == PageNextSong
}

// Song is a row of the songs table, partitioned by (year, artist_id).
type Song struct {
	SongID   *string
	Title    *string
	ArtistID *string
	Year     *int64
}

// Artist is a row of the artists table.
type Artist struct {
	ArtistID  *string
	Location  *string
	Latitude  *float64
	Longitude *float64
}

// User is a row of the users table.
type User struct {
	UserID    *string
	FirstName *string
	LastName  *string
	Gender    *string
	Level     *string
}

// Time is a row of the time table, partitioned by (year, month). All parts
// are derived from StartTime.
type Time struct {
	StartTime string
	Hour      int32
	Day       int32
	Week      int32
	Month     int32
	Year      int32
	// Weekday runs from 1 (Sunday) to 7 (Saturday).
	Weekday int32
}

// Songplay is a row of the songplays fact table, partitioned by (year,
// month). SongID and ArtistID are nil when the catalog lookup misses; Year
// and Month are nil when the time lookup misses. EventID is shared by every
// row produced from the same log event.
type Songplay struct {
	SongplayID string
	EventID    string
	StartTime  string
	UserID     *string
	Level      *string
	SongID     *string
	ArtistID   *string
	SessionID  *int64
	Location   *string
	UserAgent  *string
	Year       *int32
	Month      *int32
}

// CatalogEntry is the slice of the song catalog used to resolve song plays.
type CatalogEntry struct {
	ArtistID   *string
	ArtistName *string
	SongID     *string
	Title      *string
}
