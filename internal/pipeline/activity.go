package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zeebo/xxh3"
	"golang.org/x/text/unicode/norm"

	"datalake/internal/frame"
	"datalake/internal/lake"
	"datalake/internal/metrics"
	"datalake/internal/schema"
	"datalake/internal/session"
)

const inputSongCatalog = "song_catalog"

var logData = loader[schema.LogEvent]{name: inputLogData, check: checkEvent}

// checkEvent rejects song plays that cannot be placed in time.
func checkEvent(e schema.LogEvent) error {
	if e.IsSongPlay() && !e.TS.Valid {
		return errors.New("NextSong event without ts")
	}
	return nil
}

// play is a NextSong event with its rendered start time.
type play struct {
	schema.LogEvent
	StartTime string
}

// songKey is the catalog join key.
type songKey struct {
	title  string
	artist string
}

// ProcessLogData runs the activity stage: it reads the event logs, keeps the
// NextSong events, and writes the user, time and songplays tables.
//
// Songplays are resolved against the song metadata, which this stage reads
// itself, with a left join on (song title, artist name) and a left join on
// start_time against the time rows. Events are never dropped by the joins;
// an event matching several catalog entries yields one row per match.
//
// Every songplay carries an event_id derived from the event alone and a
// songplay_id derived from the event and the rank of its catalog match. The
// default merge mode replaces every stored row of an incoming event, so
// re-running over overlapping input does not duplicate facts, even when the
// catalog changed in between.
func ProcessLogData(ctx context.Context, s *session.Session) (Result, error) {
	start := time.Now()
	res := Result{Stage: StageActivity}
	log := s.Log.WithField("stage", StageActivity)
	done := func(err error) (Result, error) {
		res.Duration = time.Since(start)
		metrics.RecordStep(s.Job(), StageActivity, err, res.Duration)
		return res, err
	}

	mode, err := lake.ParseMode(s.Config.Runtime.SongplaysMode)
	if err != nil {
		return done(errors.Wrap(err, "runtime.songplays_mode"))
	}

	l := logData
	l.pattern = s.Config.Input.LogGlob
	events, in, err := l.load(ctx, s)
	res.Inputs = append(res.Inputs, in)
	if err != nil {
		return done(err)
	}

	plays := frame.Map(frame.Filter(events, schema.LogEvent.IsSongPlay), func(e schema.LogEvent) play {
		return play{LogEvent: e, StartTime: schema.StartTime(e.TS.V, s.Loc)}
	})
	res.Filtered = len(events) - len(plays)
	metrics.RecordRows(s.Job(), inputLogData, "filtered", int64(res.Filtered))
	log.Infof("activity: %d event(s), %d song play(s)", len(events), len(plays))

	users := frame.Sort(frame.Distinct(frame.Map(plays, userRow), encodeUser), encodeUser)
	times, err := timeRows(plays)
	if err != nil {
		return done(err)
	}
	res.Rows.Users = users
	res.Rows.Time = times

	errs := errors.CombineErrors(
		writeTable(ctx, s, &res, UsersTable(), users, lake.ModeOverwrite, encodeUser),
		writeTable(ctx, s, &res, TimeTable(), times, lake.ModeOverwrite, encodeTime),
	)

	cl := songData
	cl.name = inputSongCatalog
	cl.pattern = s.Config.Input.SongGlob
	records, cin, err := cl.load(ctx, s)
	res.Inputs = append(res.Inputs, cin)
	if err != nil {
		return done(errors.CombineErrors(errs, err))
	}
	catalog := frame.Map(records, catalogRow)

	normalize := identity
	if s.Config.Runtime.NormalizeJoinKeys {
		normalize = normalizeJoinKey
	}
	songplays := buildSongplays(plays, catalog, times, normalize)
	for _, p := range songplays {
		if p.SongID == nil {
			res.Unmatched++
		}
	}
	res.Rows.Songplays = songplays
	metrics.RecordRows(s.Job(), TableSongplays, "unmatched", int64(res.Unmatched))
	log.Infof("activity: songplays=%d unmatched=%d", len(songplays), res.Unmatched)

	errs = errors.CombineErrors(errs,
		writeTable(ctx, s, &res, SongplaysTable(), songplays, mode, encodeSongplay))
	return done(errs)
}

// timeRows derives one time row per distinct start_time.
func timeRows(plays []play) ([]schema.Time, error) {
	seen := make(map[string]struct{}, len(plays))
	out := make([]schema.Time, 0, len(plays))
	for _, p := range plays {
		if _, ok := seen[p.StartTime]; ok {
			continue
		}
		seen[p.StartTime] = struct{}{}
		t, err := schema.DeriveTime(p.StartTime)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return frame.Sort(out, encodeTime), nil
}

// buildSongplays joins plays to the catalog and the time rows and projects the
// fact rows, unique on songplay_id and sorted.
func buildSongplays(plays []play, catalog []schema.CatalogEntry, times []schema.Time, normalize func(string) string) []schema.Songplay {
	playKey := func(p play) (songKey, bool) {
		if !p.Song.Valid || !p.Artist.Valid {
			return songKey{}, false
		}
		return songKey{normalize(p.Song.V), normalize(p.Artist.V)}, true
	}
	entryKey := func(c schema.CatalogEntry) (songKey, bool) {
		if c.Title == nil || c.ArtistName == nil {
			return songKey{}, false
		}
		return songKey{normalize(*c.Title), normalize(*c.ArtistName)}, true
	}
	matched := frame.LeftJoin(plays, catalog, playKey, entryKey)

	type withSong = frame.Joined[play, schema.CatalogEntry]
	timed := frame.LeftJoin(matched, times,
		func(j withSong) (string, bool) { return j.Left.StartTime, true },
		func(t schema.Time) (string, bool) { return t.StartTime, true },
	)

	rows := frame.Map(timed, func(j frame.Joined[withSong, schema.Time]) schema.Songplay {
		p, c := j.Left.Left, j.Left.Right
		sp := schema.Songplay{
			StartTime: p.StartTime,
			UserID:    p.UserID.Ptr(),
			Level:     p.Level.Ptr(),
			SessionID: p.SessionID.Ptr(),
			Location:  p.Location.Ptr(),
			UserAgent: p.UserAgent.Ptr(),
		}
		if j.Left.Matched {
			sp.SongID, sp.ArtistID = c.SongID, c.ArtistID
		}
		if j.Matched {
			y, m := j.Right.Year, j.Right.Month
			sp.Year, sp.Month = &y, &m
		}
		sp.EventID = eventID(p)
		return sp
	})

	rows = frame.DedupBy(rows, matchKey, frame.KeepFirst)
	assignSongplayIDs(rows)
	return frame.Sort(rows, encodeSongplay)
}

// eventID is the hex xxh3-128 digest of the event identity: ts, user,
// session, item in session, song and artist.
func eventID(p play) string {
	var e frame.Encoder
	e.OptInt(p.TS.Ptr())
	e.OptString(p.UserID.Ptr())
	e.OptInt(p.SessionID.Ptr())
	e.OptInt(p.ItemInSession.Ptr())
	e.OptString(p.Song.Ptr())
	e.OptString(p.Artist.Ptr())
	return hex128(e.Sum128())
}

// songplayID digests an event id and the rank of its match.
func songplayID(eventID string, ordinal int) string {
	var e frame.Encoder
	e.String(eventID)
	e.Int(int64(ordinal))
	return hex128(e.Sum128())
}

func hex128(h xxh3.Uint128) string {
	return fmt.Sprintf("%016x%016x", h.Hi, h.Lo)
}

// matchKey identifies one (event, catalog match) pair. Repeated events and
// repeated catalog entries collapse on it.
func matchKey(p schema.Songplay) (string, bool) {
	var e frame.Encoder
	e.String(p.EventID)
	e.OptString(p.SongID)
	e.OptString(p.ArtistID)
	return string(e.Bytes()), true
}

// assignSongplayIDs ranks the matches of each event by (song_id, artist_id),
// unmatched first, and derives songplay_id from the rank.
func assignSongplayIDs(rows []schema.Songplay) {
	byEvent := make(map[string][]int, len(rows))
	for i, r := range rows {
		byEvent[r.EventID] = append(byEvent[r.EventID], i)
	}
	for _, idx := range byEvent {
		slices.SortFunc(idx, func(a, b int) int {
			if c := compareOpt(rows[a].SongID, rows[b].SongID); c != 0 {
				return c
			}
			return compareOpt(rows[a].ArtistID, rows[b].ArtistID)
		})
		for n, i := range idx {
			rows[i].SongplayID = songplayID(rows[i].EventID, n)
		}
	}
}

// compareOpt orders nil before any string.
func compareOpt(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return strings.Compare(*a, *b)
}

func userRow(p play) schema.User {
	return schema.User{
		UserID:    p.UserID.Ptr(),
		FirstName: p.FirstName.Ptr(),
		LastName:  p.LastName.Ptr(),
		Gender:    p.Gender.Ptr(),
		Level:     p.Level.Ptr(),
	}
}

func catalogRow(r schema.SongRecord) schema.CatalogEntry {
	return schema.CatalogEntry{
		ArtistID:   r.ArtistID.Ptr(),
		ArtistName: r.ArtistName.Ptr(),
		SongID:     r.SongID.Ptr(),
		Title:      r.Title.Ptr(),
	}
}

func identity(s string) string { return s }

// normalizeJoinKey applies NFC normalization and collapses runs of
// whitespace, so "Sehr  kosmisch" and a decomposed "Café" still match.
func normalizeJoinKey(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
