package pipeline

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"datalake/internal/frame"
	"datalake/internal/lake"
	"datalake/internal/metrics"
	"datalake/internal/schema"
	"datalake/internal/session"
)

var songData = loader[schema.SongRecord]{name: inputSongData}

// ProcessSongData runs the catalog stage: it reads every song-metadata file
// and overwrites the songs table (partitioned by year and artist_id) and the
// artists table. Both tables hold distinct rows in a deterministic order, so
// a re-run over the same input stores the same content.
func ProcessSongData(ctx context.Context, s *session.Session) (Result, error) {
	start := time.Now()
	res := Result{Stage: StageCatalog}
	log := s.Log.WithField("stage", StageCatalog)

	l := songData
	l.pattern = s.Config.Input.SongGlob
	records, in, err := l.load(ctx, s)
	res.Inputs = append(res.Inputs, in)
	if err != nil {
		res.Duration = time.Since(start)
		metrics.RecordStep(s.Job(), StageCatalog, err, res.Duration)
		return res, err
	}
	log.Infof("catalog: %d song record(s) from %d file(s)", len(records), in.Files)

	songs := frame.Sort(frame.Distinct(frame.Map(records, songRow), encodeSong), encodeSong)
	artists := frame.Sort(frame.Distinct(frame.Map(records, artistRow), encodeArtist), encodeArtist)
	res.Rows.Songs = songs
	res.Rows.Artists = artists

	errs := errors.CombineErrors(
		writeTable(ctx, s, &res, SongsTable(), songs, lake.ModeOverwrite, encodeSong),
		writeTable(ctx, s, &res, ArtistsTable(), artists, lake.ModeOverwrite, encodeArtist),
	)

	res.Duration = time.Since(start)
	metrics.RecordStep(s.Job(), StageCatalog, errs, res.Duration)
	return res, errs
}

func songRow(r schema.SongRecord) schema.Song {
	return schema.Song{
		SongID:   r.SongID.Ptr(),
		Title:    r.Title.Ptr(),
		ArtistID: r.ArtistID.Ptr(),
		Year:     r.Year.Ptr(),
	}
}

func artistRow(r schema.SongRecord) schema.Artist {
	return schema.Artist{
		ArtistID:  r.ArtistID.Ptr(),
		Location:  r.ArtistLocation.Ptr(),
		Latitude:  r.ArtistLatitude.Ptr(),
		Longitude: r.ArtistLongitude.Ptr(),
	}
}
