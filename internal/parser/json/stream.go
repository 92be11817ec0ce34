// Package json streams JSON objects out of song-metadata and event-log files.
//
// Supported shapes:
//
//   - newline-delimited objects (the event logs):
//     {"ts":1541105830796,"page":"NextSong"}
//     {"ts":1541106106796,"page":"Home"}
//   - a single object (one song record per file), or several objects
//     concatenated in one stream;
//   - a top-level array of objects: [ {...}, {...} ].
//
// Objects are handed over as raw bytes so callers decode straight into their
// own record types.
//
// When the first non-blank line holds complete JSON values the input is read
// line by line: a malformed line is reported and the next line is read. Other
// input (pretty-printed objects, arrays spanning lines) goes through one
// decoder, and a syntax error ends the stream since encoding/json cannot
// resynchronize.
package json

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
)

// ErrSyntax marks a value that could not be tokenized. Everything emitted
// before the error is valid.
var ErrSyntax = errors.New("json syntax error")

// Object is one top-level (or array-element) JSON object.
type Object struct {
	// Ordinal is the 1-based position of the object in the stream.
	Ordinal int
	Raw     json.RawMessage
}

// StreamObjects decodes r and calls emit for every object in order.
//
// Non-object values (numbers, strings, nested arrays inside a root array) are
// reported through onParseErr with the ordinal they occupy and skipped. A
// syntax error is reported through onParseErr marked with ErrSyntax; in
// line-delimited input the stream goes on with the next line, otherwise the
// error is also returned. An error returned by emit stops the stream and is
// returned as is.
func StreamObjects(
	ctx context.Context,
	r io.Reader,
	emit func(Object) error,
	onParseErr func(ordinal int, err error),
) error {
	st := &stream{ctx: ctx, emit: emit, onParseErr: onParseErr}
	br := bufio.NewReader(r)

	var first []byte
	for {
		line, err := br.ReadBytes('\n')
		st.line++
		if len(bytes.TrimSpace(line)) > 0 {
			first = line
			break
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "json: read")
		}
	}

	if completeValues(first) {
		return st.lines(first, br)
	}
	return st.values(json.NewDecoder(io.MultiReader(bytes.NewReader(first), br)))
}

type stream struct {
	ctx        context.Context
	emit       func(Object) error
	onParseErr func(int, error)
	ordinal    int
	line       int
}

func (s *stream) report(err error) {
	if s.onParseErr != nil {
		s.onParseErr(s.ordinal, err)
	}
}

// lines handles line-delimited input, starting with the already read first
// line.
func (s *stream) lines(line []byte, br *bufio.Reader) error {
	for {
		if err := s.ctx.Err(); err != nil {
			return err
		}
		if len(bytes.TrimSpace(line)) > 0 {
			if err := s.decodeLine(line); err != nil {
				return err
			}
		}
		next, err := br.ReadBytes('\n')
		if len(next) == 0 && err == io.EOF {
			return nil
		}
		if err != nil && err != io.EOF {
			return errors.Wrap(err, "json: read")
		}
		s.line++
		line = next
	}
}

// decodeLine emits every value of one line. A syntax error drops the rest of
// the line only.
func (s *stream) decodeLine(line []byte) error {
	dec := json.NewDecoder(bytes.NewReader(line))
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				return nil
			}
			s.ordinal++
			s.report(errors.Mark(errors.Wrapf(err, "json: line %d", s.line), ErrSyntax))
			return nil
		}
		if err := s.value(raw); err != nil {
			return err
		}
	}
}

// values handles input that is not line-delimited.
func (s *stream) values(dec *json.Decoder) error {
	for {
		if err := s.ctx.Err(); err != nil {
			return err
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				return nil
			}
			s.ordinal++
			err = errors.Mark(errors.Wrapf(err, "json: decode value %d", s.ordinal), ErrSyntax)
			s.report(err)
			return err
		}
		if err := s.value(raw); err != nil {
			return err
		}
	}
}

// value emits an object or the elements of an array.
func (s *stream) value(raw json.RawMessage) error {
	if firstByte(raw) != '[' {
		return s.object(raw)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		s.ordinal++
		err = errors.Mark(errors.Wrapf(err, "json: decode array %d", s.ordinal), ErrSyntax)
		s.report(err)
		return err
	}
	for _, e := range elems {
		if err := s.ctx.Err(); err != nil {
			return err
		}
		if err := s.object(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *stream) object(raw json.RawMessage) error {
	s.ordinal++
	if firstByte(raw) != '{' {
		s.report(errors.Newf("json: value %d is not an object", s.ordinal))
		return nil
	}
	return s.emit(Object{Ordinal: s.ordinal, Raw: raw})
}

// completeValues reports whether line holds one or more complete JSON values.
func completeValues(line []byte) bool {
	dec := json.NewDecoder(bytes.NewReader(line))
	n := 0
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err == io.EOF && n > 0
		}
		n++
	}
}

// DecodeAll is a helper for non-streaming use (tests, small inputs). It
// returns every object in r and fails on the first problem of any kind.
func DecodeAll(r io.Reader) ([]json.RawMessage, error) {
	var out []json.RawMessage
	var firstErr error
	err := StreamObjects(context.Background(), r,
		func(o Object) error {
			out = append(out, o.Raw)
			return nil
		},
		func(_ int, err error) {
			if firstErr == nil {
				firstErr = err
			}
		})
	if err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func firstByte(raw json.RawMessage) byte {
	b := bytes.TrimLeft(raw, " \t\r\n")
	if len(b) == 0 {
		return 0
	}
	return b[0]
}
