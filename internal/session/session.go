// Package session builds the execution context shared by every stage of a
// run: the input and output stores, the timezone epoch timestamps are
// rendered in, the logger, and the lake writer carrying the runtime knobs.
//
// A Session is created once per process and passed explicitly to the stages.
package session

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"datalake/internal/config"
	"datalake/internal/lake"
	"datalake/internal/objstore"
)

// ErrSetup marks configuration and startup failures. They are fatal and never
// retried.
var ErrSetup = errors.New("session setup failed")

// Session is the long-lived execution context of one run.
type Session struct {
	Config config.Pipeline

	Input  objstore.Store
	Output objstore.Store

	// Loc is the timezone start_time values are rendered in.
	Loc *time.Location

	Log logrus.FieldLogger

	// Writer writes the five tables to Output.
	Writer *lake.Writer
}

// Job returns the configured job name.
func (s *Session) Job() string { return s.Config.Job }

// Test seams.
var (
	openStore = func(root string, opts objstore.S3Options) (objstore.Store, error) {
		return objstore.Open(root, opts)
	}
	statDir = os.Stat
)

// NeedsCredentials reports whether either root of p is an S3 URL.
func NeedsCredentials(p config.Pipeline) bool {
	for _, root := range []string{p.Input.Root, p.Output.Root} {
		if loc, err := objstore.ParseLocation(root); err == nil && loc.IsS3() {
			return true
		}
	}
	return false
}

// New validates cfg, opens both stores and resolves the timezone. Defaults are
// applied to a copy of cfg. Every failure is marked with ErrSetup.
func New(ctx context.Context, cfg config.Pipeline, creds config.Credentials, log logrus.FieldLogger) (*Session, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	config.Defaults(&cfg)

	for _, iss := range config.ValidatePipeline(cfg) {
		if iss.Severity == config.SeverityError {
			return nil, errors.Mark(errors.Wrap(iss, "invalid pipeline"), ErrSetup)
		}
		log.Warnf("config: %s", iss.Error())
	}

	if NeedsCredentials(cfg) && creds.Empty() {
		return nil, errors.Mark(
			errors.Wrap(config.ErrMissingCredentials, "an s3 root is configured"), ErrSetup)
	}

	loc, err := loadLocation(cfg.Runtime.Timezone)
	if err != nil {
		return nil, errors.Mark(err, ErrSetup)
	}

	in, err := open(ctx, "input", cfg.Input.Root, cfg.Input.Options, creds)
	if err != nil {
		return nil, err
	}
	out, err := open(ctx, "output", cfg.Output.Root, cfg.Output.Options, creds)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Config: cfg,
		Input:  in,
		Output: out,
		Loc:    loc,
		Log:    log.WithField("job", cfg.Job),
	}
	s.Writer = &lake.Writer{
		Store:        out,
		Workers:      cfg.Runtime.WriteWorkers,
		RowGroupSize: int64(cfg.Runtime.RowGroupMB) * 1024 * 1024,
		Retries:      cfg.Runtime.WriteRetries,
		Log:          s.Log,
	}
	s.Log.Infof("session: input=%s output=%s timezone=%s read_workers=%d write_workers=%d",
		in.URL(), out.URL(), loc, cfg.Runtime.ReadWorkers, cfg.Runtime.WriteWorkers)
	return s, nil
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(err, "timezone %q", name)
	}
	return loc, nil
}

// open builds the store for one root. The output root is always pinged (a
// local output directory is created); S3 roots are pinged only when the
// verify_access option is set. A local input root must already exist.
func open(ctx context.Context, which, root string, opts config.Options, creds config.Credentials) (objstore.Store, error) {
	loc, err := objstore.ParseLocation(root)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "%s root", which), ErrSetup)
	}

	region := opts.String("region", creds.Region)
	st, err := openStore(root, objstore.S3Options{
		Region:          region,
		Endpoint:        opts.String("endpoint", ""),
		ForcePathStyle:  opts.Bool("force_path_style", false),
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "open %s store", which), ErrSetup)
	}

	switch {
	case loc.IsS3():
		if !opts.Bool("verify_access", false) {
			return st, nil
		}
	case which == "input":
		fi, err := statDir(loc.Prefix)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "input root %s", root), ErrSetup)
		}
		if !fi.IsDir() {
			return nil, errors.Mark(errors.Newf("input root %s is not a directory", root), ErrSetup)
		}
		return st, nil
	}
	if err := st.Ping(ctx); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "%s store unreachable", which), ErrSetup)
	}
	return st, nil
}
