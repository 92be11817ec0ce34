package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/ini.v1"
)

// ErrMissingCredentials is returned when object-storage credentials are
// required but absent. It is a startup error and never retried.
var ErrMissingCredentials = errors.New("missing object storage credentials")

// CredentialsSection is the INI section holding the storage keys.
const CredentialsSection = "AWS"

// Credentials are the object-storage access keys. They are read once at
// startup and never logged.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
}

// Empty reports whether no key pair is present.
func (c Credentials) Empty() bool {
	return c.AccessKeyID == "" || c.SecretAccessKey == ""
}

// String redacts the secret so Credentials can be logged safely.
func (c Credentials) String() string {
	if c.Empty() {
		return "credentials(none)"
	}
	id := c.AccessKeyID
	if len(id) > 4 {
		id = id[:4] + "****"
	}
	return "credentials(" + id + ")"
}

// LoadCredentials reads an INI file of the form
//
//	[AWS]
//	AWS_ACCESS_KEY_ID=...
//	AWS_SECRET_ACCESS_KEY=...
//
// A missing file or section is not an error here; callers decide whether
// credentials are required (see Require).
func LoadCredentials(path string) (Credentials, error) {
	var c Credentials
	if strings.TrimSpace(path) == "" {
		return c, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	f, err := ini.Load(path)
	if err != nil {
		return c, errors.Wrapf(err, "read credentials %s", path)
	}
	sec, err := f.GetSection(CredentialsSection)
	if err != nil {
		return c, nil
	}
	c.AccessKeyID = strings.TrimSpace(sec.Key("AWS_ACCESS_KEY_ID").String())
	c.SecretAccessKey = strings.TrimSpace(sec.Key("AWS_SECRET_ACCESS_KEY").String())
	c.SessionToken = strings.TrimSpace(sec.Key("AWS_SESSION_TOKEN").String())
	c.Region = strings.TrimSpace(sec.Key("AWS_REGION").String())
	return c, nil
}

// WithEnv overlays environment variables on top of file values. getenv is
// injected for tests; production passes os.Getenv.
func (c Credentials) WithEnv(getenv func(string) string) Credentials {
	if v := getenv("AWS_ACCESS_KEY_ID"); v != "" {
		c.AccessKeyID = v
	}
	if v := getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		c.SecretAccessKey = v
	}
	if v := getenv("AWS_SESSION_TOKEN"); v != "" {
		c.SessionToken = v
	}
	if v := getenv("AWS_REGION"); v != "" && c.Region == "" {
		c.Region = v
	}
	return c
}

// Require returns ErrMissingCredentials when c is empty.
func (c Credentials) Require(path string) error {
	if c.Empty() {
		return errors.Wrapf(ErrMissingCredentials,
			"set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY in [%s] of %q or the environment",
			CredentialsSection, path)
	}
	return nil
}
