package objstore

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/cockroachdb/errors"
)

// DefaultRegion is used when neither the options nor the credentials name one.
const DefaultRegion = "us-west-2"

// deleteBatch is the DeleteObjects per-request limit.
const deleteBatch = 1000

// S3Options configures S3 stores. Empty key pairs fall back to the SDK's
// default credential chain.
type S3Options struct {
	Region          string
	Endpoint        string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// S3 is a Store backed by a bucket and key prefix.
type S3 struct {
	Bucket string
	Prefix string

	client   s3iface.S3API
	uploader s3manageriface.UploaderAPI
}

// NewS3 creates an S3 store for loc using a fresh SDK session.
func NewS3(loc Location, opts S3Options) (*S3, error) {
	region := opts.Region
	if region == "" {
		region = DefaultRegion
	}
	cfg := &aws.Config{
		Region:           aws.String(region),
		S3ForcePathStyle: aws.Bool(opts.ForcePathStyle),
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create aws session")
	}
	client := s3.New(sess)
	return NewS3WithClient(loc, client, s3manager.NewUploaderWithClient(client)), nil
}

// NewS3WithClient wires an S3 store around existing clients. Tests pass fakes.
func NewS3WithClient(loc Location, client s3iface.S3API, uploader s3manageriface.UploaderAPI) *S3 {
	return &S3{
		Bucket:   loc.Bucket,
		Prefix:   strings.Trim(loc.Prefix, "/"),
		client:   client,
		uploader: uploader,
	}
}

// URL implements Store.
func (s *S3) URL() string {
	if s.Prefix == "" {
		return "s3://" + s.Bucket
	}
	return "s3://" + s.Bucket + "/" + s.Prefix
}

func (s *S3) fullKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.Prefix == "" {
		return key
	}
	return s.Prefix + "/" + key
}

func (s *S3) relKey(full string) string {
	if s.Prefix == "" {
		return full
	}
	return strings.TrimPrefix(full, s.Prefix+"/")
}

// Ping issues a HeadBucket request.
func (s *S3) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.Bucket)})
	if err != nil {
		return errors.Wrapf(err, "head bucket %s", s.Bucket)
	}
	return nil
}

// List pages through ListObjectsV2.
func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	full := s.fullKey(prefix)
	var keys []string
	err := s.client.ListObjectsV2PagesWithContext(ctx,
		&s3.ListObjectsV2Input{Bucket: aws.String(s.Bucket), Prefix: aws.String(full)},
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				k := aws.StringValue(obj.Key)
				if strings.HasSuffix(k, "/") {
					continue
				}
				keys = append(keys, s.relKey(k))
			}
			return true
		})
	if err != nil {
		return nil, errors.Wrapf(err, "list s3://%s/%s", s.Bucket, full)
	}
	sort.Strings(keys)
	return keys, nil
}

// Glob implements Store.
func (s *S3) Glob(ctx context.Context, pattern string) ([]string, error) {
	return globVia(ctx, s, pattern)
}

// Open implements Store.
func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, errors.Wrapf(ErrNotFound, "open %s", key)
		}
		return nil, errors.Wrapf(err, "get s3://%s/%s", s.Bucket, s.fullKey(key))
	}
	return out.Body, nil
}

// Put uploads r with the multipart-capable uploader.
func (s *S3) Put(ctx context.Context, key string, r io.Reader) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.fullKey(key)),
		Body:   r,
	})
	if err != nil {
		return errors.Wrapf(err, "upload s3://%s/%s", s.Bucket, s.fullKey(key))
	}
	return nil
}

// Delete removes keys in DeleteObjects batches.
func (s *S3) Delete(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatch {
		end := start + deleteBatch
		if end > len(keys) {
			end = len(keys)
		}
		ids := make([]*s3.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, &s3.ObjectIdentifier{Key: aws.String(s.fullKey(k))})
		}
		out, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.Bucket),
			Delete: &s3.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return errors.Wrapf(err, "delete objects in s3://%s", s.Bucket)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return errors.Newf("delete s3://%s/%s: %s: %s (and %d more)", s.Bucket,
				aws.StringValue(e.Key), aws.StringValue(e.Code), aws.StringValue(e.Message), len(out.Errors)-1)
		}
	}
	return nil
}
