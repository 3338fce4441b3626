package schema

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	serrors "github.com/sunmao-dev/sunmao/internal/errors"
)

// ObjectGetter is the part of the S3 client the loader needs.
// *s3.Client implements it.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config configures NewS3Client.
type S3Config struct {
	Region string

	// Endpoint overrides the service endpoint, for S3 compatible stores.
	Endpoint string

	// UsePathStyle addresses buckets as endpoint/bucket/key.
	UsePathStyle bool
}

// NewS3Client builds an S3 client with static credentials from
// AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN. Without
// them requests are sent anonymously, which works for public buckets.
func NewS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	if os.Getenv("AWS_ACCESS_KEY_ID") != "" {
		opts.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
					SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
					SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
					Source:          "Environment",
				}, nil
			}))
	} else {
		opts.Credentials = aws.AnonymousCredentials{}
	}
	return s3.New(opts)
}

// Loader reads application documents from local paths or s3:// URLs.
type Loader struct {
	s3 ObjectGetter
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithS3 enables s3://bucket/key sources.
func WithS3(client ObjectGetter) LoaderOption {
	return func(l *Loader) {
		l.s3 = client
	}
}

// NewLoader creates a loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsRemote reports whether source names an S3 object.
func IsRemote(source string) bool {
	return strings.HasPrefix(source, "s3://")
}

// Read returns the raw bytes of source and the format implied by its
// extension.
func (l *Loader) Read(ctx context.Context, source string) ([]byte, Format, error) {
	format := FormatFromPath(source)
	if !IsRemote(source) {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, "", serrors.New("E206").WithDetail(fmt.Sprintf("reading %s", source)).Wrap(err)
		}
		return data, format, nil
	}

	if l.s3 == nil {
		return nil, "", serrors.New("E207").WithDetail(source)
	}
	u, err := url.Parse(source)
	if err != nil || u.Host == "" || strings.Trim(u.Path, "/") == "" {
		return nil, "", serrors.New("E207").WithDetail(fmt.Sprintf("malformed S3 URL %q", source))
	}

	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(strings.TrimPrefix(u.Path, "/")),
	})
	if err != nil {
		return nil, "", serrors.New("E206").WithDetail(fmt.Sprintf("fetching %s", source)).Wrap(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", serrors.New("E206").WithDetail(fmt.Sprintf("reading %s", source)).Wrap(err)
	}
	return data, format, nil
}

// Load reads, parses and validates an application.
func (l *Loader) Load(ctx context.Context, source string) (*Application, error) {
	data, format, err := l.Read(ctx, source)
	if err != nil {
		return nil, err
	}
	app, err := Parse(data, format)
	if err != nil {
		var e *serrors.Error
		if errors.As(err, &e) && e.Location != nil && !IsRemote(source) {
			e.WithLocation(source, e.Location.Line, e.Location.Column)
		}
		return nil, err
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}
	return app, nil
}
