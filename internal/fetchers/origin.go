package fetchers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/tanq16/hoard/internal/utils"
)

// Origin is the fixed direct source for one file: <originBase>/<fileKey>.
type Origin interface {
	Describe() string
	Probe(ctx context.Context) error
	OpenRange(ctx context.Context, chunk utils.Chunk) (io.ReadCloser, bool, error)
	Open(ctx context.Context) (io.ReadCloser, int64, error)
}

type S3Options struct {
	Profile  string
	Region   string
	Endpoint string
}

// NewOrigin picks the origin implementation from the base URL scheme.
// rangeClient must carry a bounded timeout; streamClient is used for the
// whole-file GET and should not cap the body read time.
func NewOrigin(ctx context.Context, base, fileKey string, rangeClient, streamClient utils.HTTPDoer, s3opts S3Options) (Origin, error) {
	if base == "" {
		return nil, ErrNoOrigin
	}
	if strings.HasPrefix(base, "s3://") {
		bucket, prefix, err := parseS3Base(base)
		if err != nil {
			return nil, err
		}
		client, err := newS3Client(ctx, s3opts)
		if err != nil {
			return nil, err
		}
		return &s3Origin{client: client, bucket: bucket, key: path.Join(prefix, fileKey)}, nil
	}
	target, err := url.JoinPath(base, fileKey)
	if err != nil {
		return nil, fmt.Errorf("invalid origin URL: %w", err)
	}
	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("unsupported origin: %s", base)
	}
	return &httpOrigin{url: target, client: rangeClient, streamClient: streamClient}, nil
}

type httpOrigin struct {
	url          string
	client       utils.HTTPDoer
	streamClient utils.HTTPDoer
}

func (o *httpOrigin) Describe() string {
	return o.url
}

func (o *httpOrigin) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, o.url, nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusMethodNotAllowed {
		body, _, err := getRange(ctx, o.client, o.url, utils.Chunk{Start: 0, End: 0})
		if err != nil {
			return err
		}
		return body.Close()
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("origin returned status %d", resp.StatusCode)
	}
	return nil
}

func (o *httpOrigin) OpenRange(ctx context.Context, chunk utils.Chunk) (io.ReadCloser, bool, error) {
	return getRange(ctx, o.client, o.url, chunk)
}

func (o *httpOrigin) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("error creating GET request: %w", err)
	}
	resp, err := o.streamClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

type s3Origin struct {
	client *s3.Client
	bucket string
	key    string
}

func newS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	loaders := []func(*config.LoadOptions) error{
		// retries belong to the chunk-level policy
		config.WithRetryMaxAttempts(1),
	}
	if opts.Profile != "" {
		loaders = append(loaders, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.Region != "" {
		loaders = append(loaders, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func parseS3Base(base string) (string, string, error) {
	trimmed := strings.TrimPrefix(base, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid S3 origin: %s", base)
	}
	prefix := ""
	if len(parts) > 1 {
		prefix = strings.Trim(parts[1], "/")
	}
	return parts[0], prefix, nil
}

func (o *s3Origin) Describe() string {
	return fmt.Sprintf("s3://%s/%s", o.bucket, o.key)
}

func (o *s3Origin) Probe(ctx context.Context) error {
	_, err := o.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	})
	return err
}

func (o *s3Origin) OpenRange(ctx context.Context, chunk utils.Chunk) (io.ReadCloser, bool, error) {
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", chunk.Start, chunk.End)),
	})
	if err != nil {
		return nil, false, fmt.Errorf("error getting object range: %w", err)
	}
	return out.Body, true, nil
}

func (o *s3Origin) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("error getting object: %w", err)
	}
	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, nil
}
