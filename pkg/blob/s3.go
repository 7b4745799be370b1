package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3 is the object-storage Store. Keys are full s3://bucket/key URIs so the
// same orchestrator code can mix local and remote locations. The client is
// built lazily from the default credential chain; S3_ENDPOINT and
// S3_PATH_STYLE support MinIO-style endpoints.
type S3 struct {
	once   sync.Once
	client *s3.Client
	err    error

	endpoint  string
	pathStyle bool
}

func NewS3() *S3 { return &S3{} }

// NewS3WithClient injects a prebuilt client, for tests.
func NewS3WithClient(client *s3.Client) *S3 {
	st := &S3{client: client}
	st.once.Do(func() {})
	return st
}

func (s *S3) getClient(ctx context.Context) (*s3.Client, error) {
	s.once.Do(func() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			s.err = err
			return
		}
		s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if s.endpoint != "" {
				o.BaseEndpoint = aws.String(s.endpoint)
			}
			if s.pathStyle {
				o.UsePathStyle = true
			}
		})
	})
	return s.client, s.err
}

func splitURI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not a valid s3 URI: %s", uri)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func (s *S3) List(ctx context.Context, locator string) ([]string, error) {
	bucket, keyPattern, err := splitURI(locator)
	if err != nil {
		return nil, err
	}
	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}

	// List under the longest literal prefix, then filter with path.Match
	// when the locator carries a glob pattern.
	prefix := keyPattern
	isGlob := false
	if i := strings.IndexAny(keyPattern, "*?["); i >= 0 {
		prefix = keyPattern[:i]
		isGlob = true
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if isGlob {
				if ok, _ := path.Match(keyPattern, key); !ok {
					continue
				}
			}
			keys = append(keys, fmt.Sprintf("s3://%s/%s", bucket, key))
		}
	}
	return keys, nil
}

func (s *S3) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := splitURI(uri)
	if err != nil {
		return nil, err
	}
	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", uri, err)
	}
	return out.Body, nil
}

func (s *S3) Write(ctx context.Context, uri string, r io.Reader) error {
	bucket, key, err := splitURI(uri)
	if err != nil {
		return err
	}
	client, err := s.getClient(ctx)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", uri, err)
	}
	return nil
}

func (s *S3) Remove(ctx context.Context, uri string) error {
	bucket, key, err := splitURI(uri)
	if err != nil {
		return err
	}
	client, err := s.getClient(ctx)
	if err != nil {
		return err
	}
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *S3) Join(base, name string) string {
	return strings.TrimSuffix(base, "/") + "/" + name
}
