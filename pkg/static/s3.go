package static

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/shashiranjanraj/serverkit/config"
)

// objectGetter is the part of *s3.Client the disk needs.
type objectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// s3Disk is the S3-compatible object storage driver.
// Works with AWS S3, MinIO, DigitalOcean Spaces, Cloudflare R2.
type s3Disk struct {
	client objectGetter
	bucket string
	prefix string
}

// NewS3 builds a disk over bucket/prefix using S3_REGION, S3_KEY, S3_SECRET
// and S3_ENDPOINT.
func NewS3(ctx context.Context, bucket, prefix string) (Disk, error) {
	if bucket == "" {
		return nil, errors.New("static/s3: bucket is empty")
	}

	opts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(config.S3Region()),
	}

	// Static credentials (required for MinIO / R2 / Spaces)
	if key, secret := config.S3Key(), config.S3Secret(); key != "" && secret != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, secret, ""),
		))
	}

	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("static/s3: load config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if endpoint := config.S3Endpoint(); endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true // required for MinIO
		})
	}

	return newS3Disk(s3.NewFromConfig(cfg, clientOpts...), bucket, prefix), nil
}

func newS3Disk(client objectGetter, bucket, prefix string) *s3Disk {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &s3Disk{client: client, bucket: bucket, prefix: prefix}
}

func (d *s3Disk) String() string { return "s3://" + d.bucket + "/" + d.prefix }

func (d *s3Disk) Open(ctx context.Context, name string) (*File, error) {
	key := d.prefix + strings.TrimPrefix(indexName(name), "/")

	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("static/s3: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("static/s3: read %s: %w", key, err)
	}

	var mod time.Time
	if out.LastModified != nil {
		mod = *out.LastModified
	}
	ct := aws.ToString(out.ContentType)
	if ct == "binary/octet-stream" || ct == "application/octet-stream" {
		ct = ""
	}
	return memFile(data, mod, ct, aws.ToString(out.ETag)), nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var re *smithyhttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == 404
}
