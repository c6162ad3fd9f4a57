package multicopy

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3API is the subset of the S3 client used for replication.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// NewS3Client builds an S3 client from static credentials. A non-empty
// endpoint switches to path-style addressing for S3-compatible stores.
func NewS3Client(region, endpoint, accessKey, secretKey string) *s3.Client {
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

// S3Copier replicates a file into an S3 bucket under timestamped generation
// keys, with the same naming and retention rules as the local Copier. Only
// file sources are supported.
type S3Copier struct {
	logger zerolog.Logger
	client S3API
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Copier creates an S3Copier writing below the given key prefix.
func NewS3Copier(logger zerolog.Logger, client S3API, bucket, prefix string) *S3Copier {
	return &S3Copier{
		logger: logger.With().Str("component", "multicopy-s3").Str("bucket", bucket).Logger(),
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
}

// Replicate uploads src as a new generation and deletes generations beyond
// opts.NumCopies, oldest first.
func (c *S3Copier) Replicate(ctx context.Context, src string, opts Options) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, src)
	}
	if info.IsDir() {
		return fmt.Errorf("cannot replicate folder %s to S3, only files are supported", src)
	}

	base, ext := splitName(src, false)
	if opts.TargetBaseName != "" {
		base = opts.TargetBaseName
	}

	now := c.now()
	generation := GenerationName(base, ext, now, opts.AppendTime)

	existing, err := c.listGenerations(ctx, base, ext)
	if err != nil {
		return err
	}

	copyNeeded := true
	if opts.MinPeriodDays > 0 && len(existing) > 0 {
		if last, ok := ParseGenerationDate(existing[0], base); ok {
			today := now.Truncate(24 * time.Hour)
			copyNeeded = int(today.Sub(last).Hours()/24) >= opts.MinPeriodDays
		}
	}

	if copyNeeded {
		if err := c.upload(ctx, src, c.prefix+generation); err != nil {
			if !opts.IgnoreErrors {
				return err
			}
			c.logger.Warn().Err(err).Str("key", c.prefix+generation).Msg("could not upload generation")
		}

		existing, err = c.listGenerations(ctx, base, ext)
		if err != nil {
			return err
		}
	} else {
		c.logger.Info().Str("key", c.prefix+generation).Msg("skipping upload, last generation is recent enough")
	}

	for _, name := range truncate(existing, opts.NumCopies) {
		key := c.prefix + name
		c.logger.Info().Str("key", key).Msg("deleting aged generation")
		if _, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		}); err != nil {
			if !opts.IgnoreErrors {
				return fmt.Errorf("delete generation %s: %w", key, err)
			}
			c.logger.Warn().Err(err).Str("key", key).Msg("could not delete generation")
		}
	}

	return nil
}

func (c *S3Copier) upload(ctx context.Context, src, key string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	c.logger.Info().Str("src", src).Str("key", key).Msg("uploading generation")
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// listGenerations returns generation names (keys with the copier prefix
// stripped) matching {base}_*{ext}, newest first.
func (c *S3Copier) listGenerations(ctx context.Context, base, ext string) ([]string, error) {
	var names []string

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.prefix + base + "_"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list generations: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), c.prefix)
			if strings.HasSuffix(name, ext) && !strings.Contains(name, "/") {
				names = append(names, name)
			}
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// LatestModified returns the newest LastModified among objects below prefix
// whose key matches namePrefix and suffix. Used by the archive checker for S3
// destinations.
func LatestModified(ctx context.Context, client S3API, bucket, prefix, namePrefix, suffix string) (time.Time, bool, error) {
	var latest time.Time
	found := false

	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix + namePrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if !strings.HasSuffix(name, suffix) || strings.Contains(name, "/") {
				continue
			}
			if obj.LastModified != nil && obj.LastModified.After(latest) {
				latest = *obj.LastModified
				found = true
			}
		}
	}

	return latest, found, nil
}
