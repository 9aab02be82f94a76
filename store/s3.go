package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/guyvdb/tierdoc/fault"
)

var _ BlobStore = (*S3Store)(nil)

// S3_MAX_DELETE is the number of keys S3 accepts in one DeleteObjects call.
const S3_MAX_DELETE int = 1000

// S3Store is a BlobStore backed by Amazon S3.
type S3Store struct {
	client s3iface.S3API
}

func NewS3Store(client s3iface.S3API) *S3Store {
	return &S3Store{client: client}
}

func s3Error(err error, bucket, key string) error {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchBucket:
			return fmt.Errorf("%w: %s", fault.ErrBucketNotFound, bucket)
		case s3.ErrCodeNoSuchKey, "NotFound":
			return fmt.Errorf("%w: %s/%s", fault.ErrObjectNotFound, bucket, key)
		}
	}
	return err
}

func (s *S3Store) ListBuckets(ctx context.Context) ([]string, error) {
	out, err := s.client.ListBucketsWithContext(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("listing s3 buckets: %w", err)
	}
	names := make([]string, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		names = append(names, aws.StringValue(b.Name))
	}
	return names, nil
}

func (s *S3Store) CreateBucket(ctx context.Context, name string) error {
	slog.Debug("S3Store.CreateBucket() - create bucket", "bucket", name)
	_, err := s.client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeBucketAlreadyOwnedByYou {
			return nil
		}
		return fmt.Errorf("%w: %s: %v", fault.ErrBucketCreateFailed, name, err)
	}
	return nil
}

// DeleteBucket enumerates every object version and delete marker, deletes
// them in batches, then deletes the bucket.
func (s *S3Store) DeleteBucket(ctx context.Context, name string) error {
	slog.Debug("S3Store.DeleteBucket() - delete bucket", "bucket", name)

	versions := make([]*s3.ObjectIdentifier, 0)
	input := &s3.ListObjectVersionsInput{Bucket: aws.String(name)}
	for {
		out, err := s.client.ListObjectVersionsWithContext(ctx, input)
		if err != nil {
			return fmt.Errorf("listing versions of s3 bucket %s: %w", name, s3Error(err, name, ""))
		}
		for _, v := range out.Versions {
			versions = append(versions, &s3.ObjectIdentifier{Key: v.Key, VersionId: v.VersionId})
		}
		for _, m := range out.DeleteMarkers {
			versions = append(versions, &s3.ObjectIdentifier{Key: m.Key, VersionId: m.VersionId})
		}
		if !aws.BoolValue(out.IsTruncated) {
			break
		}
		input.KeyMarker = out.NextKeyMarker
		input.VersionIdMarker = out.NextVersionIdMarker
	}

	for start := 0; start < len(versions); start += S3_MAX_DELETE {
		end := min(start+S3_MAX_DELETE, len(versions))
		_, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(name),
			Delete: &s3.Delete{Objects: versions[start:end], Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("deleting objects of s3 bucket %s: %w", name, s3Error(err, name, ""))
		}
	}
	slog.Debug("S3Store.DeleteBucket() - deleted versions", "bucket", name, "count", len(versions))

	_, err := s.client.DeleteBucketWithContext(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)})
	if err != nil {
		return fmt.Errorf("deleting s3 bucket %s: %w", name, s3Error(err, name, ""))
	}
	return nil
}

func (s *S3Store) PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	slog.Debug("S3Store.PutObject() - put object", "bucket", bucket, "key", key, "size", len(body), "contentType", contentType)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObjectWithContext(ctx, input); err != nil {
		return fmt.Errorf("putting s3 object %s/%s: %w", bucket, key, s3Error(err, bucket, key))
	}
	return nil
}

func (s *S3Store) GetObject(ctx context.Context, bucket, key string) (Object, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Object{}, fmt.Errorf("fetching s3 object %s/%s: %w", bucket, key, s3Error(err, bucket, key))
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return Object{}, fmt.Errorf("reading s3 object %s/%s: %w", bucket, key, err)
	}
	return Object{Body: body, ContentType: aws.StringValue(out.ContentType)}, nil
}

func (s *S3Store) DeleteObject(ctx context.Context, bucket, key string) error {
	slog.Debug("S3Store.DeleteObject() - delete object", "bucket", bucket, "key", key)
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting s3 object %s/%s: %w", bucket, key, s3Error(err, bucket, key))
	}
	return nil
}

// ListObjects pages through the bucket with ListObjectsV2.
func (s *S3Store) ListObjects(ctx context.Context, bucket string) ([]string, error) {
	keys := make([]string, 0)
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	for {
		out, err := s.client.ListObjectsV2WithContext(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("listing s3 bucket %s: %w", bucket, s3Error(err, bucket, ""))
		}
		for _, o := range out.Contents {
			keys = append(keys, aws.StringValue(o.Key))
		}
		if !aws.BoolValue(out.IsTruncated) {
			return keys, nil
		}
		input.ContinuationToken = out.NextContinuationToken
	}
}
