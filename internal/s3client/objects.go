package s3client

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const downloadBufferSize = 1024 * 1024

// StatObject returns the size of an object. Missing objects map to
// ErrObjectNotFound and permission failures to ErrAccessDenied.
func (s *Store) StatObject(ctx context.Context, bucket, key string) (int64, error) {
	headObj, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("error heading s3://%s/%s: %w", bucket, key, classify(err))
	}
	if headObj.ContentLength == nil {
		return 0, fmt.Errorf("object size is nil for s3://%s/%s", bucket, key)
	}
	return *headObj.ContentLength, nil
}

// OpenRange starts a ranged read of [start, end] (inclusive) and returns
// the response body stream. The caller owns closing it.
func (s *Store) OpenRange(ctx context.Context, bucket, key string, start, end int64) (io.ReadCloser, error) {
	result, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
	})
	if err != nil {
		return nil, fmt.Errorf("error getting range %d-%d of s3://%s/%s: %w", start, end, bucket, key, classify(err))
	}
	return result.Body, nil
}

// progressWriterAt forwards positioned writes and reports each write's
// length.
type progressWriterAt struct {
	writer io.WriterAt
	report func(int64)
}

func (pw *progressWriterAt) WriteAt(p []byte, off int64) (int, error) {
	n, err := pw.writer.WriteAt(p, off)
	if n > 0 && pw.report != nil {
		pw.report(int64(n))
	}
	return n, err
}

// DownloadSmall fetches a whole object in one stream, used below the
// small-object threshold where spinning up the worker pool is not worth
// it. Concurrency is pinned to 1 so bytes arrive in order.
func (s *Store) DownloadSmall(ctx context.Context, bucket, key string, w io.WriterAt, report func(int64)) (int64, error) {
	downloader := manager.NewDownloader(s.api, func(d *manager.Downloader) {
		d.PartSize = downloadBufferSize
		d.Concurrency = 1
	})
	n, err := downloader.Download(ctx, &progressWriterAt{writer: w, report: report}, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return n, fmt.Errorf("error downloading s3://%s/%s: %w", bucket, key, classify(err))
	}
	return n, nil
}
