package datastore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/floedb/floe/utils"
	"github.com/rs/zerolog"
)

type S3DataStore struct {
	bucketName string
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
}

func NewS3DataStore() (*S3DataStore, error) {
	s3Config := &aws.Config{
		Region:      aws.String(utils.AWS_DEFAULT_REGION),
		Credentials: credentials.NewEnvCredentials(),
	}
	if utils.S3_ENDPOINT != "" {
		s3Config.Endpoint = aws.String(utils.S3_ENDPOINT)
		// minio and friends
		s3Config.S3ForcePathStyle = aws.Bool(true)
	}

	s3Session, err := session.NewSession(s3Config)
	if err != nil {
		return nil, fmt.Errorf("error making new session: %w", err)
	}

	return &S3DataStore{
		bucketName: utils.S3_BUCKET_NAME,
		uploader:   s3manager.NewUploader(s3Session),
		downloader: s3manager.NewDownloader(s3Session),
	}, nil
}

func (ds *S3DataStore) WriteFile(ctx context.Context, key string, byteStream io.Reader) (int64, error) {
	ctx = logger.WithContext(ctx)
	logger := zerolog.Ctx(ctx)

	countingReader := &countReader{r: byteStream}
	input := &s3manager.UploadInput{
		Bucket: aws.String(ds.bucketName),
		Key:    aws.String(key),
		Body:   countingReader,
	}

	s := time.Now()
	_, err := ds.uploader.UploadWithContext(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("error uploading to s3: %w", err)
	}

	d := time.Since(s)
	logger.Debug().Str("fileName", key).Int64("durationNS", d.Nanoseconds()).Str("durationHuman", d.String()).Msg("uploaded file to s3")

	return countingReader.n, nil
}

func (ds *S3DataStore) ReadFile(ctx context.Context, key string) ([]byte, error) {
	ctx = logger.WithContext(ctx)
	logger := zerolog.Ctx(ctx)

	buf := &aws.WriteAtBuffer{}

	s := time.Now()
	_, err := ds.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(ds.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("error downloading from s3: %w", err)
	}

	d := time.Since(s)
	logger.Debug().Str("fileName", key).Int64("durationNS", d.Nanoseconds()).Str("durationHuman", d.String()).Msg("downloaded file from s3")

	return buf.Bytes(), nil
}

func (ds *S3DataStore) Shutdown(_ context.Context) error {
	return nil
}

type countReader struct {
	r io.Reader
	n int64
}

func (cr *countReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}
