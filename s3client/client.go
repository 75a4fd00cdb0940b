// Package s3client mirrors the artifact directory to an S3 bucket so a
// trained model can be published once and pulled by every serving replica
// at startup. It is optional: without MRP_MODEL_BUCKET in the environment
// the registry stays purely local.
package s3client

import (
	"bytes"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/kelseyhightower/envconfig"

	"maternalcare.com/mrp/logger"
)

type EnvironmentConfig struct {
	BucketName  string `envconfig:"MRP_MODEL_BUCKET" default:""`
	KeyPrefix   string `envconfig:"MRP_MODEL_KEY_PREFIX" default:"models"`
	Region      string `envconfig:"MRP_AWS_REGION_NAME" default:"us-east-1"`
	AwsEndpoint string `envconfig:"MRP_AWS_ENDPOINT_URL" default:""`
	AccessKeyID string `envconfig:"MRP_AWS_ACCESS_ID" default:""`
	AccessKey   string `envconfig:"MRP_AWS_ACCESS_KEY" default:""`
}

var clientLogger = logger.NewLogger("S3Client")

type Client struct {
	sess   *session.Session
	bucket string
	prefix string
}

// FromEnvironment returns a configured client, or (nil, nil) when no
// bucket is set so callers can skip mirroring without special-casing.
func FromEnvironment() (*Client, error) {
	var env EnvironmentConfig
	if err := envconfig.Process("", &env); err != nil {
		return nil, err
	}
	if env.BucketName == "" {
		return nil, nil
	}
	return New(env)
}

func New(env EnvironmentConfig) (*Client, error) {
	cfg := aws.NewConfig().
		WithRegion(env.Region).
		WithMaxRetries(4)
	if env.AccessKeyID != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(env.AccessKeyID, env.AccessKey, ""))
	}
	if env.AwsEndpoint != "" {
		cfg = cfg.WithEndpoint(env.AwsEndpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		clientLogger.Error().Err(err).Msg("Could not initialize S3 session")
		return nil, err
	}
	clientLogger.Info().Str("bucket", env.BucketName).Msg("Artifact mirror enabled")
	return &Client{sess: sess, bucket: env.BucketName, prefix: env.KeyPrefix}, nil
}

func (client *Client) key(name string) string {
	return path.Join(client.prefix, name)
}

// Pull downloads one artifact file by name.
func (client *Client) Pull(name string) ([]byte, error) {
	downloader := s3manager.NewDownloader(client.sess)
	buf := aws.NewWriteAtBuffer([]byte{})
	size, err := downloader.Download(buf, &s3.GetObjectInput{
		Bucket: aws.String(client.bucket),
		Key:    aws.String(client.key(name)),
	})
	if err != nil {
		return nil, err
	}
	clientLogger.Debug().Str("file", name).Int64("bytes", size).Msg("Pulled artifact file")
	return buf.Bytes(), nil
}

// Push uploads one artifact file by name.
func (client *Client) Push(name string, data []byte) error {
	uploader := s3manager.NewUploader(client.sess)
	_, err := uploader.Upload(&s3manager.UploadInput{
		Bucket: aws.String(client.bucket),
		Key:    aws.String(client.key(name)),
		Body:   bytes.NewReader(data),
	})
	if err == nil {
		clientLogger.Debug().Str("file", name).Msg("Pushed artifact file")
	}
	return err
}

// List returns the artifact file names present under the configured prefix.
func (client *Client) List() ([]string, error) {
	svc := s3.New(client.sess)
	var names []string
	prefix := client.key("")
	err := svc.ListObjectsV2Pages(&s3.ListObjectsV2Input{
		Bucket: aws.String(client.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, object := range page.Contents {
			name := strings.TrimPrefix(*object.Key, prefix)
			name = strings.TrimPrefix(name, "/")
			if name != "" {
				names = append(names, name)
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}
