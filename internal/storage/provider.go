// Package storage manages the file storage provider used for uploads.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hadmean/hadmean/internal/schemaform"
)

// Config is a provider configuration as submitted by the dashboard.
type Config map[string]any

// Provider describes a storage backend. Connect checks that the
// configuration reaches a usable store.
type Provider struct {
	Key                 string
	Title               string
	Description         string
	ConfigurationSchema schemaform.Schema
	Connect             func(ctx context.Context, config Config) error
}

var required = []schemaform.FieldValidation{{ValidationType: schemaform.Required}}

// Providers returns the built-in providers.
func Providers() []Provider {
	return []Provider{Local(), S3()}
}

// Local stores files in a directory of the server.
func Local() Provider {
	return Provider{
		Key:         "local",
		Title:       "Local Directory",
		Description: "Store uploads on the server disk",
		ConfigurationSchema: schemaform.Schema{
			{Name: "directory", Type: schemaform.TypeText, Validations: required},
		},
		Connect: func(_ context.Context, config Config) error {
			dir := str(config, "directory")
			info, err := os.Stat(dir)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			probe, err := os.CreateTemp(dir, ".hadmean-probe-*")
			if err != nil {
				return fmt.Errorf("%s is not writable: %w", dir, err)
			}
			name := probe.Name()
			_ = probe.Close()
			return os.Remove(filepath.Clean(name))
		},
	}
}

// S3 stores files in an S3 compatible bucket.
func S3() Provider {
	return Provider{
		Key:         "s3",
		Title:       "S3",
		Description: "Store uploads in an S3 compatible bucket",
		ConfigurationSchema: schemaform.Schema{
			{Name: "accessKeyId", Type: schemaform.TypeText, Label: "Access Key ID", Validations: required},
			{Name: "secretAccessKey", Type: schemaform.TypePassword, Label: "Secret Access Key", Validations: required},
			{Name: "region", Type: schemaform.TypeText, Validations: required},
			{Name: "bucket", Type: schemaform.TypeText, Validations: required},
			{Name: "endpoint", Type: schemaform.TypeURL, Label: "Custom Endpoint"},
		},
		Connect: func(ctx context.Context, config Config) error {
			client, err := newS3Client(ctx, config)
			if err != nil {
				return err
			}
			_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(str(config, "bucket"))})
			return err
		},
	}
}

func newS3Client(ctx context.Context, config Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(str(config, "region")),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			str(config, "accessKeyId"), str(config, "secretAccessKey"), "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	endpoint := str(config, "endpoint")
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func str(config Config, key string) string {
	v, _ := config[key].(string)
	return v
}
