package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	miniogo "github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/segstore/blobstore"
	"github.com/hupe1980/segstore/blobstore/minio"
	"github.com/hupe1980/segstore/blobstore/s3"
	"github.com/hupe1980/segstore/config"
)

// openBlobStore builds the publish target named by pc.Backend.
func openBlobStore(ctx context.Context, pc config.PublishConfig) (blobstore.BlobStore, error) {
	switch pc.Backend {
	case config.BackendLocal:
		return blobstore.NewLocalStore(pc.Dir), nil

	case config.BackendS3:
		var loadOpts []func(*awsconfig.LoadOptions) error
		if pc.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(pc.Region))
		}
		if pc.AccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				awscreds.NewStaticCredentialsProvider(pc.AccessKey, pc.SecretKey, "")))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if pc.Endpoint != "" {
				o.BaseEndpoint = aws.String(pc.Endpoint)
				o.UsePathStyle = true
			}
		})
		return s3.NewStore(client, pc.Bucket, pc.Prefix), nil

	case config.BackendMinio:
		client, err := miniogo.New(pc.Endpoint, &miniogo.Options{
			Creds:  miniocreds.NewStaticV4(pc.AccessKey, pc.SecretKey, ""),
			Secure: pc.UseSSL,
			Region: pc.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("create minio client: %w", err)
		}
		return minio.NewStore(client, pc.Bucket, pc.Prefix), nil

	default:
		return nil, fmt.Errorf("unknown publish backend %q", pc.Backend)
	}
}
