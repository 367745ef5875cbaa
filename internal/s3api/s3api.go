package s3api

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Api interface {
	// get object
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	// put object
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type _S3SDKClient struct {
	s3Client *s3.Client
}

func NewS3SDKClient(client *s3.Client) S3Api {
	return &_S3SDKClient{
		s3Client: client,
	}
}

// get object
func (c *_S3SDKClient) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return c.s3Client.GetObject(ctx, params, optFns...)
}

// put object
func (c *_S3SDKClient) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return c.s3Client.PutObject(ctx, params, optFns...)
}

// ReadObject downloads an object and returns its content.
func ReadObject(ctx context.Context, api S3Api, bucket string, key string) ([]byte, error) {
	if bucket == "" || key == "" {
		return nil, errors.New("bucket and key are required")
	}
	output, err := api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	if output.Body == nil {
		return nil, errors.New("empty object body for [" + bucket + "/" + key + "]")
	}
	defer output.Body.Close()
	return io.ReadAll(output.Body)
}

// WriteObject uploads content under bucket/key.
func WriteObject(ctx context.Context, api S3Api, bucket string, key string, content []byte) error {
	if bucket == "" || key == "" {
		return errors.New("bucket and key are required")
	}
	_, err := api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	})
	return err
}
