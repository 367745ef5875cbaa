package mock

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var (
	TestBucketName   = "test-bucket-name"
	TestErrorBucket  = "test-error-bucket-name"
	TestConfigKey    = "config.json"
	TestObjectPrefix = "test-prefix"
)

// MockS3Api keeps objects in memory, keyed by bucket/key.
type MockS3Api struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMockS3Api() *MockS3Api {
	return &MockS3Api{
		objects: map[string][]byte{},
	}
}

// SetObject stores content under bucket/key.
func (s *MockS3Api) SetObject(bucket string, key string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[bucket+"/"+key] = content
}

// Object returns the content stored under bucket/key.
func (s *MockS3Api) Object(bucket string, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.objects[bucket+"/"+key]
	return content, ok
}

// Keys returns every stored bucket/key.
func (s *MockS3Api) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := []string{}
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

// get object
func (s *MockS3Api) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	content, ok := s.Object(aws.ToString(params.Bucket), aws.ToString(params.Key))
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("the specified key does not exist")}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(content)),
	}, nil
}

// put object
func (s *MockS3Api) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if aws.ToString(params.Bucket) == TestErrorBucket {
		return nil, &s3types.NoSuchBucket{Message: aws.String("the specified bucket does not exist")}
	}
	content, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	s.SetObject(aws.ToString(params.Bucket), aws.ToString(params.Key), content)
	return &s3.PutObjectOutput{}, nil
}
