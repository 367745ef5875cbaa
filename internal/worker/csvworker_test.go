package worker

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/mock"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/sdkapimgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCsvWorker(t *testing.T) {
	assertion := assert.New(t)

	var (
		invalidAwsAccountId = "invalid-aws-account-id"
		validAwsAccountId   = "012345678910"
		validWorkerConfig   = WorkerConfig{
			Ctx:          context.Background(),
			Id:           "testCsvWorker",
			Wg:           new(sync.WaitGroup),
			RequestChan:  make(chan interface{}, 1),
			ErrorChan:    make(chan error, 1),
			SdkClientMgr: sdkapimgr.NewAwsApiMgr(),
		}
		validOutputConfig = OutputConfiguration{
			Headers:    []string{"test"},
			Filename:   filepath.Join(t.TempDir(), "test.csv"),
			Prefix:     "testPrefix",
			BucketName: "test-bucket",
			WriteLocal: true,
			Writes3:    true,
		}
		csvWorkerTests = []struct {
			name               string
			input              CsvWorkerConfig
			expectedValidValue bool
			expectedError      error
		}{
			{
				"valid csv worker config", CsvWorkerConfig{
					AccountId:    validAwsAccountId,
					WorkerConfig: validWorkerConfig,
					OutputConfig: validOutputConfig,
				}, true, nil,
			},
			{
				"invalid account id", CsvWorkerConfig{
					AccountId:    invalidAwsAccountId,
					WorkerConfig: validWorkerConfig,
					OutputConfig: validOutputConfig,
				}, false, errors.New("invalid account id"),
			},
			{
				"invalid worker config", CsvWorkerConfig{
					AccountId:    validAwsAccountId,
					WorkerConfig: WorkerConfig{},
					OutputConfig: validOutputConfig,
				}, false, errors.New("invalid worker config"),
			},
			{
				"invalid output config - write to s3 & local set to false", CsvWorkerConfig{
					AccountId:    validAwsAccountId,
					WorkerConfig: validWorkerConfig,
					OutputConfig: OutputConfiguration{
						Headers:    []string{"test"},
						Filename:   "test.csv",
						Prefix:     "testPrefix",
						BucketName: "XXXXXXXXXXX",
					},
				}, false, errors.New("invalid output config"),
			},
			{
				"invalid output config - empty bucketname", CsvWorkerConfig{
					AccountId:    validAwsAccountId,
					WorkerConfig: validWorkerConfig,
					OutputConfig: OutputConfiguration{
						Headers:    []string{"test"},
						Filename:   "test.csv",
						Prefix:     "testPrefix",
						WriteLocal: true,
						Writes3:    true,
					},
				}, false, errors.New("invalid output config"),
			},
			{
				"invalid output config - empty headers", CsvWorkerConfig{
					AccountId:    validAwsAccountId,
					WorkerConfig: validWorkerConfig,
					OutputConfig: OutputConfiguration{
						Headers:    []string{},
						Filename:   "test.csv",
						BucketName: "XXXXXXXXXX",
						WriteLocal: true,
						Writes3:    true,
					},
				}, false, errors.New("invalid output config"),
			},
			{
				"invalid output config - empty filename", CsvWorkerConfig{
					AccountId:    validAwsAccountId,
					WorkerConfig: validWorkerConfig,
					OutputConfig: OutputConfiguration{
						Headers:    []string{"test"},
						Prefix:     "testPrefix",
						BucketName: "XXXXXXXXXX",
						WriteLocal: true,
						Writes3:    true,
					},
				}, false, errors.New("invalid output config"),
			},
		}
	)

	// add mock s3 api to sdk client mgr interface
	err := validWorkerConfig.SdkClientMgr.SetApi(validAwsAccountId, sdkapimgr.S3Service, mock.NewMockS3Api())
	assertion.NoError(err)

	// loop through test cases and create new csv worker for each test case
	for _, test := range csvWorkerTests {
		t.Run(test.name, func(t *testing.T) {
			csvWorker, err := NewCSVWorker(test.input)
			if test.expectedValidValue {
				assertion.NoError(err)
				assertion.NotNil(csvWorker)
			} else {
				assertion.Error(err)
				assertion.Nil(csvWorker)
				assertion.Contains(err.Error(), test.expectedError.Error())
			}
		})
	}

	close(validWorkerConfig.RequestChan) // close request channel to end worker loop
	validWorkerConfig.Wg.Wait()          // wait for worker to complete
	close(validWorkerConfig.ErrorChan)   // close error channel
	for err := range validWorkerConfig.ErrorChan {
		assertion.NoError(err)
	}
}

func TestCsvWorkerRun(t *testing.T) {
	assertion := assert.New(t)

	var (
		validAwsAccountId = "012345678910"
		s3Api             = mock.NewMockS3Api()
		outputFile        = filepath.Join(t.TempDir(), "nested", "test.csv")
		csvWorkerConfig   = CsvWorkerConfig{
			AccountId: validAwsAccountId,
			WorkerConfig: WorkerConfig{
				Ctx:          context.Background(),
				Id:           "testCsvWorker",
				Wg:           new(sync.WaitGroup),
				RequestChan:  make(chan interface{}, 1),
				ErrorChan:    make(chan error, 1),
				SdkClientMgr: sdkapimgr.NewAwsApiMgr(),
			},
			OutputConfig: OutputConfiguration{
				Headers:    []string{"name", "annotation"},
				Prefix:     "testPrefix",
				Filename:   outputFile,
				BucketName: mock.TestBucketName,
				WriteLocal: true,
				Writes3:    true,
			},
		}
		requests = []CsvWorkerRequest{
			{CsvRecord: []string{"role-a", "Services 'lambda', 'ec2' have never been accessed"}},
			{CsvRecord: []string{"role-b", "IAM entity has accessed all allowed services"}},
		}
	)

	err := csvWorkerConfig.WorkerConfig.SdkClientMgr.SetApi(validAwsAccountId, sdkapimgr.S3Service, s3Api)
	require.NoError(t, err)

	csvWorker, err := NewCSVWorker(csvWorkerConfig)
	require.NoError(t, err)

	for _, request := range requests {
		csvWorkerConfig.WorkerConfig.RequestChan <- request
	}

	close(csvWorkerConfig.WorkerConfig.RequestChan) // close request channel to end worker loop
	csvWorkerConfig.WorkerConfig.Wg.Wait()          // wait for worker to complete
	close(csvWorkerConfig.WorkerConfig.ErrorChan)   // close error channel
	for err := range csvWorkerConfig.WorkerConfig.ErrorChan {
		assertion.NoError(err)
	}

	assertion.Equal(len(requests), csvWorker.Records())

	expected := [][]string{
		{"name", "annotation"},
		requests[0].CsvRecord,
		requests[1].CsvRecord,
	}

	file, err := os.Open(outputFile)
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	assertion.NoError(err)
	assertion.Equal(expected, records)

	keys := s3Api.Keys()
	require.Len(t, keys, 1)
	assertion.True(strings.HasPrefix(keys[0], mock.TestBucketName+"/testPrefix/"))
	assertion.True(strings.HasSuffix(keys[0], "/nested/test.csv"))
	content, ok := s3Api.Object(mock.TestBucketName, strings.TrimPrefix(keys[0], mock.TestBucketName+"/"))
	assertion.True(ok)
	s3Records, err := csv.NewReader(strings.NewReader(string(content))).ReadAll()
	assertion.NoError(err)
	assertion.Equal(expected, s3Records)
}

func TestCsvWorkerS3Error(t *testing.T) {
	assertion := assert.New(t)

	config := CsvWorkerConfig{
		AccountId: "012345678910",
		WorkerConfig: WorkerConfig{
			Ctx:          context.Background(),
			Id:           "testCsvWorker",
			Wg:           new(sync.WaitGroup),
			RequestChan:  make(chan interface{}, 1),
			ErrorChan:    make(chan error, 2),
			SdkClientMgr: sdkapimgr.NewAwsApiMgr(),
		},
		OutputConfig: OutputConfiguration{
			Headers:    []string{"name"},
			Filename:   "errors.csv",
			BucketName: mock.TestErrorBucket,
			Writes3:    true,
		},
	}
	assertion.NoError(config.WorkerConfig.SdkClientMgr.SetApi("012345678910", sdkapimgr.S3Service, mock.NewMockS3Api()))

	_, err := NewCSVWorker(config)
	require.NoError(t, err)
	close(config.WorkerConfig.RequestChan)
	config.WorkerConfig.Wg.Wait()
	close(config.WorkerConfig.ErrorChan)

	errs := []error{}
	for err := range config.WorkerConfig.ErrorChan {
		errs = append(errs, err)
	}
	assertion.Len(errs, 1)
}

func TestCsvWorkerLocalDirError(t *testing.T) {
	assertion := assert.New(t)

	// parent of the output file is a regular file
	notADir := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(notADir, []byte("x"), 0o644))

	s3Api := mock.NewMockS3Api()
	config := CsvWorkerConfig{
		AccountId: "012345678910",
		WorkerConfig: WorkerConfig{
			Ctx:          context.Background(),
			Id:           "testCsvWorker",
			Wg:           new(sync.WaitGroup),
			RequestChan:  make(chan interface{}, 1),
			ErrorChan:    make(chan error, 2),
			SdkClientMgr: sdkapimgr.NewAwsApiMgr(),
		},
		OutputConfig: OutputConfiguration{
			Headers:    []string{"name"},
			Filename:   filepath.Join(notADir, "test.csv"),
			ObjectKey:  "test.csv",
			BucketName: mock.TestBucketName,
			WriteLocal: true,
			Writes3:    true,
		},
	}
	require.NoError(t, config.WorkerConfig.SdkClientMgr.SetApi("012345678910", sdkapimgr.S3Service, s3Api))

	_, err := NewCSVWorker(config)
	require.NoError(t, err)
	close(config.WorkerConfig.RequestChan)
	config.WorkerConfig.Wg.Wait()
	close(config.WorkerConfig.ErrorChan)

	errs := []error{}
	for err := range config.WorkerConfig.ErrorChan {
		errs = append(errs, err)
	}
	assertion.Len(errs, 1)

	// s3 upload still happens
	_, ok := s3Api.Object(mock.TestBucketName, "test.csv")
	assertion.True(ok)
}
