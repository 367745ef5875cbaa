package worker

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	configServiceTypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/mock"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/sdkapimgr"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigEvaluationWorker(t *testing.T) {
	assertion := assert.New(t)

	var (
		invalidAwsAccountId = "invald-aws-account-id"
		validAwsAccountId   = "012345678910"
		newWorkerConfig     = func() WorkerConfig {
			return WorkerConfig{
				Ctx:          context.Background(),
				Id:           "configEvaluationWorker",
				Wg:           new(sync.WaitGroup),
				RequestChan:  make(chan interface{}, 1),
				ErrorChan:    make(chan error, 1),
				SdkClientMgr: sdkapimgr.NewAwsApiMgr(),
			}
		}
		newCsvWorkerConfig = func() CsvWorkerConfig {
			return CsvWorkerConfig{
				AccountId:    validAwsAccountId,
				WorkerConfig: newWorkerConfig(),
				OutputConfig: OutputConfiguration{
					Headers:    EvaluationCsvHeaders,
					Filename:   filepath.Join(t.TempDir(), "test.csv"),
					WriteLocal: true,
				},
			}
		}
		configEvaluationWorkerTests = []struct {
			name               string
			input              ConfigEvaluationWorkerConfig
			expectedValidValue bool
			expectedError      error
		}{
			{"invalid worker config", ConfigEvaluationWorkerConfig{
				AccountId:        validAwsAccountId,
				ResultToken:      "",
				TestMode:         true,
				CsvWorkerEnabled: true,
				CsvWorkerConfig:  newCsvWorkerConfig(),
				WorkerConfig:     WorkerConfig{},
			}, false, errors.New("invalid worker config")},
			{
				"invalid csv worker config", ConfigEvaluationWorkerConfig{
					AccountId:        validAwsAccountId,
					ResultToken:      "",
					TestMode:         true,
					CsvWorkerEnabled: true,
					CsvWorkerConfig:  CsvWorkerConfig{},
					WorkerConfig:     newWorkerConfig(),
				}, false, errors.New("invalid csv worker config")},
			{
				"invalid aws account id", ConfigEvaluationWorkerConfig{
					AccountId:        invalidAwsAccountId,
					ResultToken:      "",
					TestMode:         true,
					CsvWorkerEnabled: true,
					CsvWorkerConfig:  newCsvWorkerConfig(),
					WorkerConfig:     newWorkerConfig(),
				}, false, errors.New("invalid aws account id")},
			{
				"invalid result token", ConfigEvaluationWorkerConfig{
					AccountId:        validAwsAccountId,
					ResultToken:      "",
					TestMode:         false,
					CsvWorkerEnabled: true,
					CsvWorkerConfig:  newCsvWorkerConfig(),
					WorkerConfig:     newWorkerConfig(),
				}, false, errors.New("invalid result token")},
			{
				"valid config", ConfigEvaluationWorkerConfig{
					AccountId:        validAwsAccountId,
					ResultToken:      "valid_token",
					TestMode:         false,
					CsvWorkerEnabled: true,
					CsvWorkerConfig:  newCsvWorkerConfig(),
					WorkerConfig:     newWorkerConfig(),
				}, true, nil},
			{
				"valid config without csv worker", ConfigEvaluationWorkerConfig{
					AccountId:    validAwsAccountId,
					ResultToken:  "valid_token",
					WorkerConfig: newWorkerConfig(),
				}, true, nil},
		}
	)

	for _, test := range configEvaluationWorkerTests {
		t.Run(test.name, func(t *testing.T) {
			worker, err := NewConfigEvaluationWorker(test.input)
			if test.expectedValidValue {
				assertion.NotNil(worker)
				assertion.NoError(err)
				assertion.True(worker.Worker.IsRequestHandlerSet())
				assertion.True(worker.Worker.IsFinalizerSet())
				close(test.input.WorkerConfig.RequestChan)
				worker.Worker.Wait()
				assertion.Equal(0, worker.Sent())
			} else {
				assertion.Nil(worker)
				assertion.Error(err)
				assertion.Contains(err.Error(), test.expectedError.Error())
			}
		})
	}

}

func TestHandleConfigEvaluationRequest(t *testing.T) {
	assertion := assert.New(t)

	var (
		eventTime                  = time.Now()
		validResourceId            = "testResourceId"
		testAnnotation             = "Services 'lambda' have never been accessed"
		validAwsAccountId          = "012345678910"
		complianceResourceType     = shared.AwsIamRole
		complianceType             = configServiceTypes.ComplianceTypeNonCompliant
		configWorkerOutputFilename = filepath.Join(t.TempDir(), "configworkeroutput.csv")
		evaluationCount            = 250
		configApi                  = mock.NewMockConfigService()
		validWorkerConfig          = WorkerConfig{
			Ctx:          context.Background(),
			Id:           "configEvaluationWorker",
			Wg:           new(sync.WaitGroup),
			RequestChan:  make(chan interface{}, 1),
			ErrorChan:    make(chan error, 1),
			SdkClientMgr: sdkapimgr.NewAwsApiMgr(),
		}
		validCsvWorkerConfig = CsvWorkerConfig{
			AccountId: validAwsAccountId,
			WorkerConfig: WorkerConfig{
				Ctx:          context.Background(),
				Id:           "config evaluation csv worker",
				Wg:           new(sync.WaitGroup),
				RequestChan:  make(chan interface{}, 1),
				ErrorChan:    validWorkerConfig.ErrorChan,
				SdkClientMgr: validWorkerConfig.SdkClientMgr,
			},
			OutputConfig: OutputConfiguration{
				Headers:    EvaluationCsvHeaders,
				Filename:   configWorkerOutputFilename,
				WriteLocal: true,
			},
		}
	)

	// add mock config service api to sdk client manager
	err := validWorkerConfig.SdkClientMgr.SetApi(validAwsAccountId, sdkapimgr.ConfigService, configApi)
	require.NoError(t, err)

	configEvaluationWorker, err := NewConfigEvaluationWorker(ConfigEvaluationWorkerConfig{
		AccountId:        validAwsAccountId,
		ResultToken:      mock.TestResultToken,
		TestMode:         true,
		CsvWorkerEnabled: true,
		CsvWorkerConfig:  validCsvWorkerConfig,
		WorkerConfig:     validWorkerConfig,
	})
	require.NoError(t, err)

	for i := 0; i < evaluationCount; i++ {
		validWorkerConfig.RequestChan <- ConfigEvaluationWorkerRequest{
			ConfigEvaluation: configServiceTypes.Evaluation{
				ComplianceResourceId:   aws.String(validResourceId),
				ComplianceResourceType: aws.String(complianceResourceType),
				ComplianceType:         complianceType,
				OrderingTimestamp:      aws.Time(eventTime),
				Annotation:             aws.String(testAnnotation),
			},
		}
	}
	close(validWorkerConfig.RequestChan) // close request channel
	validWorkerConfig.Wg.Wait()          // wait for worker to complete
	close(validWorkerConfig.ErrorChan)   // close error channel
	for err := range validWorkerConfig.ErrorChan {
		assertion.NoError(err)
	}

	assertion.Equal([]int{100, 100, 50}, configApi.PutBatchSizes())
	assertion.Equal([]bool{true, true, true}, configApi.TestModes())
	assertion.Equal(evaluationCount, configEvaluationWorker.Sent())

	// read csv file and validate count and contents
	csvFile, err := os.Open(configWorkerOutputFilename)
	require.NoError(t, err)
	defer csvFile.Close()

	records, err := csv.NewReader(csvFile).ReadAll()
	assertion.NoError(err)
	assertion.Equal(evaluationCount, len(records)-1) // validate evaluation count
	assertion.Equal(EvaluationCsvHeaders, records[0])
	for _, record := range records[1:] {
		assertion.Equal([]string{
			validResourceId,
			shared.AwsIamRole,
			string(configServiceTypes.ComplianceTypeNonCompliant),
			testAnnotation,
			eventTime.Format(time.RFC3339),
		}, record)
	}
}

func TestConfigEvaluationWorkerPutError(t *testing.T) {
	assertion := assert.New(t)

	configApi := mock.NewMockConfigService()
	configApi.PutEvaluationsErr = errors.New("throttled")
	workerConfig := WorkerConfig{
		Ctx:          context.Background(),
		Id:           "configEvaluationWorker",
		Wg:           new(sync.WaitGroup),
		RequestChan:  make(chan interface{}, 1),
		ErrorChan:    make(chan error, 10),
		SdkClientMgr: sdkapimgr.NewAwsApiMgr(),
	}
	require.NoError(t, workerConfig.SdkClientMgr.SetApi(mock.TestAccountId, sdkapimgr.ConfigService, configApi))

	configEvaluationWorker, err := NewConfigEvaluationWorker(ConfigEvaluationWorkerConfig{
		AccountId:    mock.TestAccountId,
		ResultToken:  mock.TestResultToken,
		WorkerConfig: workerConfig,
	})
	require.NoError(t, err)

	workerConfig.RequestChan <- ConfigEvaluationWorkerRequest{
		ConfigEvaluation: NewEvaluation(shared.AwsIamUser, mock.TestUserId, configServiceTypes.ComplianceTypeCompliant, "", time.Time{}),
	}
	workerConfig.RequestChan <- "not an evaluation"
	close(workerConfig.RequestChan)
	workerConfig.Wg.Wait()
	close(workerConfig.ErrorChan)

	errs := []error{}
	for err := range workerConfig.ErrorChan {
		errs = append(errs, err)
	}
	assertion.Len(errs, 2)
	assertion.Equal(0, configEvaluationWorker.Sent())
}

func TestNewEvaluation(t *testing.T) {
	assertion := assert.New(t)

	evaluation := NewEvaluation(shared.AwsIamGroup, mock.TestGroupId, configServiceTypes.ComplianceTypeCompliant, "", time.Time{})
	assertion.Equal("N/A", aws.ToString(evaluation.Annotation))
	assertion.NotNil(evaluation.OrderingTimestamp)
	assertion.False(evaluation.OrderingTimestamp.IsZero())

	long := make([]byte, 400)
	for i := range long {
		long[i] = 'x'
	}
	evaluation = NewEvaluation(shared.AwsIamGroup, mock.TestGroupId, configServiceTypes.ComplianceTypeNonCompliant, string(long), time.Now())
	assertion.Len(aws.ToString(evaluation.Annotation), shared.MaxAnnotationLength)
	assertion.Equal(EvaluationCsvRecord(evaluation)[0], mock.TestGroupId)
}
