package worker

import (
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/configservice"
	configservicetypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/shared"
)

// aws config accepts at most 100 evaluations per PutEvaluations call
const maxEvaluationBatchSize = 100

// EvaluationCsvHeaders are the columns of the csv mirror of sent evaluations.
var EvaluationCsvHeaders = []string{"resource_id", "resource_type", "compliance_type", "annotation", "ordering_timestamp"}

type ConfigEvaluationWorker struct {
	maxBatchSize            int
	accountId               string // account id to send config evaluations to
	configEvaluations       []configservicetypes.Evaluation
	resultToken             string           // result token for sending aws config evaluations
	testMode                bool             // config service boolean for testing
	csvWorkerRequestChannel chan interface{} // channel to send request to csv worker
	csvWorkerWg             *sync.WaitGroup  // wait group for csv worker
	csvWorkerEnabled        bool             // boolean to enable csv worker for writing results to local filesystem of s3
	sent                    int              // evaluations accepted by aws config
	Worker                  Worker           // worker interface
}

type ConfigEvaluationWorkerConfig struct {
	AccountId        string
	ResultToken      string
	TestMode         bool
	CsvWorkerEnabled bool
	CsvWorkerConfig  CsvWorkerConfig
	WorkerConfig     WorkerConfig
}

type ConfigEvaluationWorkerRequest struct {
	ConfigEvaluation configservicetypes.Evaluation
}

func NewConfigEvaluationWorker(config ConfigEvaluationWorkerConfig) (*ConfigEvaluationWorker, error) {

	// initalize worker interface
	worker, err := NewWorker(config.WorkerConfig)
	if err != nil {
		return nil, errors.New("invalid worker config: " + err.Error())
	}

	// validate aws account id
	if !shared.IsValidAwsAccountId(config.AccountId) {
		return nil, errors.New("invalid aws account id [" + config.AccountId + "]")
	}

	// check that result token is not empty if test mode is false
	if !config.TestMode && config.ResultToken == "" {
		return nil, errors.New("invalid result token")
	}

	// if csv worker is enabled, create a new csv worker
	if config.CsvWorkerEnabled {
		_, err := NewCSVWorker(config.CsvWorkerConfig)
		if err != nil {
			return nil, errors.New("invalid csv worker config: " + err.Error())
		}
	}

	configEvaluationWorker := &ConfigEvaluationWorker{
		maxBatchSize:      maxEvaluationBatchSize,
		accountId:         config.AccountId,
		configEvaluations: []configservicetypes.Evaluation{},
		resultToken:       config.ResultToken,
		testMode:          config.TestMode,
		csvWorkerEnabled:  config.CsvWorkerEnabled,
		Worker:            worker,
	}
	if config.CsvWorkerEnabled {
		configEvaluationWorker.csvWorkerRequestChannel = config.CsvWorkerConfig.WorkerConfig.RequestChan
		configEvaluationWorker.csvWorkerWg = config.CsvWorkerConfig.WorkerConfig.Wg
	}

	worker.SetRequestHandler(configEvaluationWorker) // set request handler
	worker.SetFinalizer(configEvaluationWorker)      // set finalizer
	worker.Start()

	return configEvaluationWorker, nil

}

// EvaluationCsvRecord renders an evaluation as a row under EvaluationCsvHeaders.
func EvaluationCsvRecord(evaluation configservicetypes.Evaluation) []string {
	timestamp := ""
	if evaluation.OrderingTimestamp != nil {
		timestamp = evaluation.OrderingTimestamp.Format(time.RFC3339)
	}
	return []string{
		aws.ToString(evaluation.ComplianceResourceId),
		aws.ToString(evaluation.ComplianceResourceType),
		string(evaluation.ComplianceType),
		aws.ToString(evaluation.Annotation),
		timestamp,
	}
}

func (cew *ConfigEvaluationWorker) Handle(params interface{}) {
	errorChan := cew.Worker.GetErrorChannel() // get error channel

	request, ok := params.(ConfigEvaluationWorkerRequest) // type assert request to config evaluation worker request
	if !ok {
		errorChan <- errors.New("config evaluation worker received unexpected request type")
		return
	}
	configEvaluation := request.ConfigEvaluation // get config evaluation from request

	cew.configEvaluations = append(cew.configEvaluations, configEvaluation) // append config evaluation to config evaluation batch

	// if csv worker is enabled, send request to csv worker channel
	if cew.csvWorkerEnabled {
		cew.csvWorkerRequestChannel <- CsvWorkerRequest{
			CsvRecord: EvaluationCsvRecord(configEvaluation),
		}
	}

	// if the length is max batch size, send to aws config service
	if len(cew.configEvaluations) == cew.maxBatchSize {
		cew.flush()
	}
}

// send the current batch to aws config
func (cew *ConfigEvaluationWorker) flush() {
	if len(cew.configEvaluations) == 0 {
		return
	}
	ctx := cew.Worker.GetContext()
	llog := shared.WorkerLog(ctx, cew.Worker.GetId())
	errorChan := cew.Worker.GetErrorChannel()
	batch := cew.configEvaluations
	cew.configEvaluations = []configservicetypes.Evaluation{} // clear config evaluation batch

	configClient, err := cew.Worker.GetSDKClientMgr().GetConfigServiceApi(cew.accountId)
	if err != nil {
		errorChan <- err
		return
	}

	_, err = configClient.PutEvaluations(ctx, &configservice.PutEvaluationsInput{
		Evaluations: batch,
		ResultToken: aws.String(cew.resultToken),
		TestMode:    cew.testMode,
	})
	if err != nil {
		llog.Error().Err(err).Int("evaluations", len(batch)).Msg("error sending config evaluations to aws config service")
		errorChan <- err // send error to error channel
		return
	}
	cew.sent += len(batch)
	llog.Info().Int("evaluations", len(batch)).Bool("testMode", cew.testMode).Msg("sent aws config evaluations")
}

func (cew *ConfigEvaluationWorker) Finalize() {
	// send any remaining config evaluations to aws config service
	cew.flush()

	// close csv worker request channel and wait for it to finish
	if cew.csvWorkerRequestChannel != nil {
		close(cew.csvWorkerRequestChannel)
	}
	if cew.csvWorkerWg != nil {
		cew.csvWorkerWg.Wait()
	}

	llog := shared.WorkerLog(cew.Worker.GetContext(), cew.Worker.GetId())
	llog.Info().Int("sent", cew.sent).Msg("worker successfully finalized")
}

// Sent returns how many evaluations aws config accepted.
func (cew *ConfigEvaluationWorker) Sent() int {
	return cew.sent
}
