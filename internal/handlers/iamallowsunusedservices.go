package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	configservicetypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/rs/zerolog"

	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/annotation"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/awsretry"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/iamapi"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/s3api"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/sdkapimgr"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/shared"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/worker"
)

const DefaultUnusedServicesWorkers = 5

type Handler interface {
	Handle(ctx context.Context, params interface{}) error
}

// SdkApiMgrFactory builds the api manager once the accounts of the rule config are known.
type SdkApiMgrFactory func(ctx context.Context, mainAccountId string, awsAccounts []shared.AWSAccount) (sdkapimgr.SdkApiMgr, error)

// NewSdkApiMgrFactory returns a factory assuming member account roles with cfg.
func NewSdkApiMgrFactory(cfg aws.Config) SdkApiMgrFactory {
	return func(ctx context.Context, mainAccountId string, awsAccounts []shared.AWSAccount) (sdkapimgr.SdkApiMgr, error) {
		return sdkapimgr.InitAwsClientMgr(sdkapimgr.SDKApiMgrConfig{
			Cfg:           cfg,
			MainAccountId: mainAccountId,
			AwsAccounts:   awsAccounts,
		})
	}
}

type IamAllowsUnusedServicesEvent struct {
	ConfigEvent events.ConfigEvent
}

type IamAllowsUnusedServicesHandlerConfig struct {
	S3Api         s3api.S3Api // reads the rule config file
	BucketName    string
	ConfigFileKey string
	NewSdkApiMgr  SdkApiMgrFactory
	Workers       int              // unused services workers, DefaultUnusedServicesWorkers when 0
	Now           func() time.Time // output file timestamps
}

type _IamAllowsUnusedServicesHandler struct {
	s3Api         s3api.S3Api
	bucketName    string
	configFileKey string
	newSdkApiMgr  SdkApiMgrFactory
	workers       int
	now           func() time.Time
}

func NewIamAllowsUnusedServicesHandler(config IamAllowsUnusedServicesHandlerConfig) (Handler, error) {
	if config.S3Api == nil {
		return nil, errors.New("invalid handler config: s3 api is required")
	}
	if config.NewSdkApiMgr == nil {
		return nil, errors.New("invalid handler config: sdk api manager factory is required")
	}
	if config.Workers < 0 {
		return nil, errors.New("invalid handler config: workers cannot be negative")
	}
	if config.Workers == 0 {
		config.Workers = DefaultUnusedServicesWorkers
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &_IamAllowsUnusedServicesHandler{
		s3Api:         config.S3Api,
		bucketName:    config.BucketName,
		configFileKey: config.ConfigFileKey,
		newSdkApiMgr:  config.NewSdkApiMgr,
		workers:       config.Workers,
		now:           config.Now,
	}, nil
}

func (h *_IamAllowsUnusedServicesHandler) Handle(ctx context.Context, params interface{}) error {
	event, ok := params.(IamAllowsUnusedServicesEvent)
	if !ok {
		return errors.New("type assertion failure. event is not type iamallowsunusedservices event")
	}
	llog := zerolog.Ctx(ctx)
	configEvent := event.ConfigEvent

	if h.bucketName == "" || h.configFileKey == "" {
		return errors.New("env vars not set: " + shared.EnvBucketName + ", " + shared.EnvConfigFileKey)
	}
	llog.Info().Str("bucket", h.bucketName).Str("key", h.configFileKey).Msg("reading rule config")

	config, err := h.loadRuleConfig(ctx, configEvent.RuleParameters)
	if err != nil {
		return err
	}
	llog.Debug().Interface("config", config).Msg("rule config loaded")

	invokingEvent, err := ParseInvokingEvent(configEvent.InvokingEvent)
	if err != nil {
		return err
	}
	item := invokingEvent.ChangedItem()
	if item != nil && !shared.IsIamPrincipalType(item.ResourceType) {
		llog.Info().Str("resourceType", item.ResourceType).Msg("resource type not evaluated, skipping")
		return nil
	}

	mainAccountId := configEvent.AccountID
	awsClientMgr, err := h.newSdkApiMgr(ctx, mainAccountId, config.AWSAccounts)
	if err != nil {
		return err
	}

	orderingTimestamp := invokingEvent.OrderingTimestamp()
	if orderingTimestamp.IsZero() {
		orderingTimestamp = h.now()
	}

	p, err := h.startPipeline(ctx, pipelineInput{
		mainAccountId: mainAccountId,
		resultToken:   configEvent.ResultToken,
		config:        config,
		awsClientMgr:  awsClientMgr,
	})
	if err != nil {
		return err
	}

	dispatcher := principalDispatcher{
		requestChan:       p.principalChan,
		evaluationChan:    p.evaluationChan,
		excluded:          config.ExcludedPrincipalSet(),
		orderingTimestamp: orderingTimestamp,
	}

	if item != nil {
		llog.Info().
			Str("messageType", invokingEvent.MessageType).
			Str("resourceType", item.ResourceType).
			Str("resourceId", item.ResourceId).
			Str("status", item.ConfigurationItemStatus).
			Msg("evaluating changed principal")
		if err := dispatcher.dispatchItem(*item); err != nil {
			p.errorChan <- err
		}
	} else {
		h.evaluateAccounts(ctx, evaluateAccountsInput{
			accountIds:   config.AccountIds(mainAccountId),
			awsClientMgr: awsClientMgr,
			retry:        config.RetryPolicy(),
			errorChan:    p.errorChan,
			dispatcher:   dispatcher,
		})
	}

	summary := p.stop()
	llog.Info().
		Int("evaluations", summary.evaluations).
		Int("errors", summary.errors).
		Msg("iam allows unused services evaluation completed")
	return nil
}

func (h *_IamAllowsUnusedServicesHandler) loadRuleConfig(ctx context.Context, ruleParameters string) (RuleConfig, error) {
	content, err := s3api.ReadObject(ctx, h.s3Api, h.bucketName, h.configFileKey)
	if err != nil {
		return RuleConfig{}, err
	}
	config, err := ParseRuleConfig(h.configFileKey, content)
	if err != nil {
		return RuleConfig{}, err
	}
	if err := config.ApplyRuleParameters(ruleParameters); err != nil {
		return RuleConfig{}, err
	}
	if err := config.Validate(); err != nil {
		return RuleConfig{}, err
	}
	return config, nil
}

// timestampPrefix partitions output files by date.
func timestampPrefix(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("year=%d/month=%02d/day=%02d/%02d-%02d-%02d-",
		now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second())
}

// ResultsFilename returns the key, relative to the config prefix, of the results csv.
func ResultsFilename(now time.Time) string {
	return "results/" + timestampPrefix(now) + "results.csv"
}

// ErrorsFilename returns the key, relative to the config prefix, of the errors csv.
func ErrorsFilename(now time.Time) string {
	return "errors/" + timestampPrefix(now) + "errors.csv"
}

type pipelineInput struct {
	mainAccountId string
	resultToken   string
	config        RuleConfig
	awsClientMgr  sdkapimgr.SdkApiMgr
}

// pipeline wires principals -> unused services workers -> config evaluation worker -> results csv,
// with every error written to the errors csv.
type pipeline struct {
	principalChan     chan interface{}
	evaluationChan    chan interface{}
	errorChan         chan error
	errorCsvChan      chan interface{}
	errorCsvErrorChan chan error

	unusedServicesWg       *sync.WaitGroup
	configEvaluationWorker *worker.ConfigEvaluationWorker
	errorCsvWorker         worker.Worker
	errorDrainWg           *sync.WaitGroup
	errorCsvErrorWg        *sync.WaitGroup
	errors                 int
}

type pipelineSummary struct {
	evaluations int
	errors      int
}

func (h *_IamAllowsUnusedServicesHandler) startPipeline(ctx context.Context, input pipelineInput) (*pipeline, error) {
	llog := zerolog.Ctx(ctx)
	now := h.now()
	p := &pipeline{
		principalChan:     make(chan interface{}, h.workers),
		evaluationChan:    make(chan interface{}, 1),
		errorChan:         make(chan error, 1),
		errorCsvChan:      make(chan interface{}, 1),
		errorCsvErrorChan: make(chan error, 1),
		unusedServicesWg:  new(sync.WaitGroup),
		errorDrainWg:      new(sync.WaitGroup),
		errorCsvErrorWg:   new(sync.WaitGroup),
	}

	errorCsvWorker, err := worker.NewCSVWorker(worker.CsvWorkerConfig{
		AccountId: input.mainAccountId,
		WorkerConfig: worker.WorkerConfig{
			Ctx:          ctx,
			Id:           "error csv worker",
			Wg:           new(sync.WaitGroup),
			RequestChan:  p.errorCsvChan,
			ErrorChan:    p.errorCsvErrorChan,
			SdkClientMgr: input.awsClientMgr,
		},
		OutputConfig: worker.OutputConfiguration{
			Headers:    []string{"error"},
			Filename:   ErrorsFilename(now),
			Prefix:     input.config.Prefix,
			BucketName: h.bucketName,
			Writes3:    true,
		},
	})
	if err != nil {
		return nil, err
	}
	p.errorCsvWorker = errorCsvWorker.Worker

	// errors of the error csv worker can only be logged
	p.errorCsvErrorWg.Add(1)
	go func() {
		defer p.errorCsvErrorWg.Done()
		for err := range p.errorCsvErrorChan {
			llog.Error().Err(err).Msg("error from error csv worker")
		}
	}()

	p.errorDrainWg.Add(1)
	go func() {
		defer p.errorDrainWg.Done()
		for err := range p.errorChan {
			p.errors++
			llog.Error().Err(err).Msg("evaluation error")
			p.errorCsvChan <- worker.CsvWorkerRequest{
				CsvRecord: []string{err.Error()},
			}
		}
	}()

	configEvaluationWorker, err := worker.NewConfigEvaluationWorker(worker.ConfigEvaluationWorkerConfig{
		AccountId:        input.mainAccountId,
		ResultToken:      input.resultToken,
		TestMode:         input.config.TestMode,
		CsvWorkerEnabled: true,
		CsvWorkerConfig: worker.CsvWorkerConfig{
			AccountId: input.mainAccountId,
			WorkerConfig: worker.WorkerConfig{
				Ctx:          ctx,
				Id:           "config evaluation csv worker",
				Wg:           new(sync.WaitGroup),
				RequestChan:  make(chan interface{}, 1),
				ErrorChan:    p.errorChan,
				SdkClientMgr: input.awsClientMgr,
			},
			OutputConfig: worker.OutputConfiguration{
				Headers:    worker.EvaluationCsvHeaders,
				Filename:   ResultsFilename(now),
				Prefix:     input.config.Prefix,
				BucketName: h.bucketName,
				Writes3:    true,
			},
		},
		WorkerConfig: worker.WorkerConfig{
			Ctx:          ctx,
			Id:           "config evaluation worker",
			Wg:           new(sync.WaitGroup),
			RequestChan:  p.evaluationChan,
			ErrorChan:    p.errorChan,
			SdkClientMgr: input.awsClientMgr,
		},
	})
	if err != nil {
		p.abort()
		return nil, err
	}
	p.configEvaluationWorker = configEvaluationWorker

	for i := 0; i < h.workers; i++ {
		_, err := worker.NewUnusedServicesWorker(worker.UnusedServicesWorkerConfig{
			PolicyName:                           input.config.Policy,
			PolicyConfig:                         input.config.PolicyConfig(),
			FetcherConfig:                        input.config.FetcherConfig(),
			ConfigEvaluationWorkerRequestChannel: p.evaluationChan,
			WorkerConfig: worker.WorkerConfig{
				Ctx:          ctx,
				Id:           fmt.Sprintf("unused services worker %d", i),
				Wg:           p.unusedServicesWg,
				RequestChan:  p.principalChan,
				ErrorChan:    p.errorChan,
				SdkClientMgr: input.awsClientMgr,
			},
		})
		if err != nil {
			p.abort()
			return nil, err
		}
	}

	return p, nil
}

// stop closes the pipeline stage by stage and waits for every worker.
func (p *pipeline) stop() pipelineSummary {
	close(p.principalChan)
	p.unusedServicesWg.Wait()

	close(p.evaluationChan)
	p.configEvaluationWorker.Worker.Wait()

	close(p.errorChan)
	p.errorDrainWg.Wait()

	close(p.errorCsvChan)
	p.errorCsvWorker.Wait()

	close(p.errorCsvErrorChan)
	p.errorCsvErrorWg.Wait()

	return pipelineSummary{
		evaluations: p.configEvaluationWorker.Sent(),
		errors:      p.errors,
	}
}

// abort releases a partially started pipeline. Started unused services workers
// stop with the principal channel, the evaluation channel is closed only when
// its worker exists.
func (p *pipeline) abort() {
	close(p.principalChan)
	p.unusedServicesWg.Wait()
	if p.configEvaluationWorker != nil {
		close(p.evaluationChan)
		p.configEvaluationWorker.Worker.Wait()
	}
	close(p.errorChan)
	p.errorDrainWg.Wait()
	close(p.errorCsvChan)
	p.errorCsvWorker.Wait()
	close(p.errorCsvErrorChan)
	p.errorCsvErrorWg.Wait()
}

// principalDispatcher routes principals to the unused services workers, or
// straight to aws config when no access report is needed.
type principalDispatcher struct {
	requestChan       chan interface{}
	evaluationChan    chan interface{}
	excluded          map[string]bool
	orderingTimestamp time.Time
}

func (d principalDispatcher) dispatch(accountId string, resourceType string, resourceId string, principalArn string) {
	if d.excluded[principalArn] {
		d.evaluationChan <- worker.ConfigEvaluationWorkerRequest{
			ConfigEvaluation: worker.NewEvaluation(resourceType, resourceId, configservicetypes.ComplianceTypeCompliant, annotation.ExcludedPrincipal, d.orderingTimestamp),
		}
		return
	}
	d.requestChan <- worker.UnusedServicesWorkerRequest{
		AccountId:         accountId,
		ResourceType:      resourceType,
		ResourceId:        resourceId,
		PrincipalArn:      principalArn,
		OrderingTimestamp: d.orderingTimestamp,
	}
}

func (d principalDispatcher) dispatchItem(item ConfigurationItem) error {
	if item.ResourceId == "" {
		return errors.New("configuration item has no resource id")
	}
	if item.Deleted() {
		d.evaluationChan <- worker.ConfigEvaluationWorkerRequest{
			ConfigEvaluation: worker.NewEvaluation(item.ResourceType, item.ResourceId, configservicetypes.ComplianceTypeNotApplicable, annotation.PrincipalDeleted, d.orderingTimestamp),
		}
		return nil
	}
	principalArn := item.PrincipalArn()
	if principalArn == "" {
		return errors.New("configuration item [" + item.ResourceId + "] has no arn")
	}
	accountId, err := item.AccountId()
	if err != nil {
		return fmt.Errorf("configuration item [%s]: %w", item.ResourceId, err)
	}
	d.dispatch(accountId, item.ResourceType, item.ResourceId, principalArn)
	return nil
}

type evaluateAccountsInput struct {
	accountIds   []string
	awsClientMgr sdkapimgr.SdkApiMgr
	retry        awsretry.Policy
	errorChan    chan error
	dispatcher   principalDispatcher
}

// evaluateAccounts lists every role, user and group of each account, one go routine per account.
func (h *_IamAllowsUnusedServicesHandler) evaluateAccounts(ctx context.Context, input evaluateAccountsInput) {
	executionWg := new(sync.WaitGroup)
	for _, accountId := range input.accountIds {
		executionWg.Add(1)
		go func(accountId string) {
			defer executionWg.Done()
			evaluateAccount(ctx, accountId, input)
		}(accountId)
	}
	executionWg.Wait()
	zerolog.Ctx(ctx).Info().Int("accounts", len(input.accountIds)).Msg("all principals dispatched")
}

type listPrincipalsInput struct {
	accountId  string
	iamApi     iamapi.IamApi
	retry      awsretry.Policy
	dispatcher principalDispatcher
}

type principalLister func(ctx context.Context, input listPrincipalsInput) (int, error)

func evaluateAccount(ctx context.Context, accountId string, input evaluateAccountsInput) {
	llog := zerolog.Ctx(ctx).With().Str("accountId", accountId).Logger()
	llog.Info().Msg("listing principals")

	iamApi, err := input.awsClientMgr.GetIamApi(accountId)
	if err != nil {
		input.errorChan <- err
		return
	}

	listers := map[string]principalLister{
		shared.AwsIamRole:  listRoles,
		shared.AwsIamUser:  listUsers,
		shared.AwsIamGroup: listGroups,
	}
	wg := new(sync.WaitGroup)
	for resourceType, list := range listers {
		wg.Add(1)
		go func(resourceType string, list principalLister) {
			defer wg.Done()
			count, err := list(ctx, listPrincipalsInput{
				accountId:  accountId,
				iamApi:     iamApi,
				retry:      input.retry,
				dispatcher: input.dispatcher,
			})
			if err != nil {
				input.errorChan <- fmt.Errorf("account [%s]: %w", accountId, err)
			}
			llog.Info().Str("resourceType", resourceType).Int("principals", count).Msg("principals dispatched")
		}(resourceType, list)
	}
	wg.Wait()
}

func listRoles(ctx context.Context, input listPrincipalsInput) (int, error) {
	count := 0
	paginator := iam.NewListRolesPaginator(input.iamApi, &iam.ListRolesInput{})
	for paginator.HasMorePages() {
		var output *iam.ListRolesOutput
		err := awsretry.Do(ctx, input.retry, "ListRoles", func(ctx context.Context) error {
			var err error
			output, err = paginator.NextPage(ctx)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("error listing roles: %w", err)
		}
		for _, role := range output.Roles {
			input.dispatcher.dispatch(input.accountId, shared.AwsIamRole, aws.ToString(role.RoleId), aws.ToString(role.Arn))
			count++
		}
	}
	return count, nil
}

func listUsers(ctx context.Context, input listPrincipalsInput) (int, error) {
	count := 0
	paginator := iam.NewListUsersPaginator(input.iamApi, &iam.ListUsersInput{})
	for paginator.HasMorePages() {
		var output *iam.ListUsersOutput
		err := awsretry.Do(ctx, input.retry, "ListUsers", func(ctx context.Context) error {
			var err error
			output, err = paginator.NextPage(ctx)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("error listing users: %w", err)
		}
		for _, user := range output.Users {
			input.dispatcher.dispatch(input.accountId, shared.AwsIamUser, aws.ToString(user.UserId), aws.ToString(user.Arn))
			count++
		}
	}
	return count, nil
}

func listGroups(ctx context.Context, input listPrincipalsInput) (int, error) {
	count := 0
	paginator := iam.NewListGroupsPaginator(input.iamApi, &iam.ListGroupsInput{})
	for paginator.HasMorePages() {
		var output *iam.ListGroupsOutput
		err := awsretry.Do(ctx, input.retry, "ListGroups", func(ctx context.Context) error {
			var err error
			output, err = paginator.NextPage(ctx)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("error listing groups: %w", err)
		}
		for _, group := range output.Groups {
			input.dispatcher.dispatch(input.accountId, shared.AwsIamGroup, aws.ToString(group.GroupId), aws.ToString(group.Arn))
			count++
		}
	}
	return count, nil
}
