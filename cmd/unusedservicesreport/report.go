package main

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"

	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/cache"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/report"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/sdkapimgr"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/worker"
)

type reportOptions struct {
	AccountId  string
	RuleNames  []string
	OutputFile string
	BucketName string // upload skipped when empty
	Prefix     string
}

type reportSummary struct {
	Resources   int
	ByRule      map[string]int
	ByType      map[string]int
	CacheHits   int32
	CacheMisses int32
	ObjectKey   string
}

// runReport collects the non compliant resources of every rule and writes them
// through a csv worker.
func runReport(ctx context.Context, awsClientMgr sdkapimgr.SdkApiMgr, options reportOptions) (reportSummary, error) {
	llog := zerolog.Ctx(ctx)
	if len(options.RuleNames) == 0 {
		return reportSummary{}, errors.New("at least one rule name is required")
	}

	configServiceApi, err := awsClientMgr.GetConfigServiceApi(options.AccountId)
	if err != nil {
		return reportSummary{}, err
	}
	iamApi, err := awsClientMgr.GetIamApi(options.AccountId)
	if err != nil {
		return reportSummary{}, err
	}

	detailsCache := cache.NewResourceDetailsCache()
	generator, err := report.NewGenerator(report.GeneratorConfig{
		ConfigServiceApi: configServiceApi,
		Resolvers:        report.NewDefaultResolverRegistry(iamApi, detailsCache),
	})
	if err != nil {
		return reportSummary{}, err
	}

	resources, err := generator.NonCompliantResources(ctx, options.RuleNames...)
	if err != nil {
		return reportSummary{}, err
	}

	summary := reportSummary{
		Resources:   len(resources),
		ByRule:      map[string]int{},
		ByType:      map[string]int{},
		CacheHits:   detailsCache.GetCacheHits(),
		CacheMisses: detailsCache.GetCacheMisses(),
	}
	for _, resource := range resources {
		summary.ByRule[resource.RuleName]++
		summary.ByType[resource.ResourceType]++
	}

	var (
		csvRequestChan = make(chan interface{}, 1)
		csvErrorChan   = make(chan error, 1)
		csvErrors      = []error{}
	)
	outputConfig := worker.OutputConfiguration{
		Headers:    report.CsvHeaders,
		Filename:   options.OutputFile,
		ObjectKey:  filepath.Base(options.OutputFile),
		Prefix:     options.Prefix,
		BucketName: options.BucketName,
		WriteLocal: true,
		Writes3:    options.BucketName != "",
	}
	if outputConfig.Writes3 {
		summary.ObjectKey = path.Join(options.Prefix, outputConfig.ObjectKey)
	}

	csvWorker, err := worker.NewCSVWorker(worker.CsvWorkerConfig{
		AccountId: options.AccountId,
		WorkerConfig: worker.WorkerConfig{
			Ctx:          ctx,
			Id:           "report csv worker",
			Wg:           new(sync.WaitGroup),
			RequestChan:  csvRequestChan,
			ErrorChan:    csvErrorChan,
			SdkClientMgr: awsClientMgr,
		},
		OutputConfig: outputConfig,
	})
	if err != nil {
		return reportSummary{}, err
	}

	errorWg := new(sync.WaitGroup)
	errorWg.Add(1)
	go func() {
		defer errorWg.Done()
		for err := range csvErrorChan {
			llog.Error().Err(err).Msg("error writing report")
			csvErrors = append(csvErrors, err)
		}
	}()

	for _, resource := range resources {
		csvRequestChan <- worker.CsvWorkerRequest{
			CsvRecord: resource.CsvRecord(),
		}
	}
	close(csvRequestChan)
	csvWorker.Worker.Wait()
	close(csvErrorChan)
	errorWg.Wait()

	if len(csvErrors) > 0 {
		return summary, fmt.Errorf("writing report: %w", errors.Join(csvErrors...))
	}
	llog.Info().Int("resources", summary.Resources).Int32("cacheHits", summary.CacheHits).Msg("report written")
	return summary, nil
}

// renderSummary renders resource counts per rule and per resource type.
func renderSummary(summary reportSummary) string {
	tableData := pterm.TableData{{"Group", "Name", "Resources"}}
	for _, rule := range sortedKeys(summary.ByRule) {
		tableData = append(tableData, []string{"rule", rule, fmt.Sprint(summary.ByRule[rule])})
	}
	for _, resourceType := range sortedKeys(summary.ByType) {
		tableData = append(tableData, []string{"resource type", resourceType, fmt.Sprint(summary.ByType[resourceType])})
	}
	tableData = append(tableData, []string{"total", "", fmt.Sprint(summary.Resources)})

	table := pterm.DefaultTable.
		WithHasHeader().
		WithBoxed().
		WithHeaderStyle(pterm.NewStyle(pterm.FgLightCyan)).
		WithData(tableData)

	rendered, _ := table.Srender()
	return rendered
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
