package worker

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path"
	"path/filepath"

	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/s3api"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/shared"
)

type _CSVWorker struct {
	accountId    string              // account id to use when writing to s3
	records      int                 // records written to csv
	buffer       *bytes.Buffer       // buffer for storing bytes
	csvWriter    *csv.Writer         // csv writer for writing to buffer
	outputConfig OutputConfiguration // output configuration for writing files to s3 or local filesystem
	Worker       Worker              // worker interface
}

type CsvWorkerConfig struct {
	AccountId    string       // account id to use when writing to s3
	WorkerConfig WorkerConfig // worker configuration
	OutputConfig OutputConfiguration
}

type OutputConfiguration struct {
	Headers    []string // headers for csv file
	Filename   string   // name of file to be written
	ObjectKey  string   // s3 key under prefix, filename when empty
	Prefix     string   // s3 prefix to use when writing to s3
	BucketName string   // name of s3 bucket
	WriteLocal bool     // write to local filesystem
	Writes3    bool     // write to s3
}

type CsvWorkerRequest struct {
	CsvRecord []string // string to write to csv file
}

// create new csv worker and start it
func NewCSVWorker(config CsvWorkerConfig) (*_CSVWorker, error) {
	if !shared.IsValidAwsAccountId(config.AccountId) {
		return nil, errors.New("invalid account id [" + config.AccountId + "]")
	}

	// check for valid ouptut configuration
	if !config.OutputConfig.WriteLocal && !config.OutputConfig.Writes3 {
		return nil, errors.New("invalid output configuration. writing to S3 & local file system set to false")
	}
	if config.OutputConfig.Writes3 && config.OutputConfig.BucketName == "" {
		return nil, errors.New("invalid output configuration. bucket name is empty")
	}
	if config.OutputConfig.Filename == "" {
		return nil, errors.New("invalid output configuration. filename is empty")
	}
	if len(config.OutputConfig.Headers) == 0 {
		return nil, errors.New("invalid output configuration. header is empty")
	}

	// create worker interface
	worker, err := NewWorker(config.WorkerConfig)
	// return errors
	if err != nil {
		return nil, errors.New("invalid worker config : " + err.Error())
	}

	buffer := new(bytes.Buffer)        // create new buffer
	csvWriter := csv.NewWriter(buffer) // create new csv writer that write to buffer

	// write headers to csv buffer
	if err := csvWriter.Write(config.OutputConfig.Headers); err != nil {
		return nil, err
	}

	csvWorker := &_CSVWorker{
		buffer:       buffer,
		csvWriter:    csvWriter,
		accountId:    config.AccountId,
		outputConfig: config.OutputConfig,
		Worker:       worker,
	}

	worker.SetRequestHandler(csvWorker) // set csv worker request handler
	worker.SetFinalizer(csvWorker)
	worker.Start()

	return csvWorker, nil
}

// handle requests
func (csvWorker *_CSVWorker) Handle(request interface{}) {
	errorChan := csvWorker.Worker.GetErrorChannel() // get error channel
	req, ok := request.(CsvWorkerRequest)           // type assert to csv worker request type
	if !ok {
		errorChan <- errors.New("csv worker received unexpected request type")
		return
	}
	// write record to buffer, send error to error channel if present
	if err := csvWorker.csvWriter.Write(req.CsvRecord); err != nil {
		errorChan <- err // send error to error channel
		return
	}
	csvWorker.records++
}

// finalize processing
func (csvWorker *_CSVWorker) Finalize() {
	ctx := csvWorker.Worker.GetContext()
	llog := shared.WorkerLog(ctx, csvWorker.Worker.GetId())
	errorChan := csvWorker.Worker.GetErrorChannel() // get error channel
	csvWriter := csvWorker.csvWriter                // get csv writer
	// flush csv writer
	csvWriter.Flush()

	// check for errors
	if err := csvWriter.Error(); err != nil {
		errorChan <- err // send error to error channel
	}
	finalBytes := csvWorker.buffer.Bytes() // get final bytes

	// write to local file system if specified in output configuration
	if csvWorker.outputConfig.WriteLocal {
		filename := csvWorker.outputConfig.Filename
		llog.Info().Str("file", filename).Int("records", csvWorker.records).Msg("writing csv to file")
		if err := writeLocalFile(filename, finalBytes); err != nil {
			llog.Error().Err(err).Str("file", filename).Msg("error writing to file")
			errorChan <- err // send error to error channel
		}
	}

	// write to s3 if specified in output configuration
	if csvWorker.outputConfig.Writes3 {
		objectKey := csvWorker.outputConfig.ObjectKey
		if objectKey == "" {
			objectKey = filepath.ToSlash(csvWorker.outputConfig.Filename)
		}
		fullObjName := path.Join(csvWorker.outputConfig.Prefix, objectKey)
		llog.Info().Str("bucket", csvWorker.outputConfig.BucketName).Str("key", fullObjName).Int("records", csvWorker.records).Msg("writing csv to s3")

		s3Client, err := csvWorker.Worker.GetSDKClientMgr().GetS3Api(csvWorker.accountId)
		if err != nil {
			errorChan <- err
			return
		}
		if err := s3api.WriteObject(ctx, s3Client, csvWorker.outputConfig.BucketName, fullObjName, finalBytes); err != nil {
			llog.Error().Err(err).Str("key", fullObjName).Msg("error writing to s3")
			errorChan <- err // send error to error channel
		}
	}
}

// Records returns the number of records written, header excluded.
func (csvWorker *_CSVWorker) Records() int {
	return csvWorker.records
}

// writeLocalFile writes content to filename, creating missing parent directories.
func writeLocalFile(filename string, content []byte) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(filename, content, 0o644)
}
