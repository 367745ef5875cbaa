package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/sdkapimgr"
	"github.com/rs/zerolog"
)

type Worker interface {
	// wait for worker to finish
	Wait()
	// start processing requests in a go routine
	Start()
	// process requests until the request channel is closed, then finalize
	Run()
	// set request handler for the worker
	SetRequestHandler(WorkerRequestHandler)
	// set finalizer for the worker
	SetFinalizer(WorkerFinalizer)
	// get sdk client mgr
	GetSDKClientMgr() sdkapimgr.SdkApiMgr
	// get execution context
	GetContext() context.Context
	// get id of worker
	GetId() string
	// get error channel
	GetErrorChannel() chan error
	// get wait group
	GetWaitGroup() *sync.WaitGroup
	// check if request handler is set
	IsRequestHandlerSet() bool
	// check if finalizer is set
	IsFinalizerSet() bool
}

type WorkerRequestHandler interface {
	// method each worker will invoke when processing a request.  Each worker type will implement their own version
	// of this method.
	Handle(request interface{})
}

type WorkerFinalizer interface {
	// method each worker will invoke after they have completed all request.  This method is for any cleaup activites
	// or final actions a worker needs to take prior to shutdown
	Finalize()
}

type _Worker struct {
	ctx            context.Context      // execution context
	id             string               // id of worker
	wg             *sync.WaitGroup      // wait group for worker
	requestChan    chan interface{}     // request channnel for worker
	errorChan      chan error           // error channel for worker
	requestHandler WorkerRequestHandler // function to invoke when processing requests
	finalizer      WorkerFinalizer      // function to invoke when completed processing all requests
	sdkapimgr      sdkapimgr.SdkApiMgr  // manages sdk clients for processing
	llog           zerolog.Logger
}

type WorkerConfig struct {
	Ctx          context.Context
	Id           string
	Wg           *sync.WaitGroup
	RequestChan  chan interface{}
	ErrorChan    chan error
	SdkClientMgr sdkapimgr.SdkApiMgr
}

// NewWorker validates the config. The worker does not consume requests until Start is called.
func NewWorker(config WorkerConfig) (Worker, error) {

	// check for nil values in config
	if config.Ctx == nil {
		config.Ctx = context.Background() // set default context if nil
	}

	if config.Id == "" {
		return nil, errors.New("id is required")
	}
	if config.Wg == nil {
		return nil, errors.New("wg is required")
	}
	if config.RequestChan == nil {
		return nil, errors.New("request channel is required")
	}
	if config.ErrorChan == nil {
		return nil, errors.New("error channel is required")
	}
	if config.SdkClientMgr == nil {
		return nil, errors.New("sdk client manager is required")
	}

	worker := &_Worker{
		ctx:         config.Ctx,
		id:          config.Id,
		wg:          config.Wg,
		requestChan: config.RequestChan,
		errorChan:   config.ErrorChan,
		sdkapimgr:   config.SdkClientMgr,
		llog:        zerolog.Ctx(config.Ctx).With().Str("worker", config.Id).Logger(),
	}

	return worker, nil
}

// start worker in go routine
func (w *_Worker) Start() {
	w.wg.Add(1) // increment wait group for worker
	go w.Run()
	w.llog.Debug().Msg("worker started")
}

// start processing request with the worker
func (w *_Worker) Run() {
	defer w.wg.Done()
	for request := range w.requestChan {
		if w.requestHandler == nil {
			w.llog.Warn().Msg("no request handler set, dropping request")
			continue
		}
		w.requestHandler.Handle(request) // process requests from request channel
	}
	w.llog.Debug().Msg("worker finished processing requests from buffer")
	if w.finalizer != nil {
		w.llog.Debug().Msg("worker invoking finalizer")
		w.finalizer.Finalize() // finalize worker after processing all requests
	}
	w.llog.Debug().Msg("worker exiting")
}

// set request handler for the worker
func (w *_Worker) SetRequestHandler(requestHandler WorkerRequestHandler) {
	w.requestHandler = requestHandler
}

// set finalizer for the worker
func (w *_Worker) SetFinalizer(finalizer WorkerFinalizer) {
	w.finalizer = finalizer
}

// get sdk client mgr
func (w *_Worker) GetSDKClientMgr() sdkapimgr.SdkApiMgr {
	return w.sdkapimgr
}

func (w *_Worker) GetContext() context.Context {
	return w.ctx
}

// get id
func (w *_Worker) GetId() string {
	return w.id
}

// get error channel
func (w *_Worker) GetErrorChannel() chan error {
	return w.errorChan
}

// check if request handler is set
func (w *_Worker) IsRequestHandlerSet() bool {
	return w.requestHandler != nil
}

// check if finalizer is set
func (w *_Worker) IsFinalizerSet() bool {
	return w.finalizer != nil
}

// get wait group
func (w *_Worker) GetWaitGroup() *sync.WaitGroup {
	return w.wg
}

// wait for worker
func (w *_Worker) Wait() {
	w.wg.Wait()
}
