package sequencing_run_gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"

	nm "github.com/mskcc/nats-messaging-go"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RunEventService consumes run lifecycle messages off NATS: a run-ready
// event starts case creation for the run, a sample-metrics event lands in
// the warehouse.
type RunEventService struct {
	caseService      *CaseService
	warehouseService *WarehouseService
	natsMessaging    *nm.Messaging
	validateOnly     bool
}

// RunEvent announces a finished sequencing run.
type RunEvent struct {
	RunID string `json:"runId"`
}

type RunAdapter struct {
	Event RunEvent
	Msg   *nm.Msg
}

type MetricsAdapter struct {
	Metrics []SampleMetrics
	Msg     *nm.Msg
}

const (
	runEventBufSize = 1
	metricsBufSize  = 1
)

func NewRunEventService(url, certPath, keyPath, consumer, password string, caseService *CaseService, warehouseService *WarehouseService, validateOnly bool) (*RunEventService, error) {
	natsMessaging, err := nm.NewSecureMessaging(url, certPath, keyPath, consumer, password)
	if err != nil {
		return nil, fmt.Errorf("Failed to create a nats messaging client: %q", err)
	}
	return &RunEventService{
		caseService:      caseService,
		warehouseService: warehouseService,
		natsMessaging:    natsMessaging,
		validateOnly:     validateOnly,
	}, nil
}

const (
	runMsg            = "Entering run_event_service.Run() loop iteration"
	runSubscribeMsg   = "Subscribing to run lifecycle topics"
	runLoopSpanMsg    = "Entering select on incoming run messages"
	processRunMsg     = "Attempting to create cases for a finished run"
	RunIdKey          = "Run ID"
	processRunErrMsg  = "Error creating cases for run"
	processRunSucMsg  = "Successfully created cases for run"
	insertMetricsMsg  = "Attempting to insert sample metrics in the warehouse"
	SampleKey         = "Sample"
	metricsInsertErr  = "Error inserting sample metrics into the warehouse"
	metricsInsertSuc  = "Successfully inserted sample metrics into the warehouse"
	notifyRunCasesErr = "Error notifying that the run's cases were created"
)

func (rs *RunEventService) Run(ctx context.Context, consumer, subject, runReadyFilter, metricsFilter, notificationURL string, tracer trace.Tracer) error {

	runCtx, runSpan := tracer.Start(ctx, runMsg)

	runReadyChan := make(chan RunAdapter, runEventBufSize)
	metricsChan := make(chan MetricsAdapter, metricsBufSize)
	runSpan.AddEvent(runSubscribeMsg)
	err := rs.subscribeToService(runCtx, runReadyChan, metricsChan, consumer, subject, runReadyFilter, metricsFilter, tracer)
	if err != nil {
		return err
	}

	var rrwg sync.WaitGroup
	var mwg sync.WaitGroup
	for {

		selectCtx, runLoopSpan := tracer.Start(runCtx, runLoopSpanMsg)

		select {
		case ra := <-runReadyChan:
			prCtx, prSpan := tracer.Start(selectCtx, processRunMsg)
			prSpan.SetAttributes(attribute.String(RunIdKey, ra.Event.RunID))
			rrwg.Add(1)
			go func() {
				defer rrwg.Done()
				err := rs.caseService.ProcessRun(prCtx, ra.Event.RunID, rs.validateOnly)
				if handleError(err, processRunErrMsg, prSpan) {
					return
				}
				prSpan.AddEvent(processRunSucMsg)
				if notificationURL != "" {
					err = NotifyRunProcessed(notificationURL, ra.Event.RunID)
					if handleError(err, notifyRunCasesErr, prSpan) {
						return
					}
				}
				ra.Msg.ProviderMsg.Ack()
			}()
		case ma := <-metricsChan:
			imCtx, imSpan := tracer.Start(selectCtx, insertMetricsMsg)
			imSpan.SetAttributes(attribute.String(RunIdKey, ma.Metrics[0].RunID))
			imSpan.SetAttributes(attribute.String(SampleKey, ma.Metrics[0].Sample))
			mwg.Add(1)
			go func() {
				defer mwg.Done()
				for _, metrics := range ma.Metrics {
					err := rs.warehouseService.InsertSampleMetrics(imCtx, metrics)
					if handleError(err, metricsInsertErr, imSpan) {
						return
					}
				}
				imSpan.AddEvent(metricsInsertSuc)
				ma.Msg.ProviderMsg.Ack()
			}()
		case <-ctx.Done():
			log.Println("Context canceled, returning...")
			rrwg.Wait()
			mwg.Wait()
			rs.natsMessaging.Shutdown()
			runLoopSpan.End()
			return nil
		}
		runLoopSpan.End()
	}
}

const (
	incomingRunReadyMsg      = "New run-ready event"
	processingRunReadyErrMsg = "Error unmarshaling run-ready event"
	processingRunReadySucMsg = "Successfully unmarshaled run-ready event"

	incomingMetricsMsg      = "Incoming sample metrics"
	processingMetricsErrMsg = "Error unmarshaling sample metrics"
	processingMetricsSucMsg = "Successfully unmarshaled sample metrics"
)

func (rs *RunEventService) subscribeToService(ctx context.Context, runReadyCh chan RunAdapter, metricsCh chan MetricsAdapter,
	consumer, subject, runReadyFilter, metricsFilter string, tracer trace.Tracer) error {
	err := rs.natsMessaging.Subscribe(consumer, subject, func(m *nm.Msg) {
		switch {
		case m.Subject == runReadyFilter:
			_, rrSpan := tracer.Start(ctx, incomingRunReadyMsg)
			re, err := unMarshal[RunEvent](string(m.Data))
			if handleError(err, processingRunReadyErrMsg, rrSpan) {
				break
			}
			rrSpan.AddEvent(processingRunReadySucMsg)
			rrSpan.End()
			runReadyCh <- RunAdapter{re, m}
		case m.Subject == metricsFilter:
			_, mSpan := tracer.Start(ctx, incomingMetricsMsg)
			sm, err := unMarshal[[]SampleMetrics](string(m.Data))
			if handleError(err, processingMetricsErrMsg, mSpan) {
				break
			}
			if len(sm) == 0 {
				mSpan.End()
				m.ProviderMsg.Ack()
				break
			}
			mSpan.AddEvent(processingMetricsSucMsg)
			mSpan.End()
			metricsCh <- MetricsAdapter{sm, m}
		default:
			// not interested in message, Ack it so we don't get it again
			m.ProviderMsg.Ack()
		}
	})
	return err
}

func unMarshal[T any](msgData string) (T, error) {
	var target T
	unquoted, err := strconv.Unquote(msgData)
	if err != nil {
		return target, err
	}
	if err := json.Unmarshal([]byte(unquoted), &target); err != nil {
		return target, err
	}
	return target, nil
}

func handleError(err error, message string, span trace.Span) bool {
	if err != nil {
		msg := fmt.Sprintf("%s: %v", message, err)
		span.AddEvent(msg)
		span.SetStatus(codes.Error, msg)
		span.End()
		return true
	}
	return false
}
