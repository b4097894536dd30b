package scenario

import (
	"context"
	"fmt"
	"time"

	"hl7-interop-bridge/internal/codec"
	"hl7-interop-bridge/internal/domain"
	coreerrors "hl7-interop-bridge/internal/errors"
)

// Transport hands a rendered message to its endpoint and returns the
// response: an ACK frame for MLLP, or the raw HTTP response body for FHIR.
// A non-nil error means the send itself failed (connection refused,
// timeout, protocol error); classification happens on the returned bytes.
type Transport interface {
	Send(ctx context.Context, endpoint *domain.Endpoint, payload []byte, protocol domain.Protocol) ([]byte, error)
}

// RunLog persists each run-step outcome as it completes.
type RunLog interface {
	RecordStep(ctx context.Context, run *domain.ScenarioRun, result domain.RunStepResult) error
}

// Replayer drives a materialized message list through an endpoint in
// order, sleeping until each step's scheduled time.
type Replayer struct {
	Transport Transport
	Log       RunLog
	SleepFunc func(d time.Duration)
	NowFunc   func() time.Time
}

// NewReplayer builds a Replayer over the given collaborators.
func NewReplayer(transport Transport, log RunLog, sleepFunc func(time.Duration), nowFunc func() time.Time) *Replayer {
	if sleepFunc == nil {
		sleepFunc = time.Sleep
	}
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &Replayer{Transport: transport, Log: log, SleepFunc: sleepFunc, NowFunc: nowFunc}
}

// Replay sends messages through endpoint in order. A step failing does not
// block the rest unless run.StopOnError, in which case every subsequent
// step is recorded skipped without being sent. run.DryRun renders the
// sleep/log behavior but never calls Transport.Send.
func (r *Replayer) Replay(ctx context.Context, run *domain.ScenarioRun, endpoint *domain.Endpoint, messages []RenderedMessage) {
	run.StartedAt = r.NowFunc()
	run.StepResults = make([]domain.RunStepResult, 0, len(messages))

	stopped := false
	for _, msg := range messages {
		if stopped || ctx.Err() != nil || run.Cancelled {
			r.appendResult(ctx, run, domain.RunStepResult{
				StepOrderIndex: msg.StepOrderIndex,
				Status:         domain.StepSkipped,
				Message:        "skipped: run stopped or cancelled before this step",
			})
			continue
		}

		r.sleepUntil(msg.ScheduledAt)

		result := domain.RunStepResult{StepOrderIndex: msg.StepOrderIndex, SentAt: r.NowFunc()}

		if run.DryRun {
			result.Status = domain.StepSuccess
			result.Message = "dry-run: rendered but not transmitted"
			r.appendResult(ctx, run, result)
			continue
		}

		response, err := r.Transport.Send(ctx, endpoint, msg.Bytes, msg.Protocol)
		if err != nil {
			result.Status = domain.StepError
			if ce, ok := err.(*coreerrors.CoreError); ok {
				result.ErrorKind = string(ce.Kind)
				result.Message = ce.Message
			} else {
				result.ErrorKind = "TRANSPORT_ERROR"
				result.Message = err.Error()
			}
			r.appendResult(ctx, run, result)
			if run.StopOnError {
				stopped = true
			}
			continue
		}

		result.Status, result.ErrorKind, result.ControlID, result.Message = classifyResponse(msg.Protocol, response)
		r.appendResult(ctx, run, result)
		if result.Status == domain.StepError && run.StopOnError {
			stopped = true
		}
	}

	now := r.NowFunc()
	run.FinishedAt = &now
	run.AggregateStatus = aggregateStatus(run.StepResults)
}

func (r *Replayer) sleepUntil(scheduled time.Time) {
	if scheduled.IsZero() {
		return
	}
	if delay := scheduled.Sub(r.NowFunc()); delay > 0 {
		r.SleepFunc(delay)
	}
}

func (r *Replayer) appendResult(ctx context.Context, run *domain.ScenarioRun, result domain.RunStepResult) {
	run.StepResults = append(run.StepResults, result)
	if r.Log != nil {
		_ = r.Log.RecordStep(ctx, run, result)
	}
}

// classifyResponse interprets the transport's response bytes: an HL7 ACK's
// MSA-1 for HL7v2 (AA is success, anything else is an AE/AR rejection), or
// unconditional success for FHIR (the transport already validated the HTTP
// status before returning).
func classifyResponse(protocol domain.Protocol, response []byte) (status domain.StepStatus, errorKind, controlID, message string) {
	if protocol == domain.ProtocolFHIR {
		return domain.StepSuccess, "", "", "accepted"
	}

	msg, err := codec.ParseMessage(response)
	if err != nil {
		return domain.StepError, string(coreerrors.KindACKError), "", "malformed ACK"
	}
	msa := msg.Segment("MSA")
	if msa == nil {
		return domain.StepError, string(coreerrors.KindACKError), "", "ACK missing MSA segment"
	}
	ackCode := msa.FieldRaw(1)
	controlID = msa.FieldRaw(2)
	if ackCode == "AA" {
		return domain.StepSuccess, "", controlID, "AA"
	}
	return domain.StepError, string(coreerrors.KindACKRejected), controlID, fmt.Sprintf("ACK %s", ackCode)
}

func aggregateStatus(results []domain.RunStepResult) domain.RunStatus {
	if len(results) == 0 {
		return domain.RunSuccess
	}
	successCount, errorCount := 0, 0
	for _, r := range results {
		switch r.Status {
		case domain.StepSuccess:
			successCount++
		case domain.StepError:
			errorCount++
		}
	}
	switch {
	case errorCount == 0:
		return domain.RunSuccess
	case successCount == 0:
		return domain.RunError
	default:
		return domain.RunPartial
	}
}
