package widget

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sebas/outdial/internal/outdial/endpoint"
	"github.com/sebas/outdial/internal/outdial/host"
)

// Outdial runs validate → dial → notify for the current input.
//
// It returns the dial response when the call was placed, and nil when the
// sequence stopped early. Stopping early is logged, not returned as an error.
// The only error returned is *NotifyError, which comes with the response
// of the call that was already placed.
func (w *Widget) Outdial(ctx context.Context) (*host.OutdialResponse, error) {
	slog.Debug("[Sequencer] Outdial triggered")

	w.mu.Lock()
	st := w.state
	opts := w.opts

	if !st.HasPhoneNumber() {
		w.lastOutcome = OutcomeSkipped
		w.mu.Unlock()
		slog.Error("[Sequencer] Outdial failed", "error", ErrNoPhoneNumber)
		w.log.Error("No phone number entered")
		return nil, nil
	}
	if w.phase.InFlight() {
		phase := w.phase
		w.mu.Unlock()
		slog.Warn("[Sequencer] Rejecting re-entrant trigger", "phase", phase, "error", ErrInProgress)
		w.log.Error("Outdial already in progress")
		return nil, nil
	}
	if opts.GateOnActiveCall && st.HasActiveCall {
		w.lastOutcome = OutcomeSkipped
		w.mu.Unlock()
		slog.Warn("[Sequencer] Outdial blocked", "interaction_id", st.InteractionID, "error", ErrActiveCall)
		w.log.Error(fmt.Sprintf("Outdial blocked: call %s already active", st.InteractionID))
		return nil, nil
	}
	w.setPhaseLocked(PhaseValidating)
	a := &attempt{
		id:        uuid.New().String(),
		phone:     strings.TrimSpace(st.PhoneNumber),
		param:     st.APIParameter,
		opts:      opts,
		validator: w.validator,
		notifier:  w.notifier,
	}
	w.mu.Unlock()

	ctx = endpoint.WithRequestID(ctx, a.id)

	slog.Debug("[Sequencer] Outdial parameters",
		"attempt", a.id,
		"phone_number", a.phone,
		"api_parameter", a.param,
		"has_active_call", st.HasActiveCall,
		"interaction_id", st.InteractionID,
	)

	resp, outcome, err := w.run(ctx, a)

	w.mu.Lock()
	w.setPhaseLocked(PhaseIdle)
	w.lastOutcome = outcome
	w.mu.Unlock()

	slog.Info("[Sequencer] Outdial finished", "attempt", a.id, "outcome", outcome)
	return resp, err
}

// attempt is one run of the sequence, with the inputs and collaborators
// captured when it was triggered.
type attempt struct {
	id        string
	phone     string
	param     string
	opts      Options
	validator Validator
	notifier  Notifier
}

func (w *Widget) run(ctx context.Context, a *attempt) (*host.OutdialResponse, Outcome, error) {
	// Step 1: pre-check
	w.log.Info("Validating outdial request...")
	verdict := w.validate(ctx, a)
	if !verdict.Allowed {
		slog.Error("[Sequencer] Pre-outdial validation failed",
			"attempt", a.id,
			"message", verdict.Message,
			"error", ErrValidationRejected,
		)
		w.log.Error(fmt.Sprintf("Outdial validation failed: %s", verdict.Message))
		return nil, OutcomeValidationRejected, nil
	}
	w.log.Success("Outdial validation successful")

	// Step 2: dial
	w.advance(PhaseDialing)
	w.log.Info(fmt.Sprintf("Attempting to outdial %s...", a.phone))
	slog.Info("[Sequencer] Starting outdial", "attempt", a.id, "destination", a.phone)

	resp, err := w.dial(ctx, a)
	if err != nil {
		dialErr := &DialError{Destination: a.phone, Cause: err}
		slog.Error("[Sequencer] Outdial failed", "attempt", a.id, "error", dialErr)
		slog.Debug("[Sequencer] Outdial error details",
			"attempt", a.id,
			"destination", a.phone,
			"error_type", fmt.Sprintf("%T", err),
			"message", err.Error(),
		)
		w.log.Error(fmt.Sprintf("Error initiating outdial: %v", err))
		return nil, OutcomeDialFailed, nil
	}
	w.log.Success(fmt.Sprintf("Outdial initiated successfully to %s", a.phone))
	slog.Info("[Sequencer] Outdial placed",
		"attempt", a.id,
		"interaction_id", resp.InteractionID,
		"status", resp.StatusCode,
	)

	// Step 3: post-notify; failure is surfaced but the call stays placed
	w.advance(PhaseNotifying)
	w.log.Info("Sending post-outdial notification...")
	if err := w.notify(ctx, a, resp); err != nil {
		notifyErr := &NotifyError{InteractionID: resp.InteractionID, Cause: err}
		slog.Error("[Sequencer] Post-outdial API call failed", "attempt", a.id, "error", err)
		w.log.Error(fmt.Sprintf("Post-outdial notification failed: %v", err))
		return resp, OutcomeNotifyFailed, notifyErr
	}
	w.log.Success("Post-outdial notification sent")

	return resp, OutcomeCompleted, nil
}

func (w *Widget) advance(next Phase) {
	w.mu.Lock()
	w.setPhaseLocked(next)
	w.mu.Unlock()
}

// validate resolves the pre-check into a verdict, applying the failure
// policy when the endpoint cannot give an answer.
func (w *Widget) validate(ctx context.Context, a *attempt) endpoint.Verdict {
	if a.validator == nil {
		slog.Debug("[Sequencer] No validation endpoint configured, skipping pre-check")
		return endpoint.Verdict{Allowed: true, Message: "Validation skipped"}
	}

	vctx, cancel := context.WithTimeout(ctx, a.opts.ValidateTimeout)
	defer cancel()

	verdict, err := a.validator.Validate(vctx, endpoint.ValidationRequest{
		PhoneNumber:  a.phone,
		APIParameter: a.param,
		AgentID:      a.opts.AgentID,
		Timestamp:    w.now().UTC(),
	})
	if err == nil {
		return verdict
	}

	slog.Error("[Sequencer] Pre-outdial API call failed",
		"error", err,
		"policy", a.opts.FailurePolicy,
	)
	return endpoint.Verdict{
		Allowed: a.opts.FailurePolicy == FailOpen,
		Message: fmt.Sprintf("API validation failed: %v", err),
	}
}

func (w *Widget) dial(ctx context.Context, a *attempt) (*host.OutdialResponse, error) {
	dctx, cancel := context.WithTimeout(ctx, a.opts.DialTimeout)
	defer cancel()

	req := host.NewOutdialRequest(a.phone, a.opts.EntryPointID, a.opts.OriginNumber)
	resp, err := w.host.StartOutdial(dctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = &host.OutdialResponse{}
	}
	return resp, nil
}

func (w *Widget) notify(ctx context.Context, a *attempt, resp *host.OutdialResponse) error {
	if a.notifier == nil {
		slog.Debug("[Sequencer] No notification endpoint configured, skipping")
		return nil
	}

	nctx, cancel := context.WithTimeout(ctx, a.opts.NotifyTimeout)
	defer cancel()

	result, err := a.notifier.Notify(nctx, endpoint.NotificationRequest{
		PhoneNumber:   a.phone,
		APIParameter:  a.param,
		AgentID:       a.opts.AgentID,
		OutdialResult: resp,
		Timestamp:     w.now().UTC(),
		Status:        endpoint.StatusInitiated,
	})
	if err != nil {
		return err
	}
	slog.Debug("[Sequencer] Post-outdial notification response", "body", string(result))
	return nil
}
