package widget

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sebas/outdial/internal/outdial/activity"
	"github.com/sebas/outdial/internal/outdial/endpoint"
	"github.com/sebas/outdial/internal/outdial/host"
)

type fakeValidator struct {
	calls   int
	last    endpoint.ValidationRequest
	verdict endpoint.Verdict
	err     error
}

func (f *fakeValidator) Validate(ctx context.Context, req endpoint.ValidationRequest) (endpoint.Verdict, error) {
	f.calls++
	f.last = req
	return f.verdict, f.err
}

type fakeNotifier struct {
	calls int
	last  endpoint.NotificationRequest
	err   error
}

func (f *fakeNotifier) Notify(ctx context.Context, req endpoint.NotificationRequest) (json.RawMessage, error) {
	f.calls++
	f.last = req
	return json.RawMessage(`{}`), f.err
}

type fakeDialer struct {
	mu    sync.Mutex
	calls int
	last  host.OutdialRequest
	resp  *host.OutdialResponse
	err   error
	block chan struct{}
}

func (f *fakeDialer) StartOutdial(ctx context.Context, req host.OutdialRequest) (*host.OutdialResponse, error) {
	f.mu.Lock()
	f.calls++
	f.last = req
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.resp, f.err
}

func (f *fakeDialer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// failingTasks is a host whose task query always fails.
type failingTasks struct {
	*host.Local
}

func (failingTasks) TaskMap(ctx context.Context) (map[string]host.Task, error) {
	return nil, errors.New("desktop unreachable")
}

// gatedTasks is a host whose task query blocks until release is closed.
type gatedTasks struct {
	*host.Local
	tasks   map[string]host.Task
	entered chan struct{}
	release chan struct{}
}

func (g gatedTasks) TaskMap(ctx context.Context) (map[string]host.Task, error) {
	close(g.entered)
	<-g.release
	return g.tasks, nil
}

// ctxDialer blocks until the dial context is done.
type ctxDialer struct{}

func (ctxDialer) StartOutdial(ctx context.Context, req host.OutdialRequest) (*host.OutdialResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fixture struct {
	w         *Widget
	host      *host.Local
	dialer    *fakeDialer
	validator *fakeValidator
	notifier  *fakeNotifier
	log       *activity.Log
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		dialer:    &fakeDialer{resp: &host.OutdialResponse{InteractionID: "call-1", StatusCode: 200}},
		validator: &fakeValidator{verdict: endpoint.Verdict{Allowed: true, Message: "ok"}},
		notifier:  &fakeNotifier{},
		log:       activity.NewLog(50),
	}
	f.host = host.NewLocal(f.dialer, nil)
	if opts.EntryPointID == "" {
		opts.EntryPointID = "ep-1"
	}
	if opts.OriginNumber == "" {
		opts.OriginNumber = "+14445550000"
	}
	if opts.AgentID == "" {
		opts.AgentID = "agent-1"
	}
	f.w = New(Config{
		Options:   opts,
		Host:      f.host,
		Validator: f.validator,
		Notifier:  f.notifier,
		Log:       f.log,
	})
	return f
}

func (f *fixture) messages(sev activity.Severity) []string {
	var out []string
	for _, e := range f.log.Entries() {
		if e.Severity == sev {
			out = append(out, e.Message)
		}
	}
	return out
}

func TestEnabledTracksTrimmedPhoneNumber(t *testing.T) {
	f := newFixture(Options{})

	tests := []struct {
		input string
		want  bool
	}{
		{"", false},
		{"+15551234", true},
		{"   ", false},
		{" 555 ", true},
		{"", false},
	}
	for _, tt := range tests {
		f.w.SetPhoneNumber(tt.input)
		if got := f.w.Enabled(); got != tt.want {
			t.Errorf("SetPhoneNumber(%q); Enabled() = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestEnabledIgnoresCallStateByDefault(t *testing.T) {
	f := newFixture(Options{})
	f.w.Connect(context.Background())
	f.w.SetPhoneNumber("+1555")
	f.host.Emit(context.Background(), host.ContactEvent{Name: host.EventContact, Data: host.EventData{InteractionID: "abc"}})

	if !f.w.Enabled() {
		t.Error("Enabled() = false during active call, want true when gating is off")
	}
}

func TestGateOnActiveCall(t *testing.T) {
	f := newFixture(Options{GateOnActiveCall: true})
	f.w.Connect(context.Background())
	f.w.SetPhoneNumber("+1555")
	f.host.Emit(context.Background(), host.ContactEvent{Name: host.EventContact, Data: host.EventData{InteractionID: "abc"}})

	if f.w.Enabled() {
		t.Error("Enabled() = true during active call with gating on")
	}

	resp, err := f.w.Outdial(context.Background())
	if resp != nil || err != nil {
		t.Errorf("Outdial() = %v, %v, want nil, nil", resp, err)
	}
	if f.validator.calls != 0 || f.dialer.Calls() != 0 {
		t.Errorf("calls = validate %d dial %d, want none", f.validator.calls, f.dialer.Calls())
	}
	if got := f.w.Snapshot().LastOutcome; got != OutcomeSkipped {
		t.Errorf("LastOutcome = %v, want Skipped", got)
	}
}

func TestOutdialWithoutPhoneNumber(t *testing.T) {
	f := newFixture(Options{})
	f.w.SetPhoneNumber("  ")

	resp, err := f.w.Outdial(context.Background())
	if resp != nil || err != nil {
		t.Errorf("Outdial() = %v, %v, want nil, nil", resp, err)
	}

	entries := f.log.Entries()
	if len(entries) != 1 || entries[0].Severity != activity.SeverityError || entries[0].Message != "No phone number entered" {
		t.Errorf("log = %+v, want single error entry", entries)
	}
	if f.validator.calls != 0 || f.dialer.Calls() != 0 || f.notifier.calls != 0 {
		t.Error("expected no network or host calls")
	}
}

func TestOutdialValidationRejected(t *testing.T) {
	f := newFixture(Options{})
	f.validator.verdict = endpoint.Verdict{Allowed: false, Message: "X"}
	f.w.SetPhoneNumber("+1555")

	resp, err := f.w.Outdial(context.Background())
	if resp != nil || err != nil {
		t.Errorf("Outdial() = %v, %v, want nil, nil", resp, err)
	}
	if f.dialer.Calls() != 0 {
		t.Errorf("dialer calls = %d, want 0", f.dialer.Calls())
	}
	errs := f.messages(activity.SeverityError)
	if len(errs) != 1 || errs[0] != "Outdial validation failed: X" {
		t.Errorf("error log = %v", errs)
	}
	if got := f.w.Snapshot().LastOutcome; got != OutcomeValidationRejected {
		t.Errorf("LastOutcome = %v, want ValidationRejected", got)
	}
}

func TestOutdialSuccess(t *testing.T) {
	f := newFixture(Options{})
	f.w.SetPhoneNumber(" +15551234 ")
	f.w.SetAPIParameter("campaign-9")

	resp, err := f.w.Outdial(context.Background())
	if err != nil {
		t.Fatalf("Outdial() error = %v", err)
	}
	if resp != f.dialer.resp {
		t.Errorf("Outdial() = %v, want dial response", resp)
	}

	if f.validator.last.PhoneNumber != "+15551234" || f.validator.last.APIParameter != "campaign-9" || f.validator.last.AgentID != "agent-1" {
		t.Errorf("validation request = %+v", f.validator.last)
	}

	req := f.dialer.last
	if req.Destination != "+15551234" || req.EntryPointID != "ep-1" || req.Origin != "+14445550000" {
		t.Errorf("dial request = %+v", req)
	}
	if req.Direction != host.DirectionOutbound || req.OutboundType != host.OutboundTypeOutdial || req.MediaType != host.MediaTypeTelephony {
		t.Errorf("dial request fixed fields = %+v", req)
	}

	if f.notifier.calls != 1 {
		t.Fatalf("notifier calls = %d, want 1", f.notifier.calls)
	}
	if f.notifier.last.OutdialResult != resp || f.notifier.last.Status != "initiated" {
		t.Errorf("notification = %+v", f.notifier.last)
	}

	snap := f.w.Snapshot()
	if snap.Phase != PhaseIdle || snap.LastOutcome != OutcomeCompleted {
		t.Errorf("Snapshot() phase=%v outcome=%v", snap.Phase, snap.LastOutcome)
	}
	if len(f.messages(activity.SeverityError)) != 0 {
		t.Errorf("unexpected errors: %v", f.messages(activity.SeverityError))
	}
}

func TestOutdialDialFailure(t *testing.T) {
	f := newFixture(Options{})
	f.dialer.resp = nil
	f.dialer.err = errors.New("486 Busy Here")
	f.w.SetPhoneNumber("+1555")

	resp, err := f.w.Outdial(context.Background())
	if resp != nil || err != nil {
		t.Errorf("Outdial() = %v, %v, want nil, nil", resp, err)
	}
	if f.notifier.calls != 0 {
		t.Errorf("notifier calls = %d, want 0", f.notifier.calls)
	}
	errs := f.messages(activity.SeverityError)
	if len(errs) != 1 || !strings.Contains(errs[0], "486 Busy Here") {
		t.Errorf("error log = %v", errs)
	}
	if got := f.w.Snapshot().LastOutcome; got != OutcomeDialFailed {
		t.Errorf("LastOutcome = %v, want DialFailed", got)
	}
}

func TestOutdialNotifyFailurePropagates(t *testing.T) {
	f := newFixture(Options{})
	f.notifier.err = errors.New("notification endpoint down")
	f.w.SetPhoneNumber("+1555")

	resp, err := f.w.Outdial(context.Background())
	if resp != f.dialer.resp {
		t.Errorf("Outdial() response = %v, want dial response", resp)
	}
	var ne *NotifyError
	if !errors.As(err, &ne) {
		t.Fatalf("Outdial() error = %v, want *NotifyError", err)
	}
	if ne.InteractionID != "call-1" {
		t.Errorf("NotifyError.InteractionID = %q, want call-1", ne.InteractionID)
	}
	if f.dialer.Calls() != 1 {
		t.Errorf("dialer calls = %d, want 1", f.dialer.Calls())
	}
	errs := f.messages(activity.SeverityError)
	if len(errs) != 1 || !strings.Contains(errs[0], "notification endpoint down") {
		t.Errorf("error log = %v", errs)
	}
}

func TestValidationTransportFailurePolicy(t *testing.T) {
	tests := []struct {
		policy   FailurePolicy
		wantDial int
	}{
		{FailOpen, 1},
		{FailClosed, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			f := newFixture(Options{FailurePolicy: tt.policy})
			f.validator.err = &endpoint.TransportError{Endpoint: "validation", StatusCode: 503, Cause: errors.New("unavailable")}
			f.w.SetPhoneNumber("+1555")

			_, _ = f.w.Outdial(context.Background())
			if f.dialer.Calls() != tt.wantDial {
				t.Errorf("dialer calls = %d, want %d", f.dialer.Calls(), tt.wantDial)
			}
		})
	}
}

func TestDefaultPolicyIsFailClosed(t *testing.T) {
	f := newFixture(Options{})
	if got := f.w.Options().FailurePolicy; got != FailClosed {
		t.Errorf("FailurePolicy = %q, want fail_closed", got)
	}
}

func TestOutdialRejectsReentrantTrigger(t *testing.T) {
	f := newFixture(Options{})
	f.dialer.block = make(chan struct{})
	f.w.SetPhoneNumber("+1555")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.w.Outdial(context.Background())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for f.dialer.Calls() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first sequence never reached the dialer")
		}
		time.Sleep(time.Millisecond)
	}

	resp, err := f.w.Outdial(context.Background())
	if resp != nil || err != nil {
		t.Errorf("second Outdial() = %v, %v, want nil, nil", resp, err)
	}
	close(f.dialer.block)
	<-done

	if f.dialer.Calls() != 1 {
		t.Errorf("dialer calls = %d, want 1", f.dialer.Calls())
	}
	found := false
	for _, m := range f.messages(activity.SeverityError) {
		if m == "Outdial already in progress" {
			found = true
		}
	}
	if !found {
		t.Error("missing 'Outdial already in progress' log entry")
	}
}

func TestContactStartedThenEnded(t *testing.T) {
	f := newFixture(Options{})
	f.w.Connect(context.Background())
	ctx := context.Background()

	f.host.Emit(ctx, host.ContactEvent{Name: host.EventContact, Data: host.EventData{InteractionID: "abc"}})
	st := f.w.State()
	if !st.HasActiveCall || st.InteractionID != "abc" {
		t.Errorf("after started: %+v", st)
	}

	f.host.Emit(ctx, host.ContactEvent{Name: host.EventContactEnded, Data: host.EventData{InteractionID: "abc"}})
	st = f.w.State()
	if st.HasActiveCall || st.InteractionID != "" {
		t.Errorf("after ended: %+v, want no active call", st)
	}
}

func TestDiagnosticEventsDoNotChangeState(t *testing.T) {
	f := newFixture(Options{})
	f.w.Connect(context.Background())
	ctx := context.Background()

	for _, name := range []host.EventName{host.EventWrapup, host.EventContactEstablished, host.EventContactHeld, host.EventContactUnHeld} {
		f.host.Emit(ctx, host.ContactEvent{Name: name, Data: host.EventData{InteractionID: "zzz"}})
	}
	if st := f.w.State(); st.HasActiveCall || st.InteractionID != "" {
		t.Errorf("State() = %+v, want untouched", st)
	}
}

func TestReconcileAdoptsExistingTask(t *testing.T) {
	f := newFixture(Options{})
	f.host.PutTask("task-1", host.Task{InteractionID: "abc"})

	f.w.Connect(context.Background())

	st := f.w.State()
	if !st.HasActiveCall || st.InteractionID != "abc" {
		t.Errorf("State() = %+v, want active call abc", st)
	}
	infos := f.messages(activity.SeverityInfo)
	if infos[len(infos)-1] != "Active call detected: abc" {
		t.Errorf("last info = %q", infos[len(infos)-1])
	}
}

func TestReconcileTieBreakBySortedKey(t *testing.T) {
	f := newFixture(Options{})
	f.host.PutTask("task-b", host.Task{InteractionID: "second"})
	f.host.PutTask("task-c", host.Task{})
	f.host.PutTask("task-a", host.Task{InteractionID: "first"})

	if err := f.w.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got := f.w.State().InteractionID; got != "first" {
		t.Errorf("InteractionID = %q, want first", got)
	}
}

func TestReconcileFailureFallsBackToIdle(t *testing.T) {
	local := host.NewLocal(nil, nil)
	log := activity.NewLog(10)
	w := New(Config{Host: failingTasks{local}, Log: log})

	w.Connect(context.Background())

	if st := w.State(); st.HasActiveCall {
		t.Errorf("State() = %+v, want no active call", st)
	}
	entries := log.Entries()
	last := entries[len(entries)-1]
	if last.Severity != activity.SeverityError || !strings.Contains(last.Message, "Error checking active tasks") {
		t.Errorf("last entry = %+v", last)
	}
}

func TestReconcileYieldsToEventDuringQuery(t *testing.T) {
	g := gatedTasks{
		Local:   host.NewLocal(nil, nil),
		tasks:   map[string]host.Task{"task-1": {InteractionID: "abc"}},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	w := New(Config{Host: g, Log: activity.NewLog(10)})

	done := make(chan struct{})
	go func() {
		w.Connect(context.Background())
		close(done)
	}()

	<-g.entered
	g.Emit(context.Background(), host.ContactEvent{
		Name: host.EventContactEnded,
		Data: host.EventData{InteractionID: "abc"},
	})
	close(g.release)
	<-done

	if st := w.State(); st.HasActiveCall || st.InteractionID != "" {
		t.Errorf("State() = %+v, want the ended event to win over the stale task map", st)
	}
}

func TestDialTimeoutEndsSequence(t *testing.T) {
	f := newFixture(Options{DialTimeout: 20 * time.Millisecond})
	f.host.SetDialer(ctxDialer{})
	f.w.SetPhoneNumber("+1555")

	start := time.Now()
	resp, err := f.w.Outdial(context.Background())
	if resp != nil || err != nil {
		t.Errorf("Outdial() = %v, %v, want nil, nil", resp, err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Outdial() took %v, want it bounded by the dial timeout", elapsed)
	}
	if got := f.w.Snapshot().LastOutcome; got != OutcomeDialFailed {
		t.Errorf("LastOutcome = %v, want DialFailed", got)
	}
	if f.notifier.calls != 0 {
		t.Errorf("notifier calls = %d, want 0", f.notifier.calls)
	}
	errs := f.messages(activity.SeverityError)
	if len(errs) != 1 || !strings.Contains(errs[0], context.DeadlineExceeded.Error()) {
		t.Errorf("error log = %v", errs)
	}
	if f.w.Snapshot().Phase != PhaseIdle {
		t.Errorf("Phase = %v, want Idle", f.w.Snapshot().Phase)
	}
}

func TestContactEventWithoutIDIgnored(t *testing.T) {
	f := newFixture(Options{})
	f.w.Connect(context.Background())
	f.host.Emit(context.Background(), host.ContactEvent{Name: host.EventContact})

	if st := f.w.State(); st.HasActiveCall {
		t.Errorf("State() = %+v, want no active call", st)
	}
}

func TestDisconnectUnsubscribesAll(t *testing.T) {
	f := newFixture(Options{})
	f.w.Connect(context.Background())
	if f.host.SubscriberCount() == 0 {
		t.Fatal("no subscriptions after Connect")
	}

	f.w.Disconnect()
	if n := f.host.SubscriberCount(); n != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", n)
	}
	f.host.Emit(context.Background(), host.ContactEvent{Name: host.EventContact, Data: host.EventData{InteractionID: "abc"}})
	if f.w.State().HasActiveCall {
		t.Error("state changed after Disconnect")
	}
}

func TestPhaseTransitions(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseIdle, PhaseValidating, true},
		{PhaseIdle, PhaseDialing, false},
		{PhaseValidating, PhaseDialing, true},
		{PhaseDialing, PhaseNotifying, true},
		{PhaseNotifying, PhaseValidating, false},
		{PhaseNotifying, PhaseIdle, true},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%v.CanTransitionTo(%v) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestParseFailurePolicy(t *testing.T) {
	tests := map[string]FailurePolicy{
		"FAIL_OPEN":   FailOpen,
		"fail-closed": FailClosed,
		"":            FailClosed,
	}
	for in, want := range tests {
		got, err := ParseFailurePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseFailurePolicy(%q) = %q, %v, want %q", in, got, err, want)
		}
	}
	if _, err := ParseFailurePolicy("maybe"); err == nil {
		t.Error("ParseFailurePolicy(maybe) error = nil")
	}
}
