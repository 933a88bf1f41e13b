package upload_test

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"testing"
	"time"

	"upscan/internal/form"
	"upscan/internal/intake"
	"upscan/internal/upload"
)

type fakeSessions struct {
	mu    sync.Mutex
	calls int
	fail  map[int]error
}

func (f *fakeSessions) Initiate(context.Context) (intake.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[f.calls]; err != nil {
		return intake.Session{}, err
	}
	target, _ := url.Parse(fmt.Sprintf("http://intake.test/upload/%d", f.calls))
	return intake.Session{
		Target:    target,
		Fields:    []form.Field{{Name: "policy", Value: fmt.Sprint(f.calls)}},
		Reference: fmt.Sprintf("session-%d", f.calls),
		SingleUse: true,
	}, nil
}

func (f *fakeSessions) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// gatedSender answers each file with a scripted result. Files with a gate
// block until the gate is closed, regardless of cancellation, so an outcome
// can arrive after the row was removed.
type gatedSender struct {
	mu      sync.Mutex
	results map[string]intake.SubmitResult
	errs    map[string]error
	gates   map[string]chan struct{}
	seen    []string
}

func newGatedSender() *gatedSender {
	return &gatedSender{
		results: map[string]intake.SubmitResult{},
		errs:    map[string]error{},
		gates:   map[string]chan struct{}{},
	}
}

func (s *gatedSender) redirect(name, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[name] = redirectTo("key=" + key)
}

func (s *gatedSender) respond(name string, result intake.SubmitResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[name] = result
}

func (s *gatedSender) block(name string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	s.gates[name] = gate
	return gate
}

func (s *gatedSender) Submit(_ context.Context, _ intake.Session, name string, content io.Reader) (intake.SubmitResult, error) {
	_, _ = io.Copy(io.Discard, content)
	s.mu.Lock()
	s.seen = append(s.seen, name)
	gate := s.gates[name]
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs[name]; err != nil {
		return intake.SubmitResult{}, err
	}
	return s.results[name], nil
}

func redirectTo(query string) intake.SubmitResult {
	location, _ := url.Parse("http://intake.test/upload-complete?" + query)
	return intake.SubmitResult{StatusCode: 303, Location: location}
}

type scriptedStatus struct {
	mu       sync.Mutex
	script   []intake.StatusReport
	errs     map[int]error
	calls    int
	fallback intake.StatusReport
}

func (s *scriptedStatus) Status(context.Context, string) (intake.StatusReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.errs[s.calls]; err != nil {
		return intake.StatusReport{}, err
	}
	if s.calls <= len(s.script) {
		return s.script[s.calls-1], nil
	}
	return s.fallback, nil
}

func (s *scriptedStatus) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func noSleep(context.Context, time.Duration) error { return nil }

type recorder struct {
	mu        sync.Mutex
	selection []bool
	messages  []string
	confirmed chan upload.Task
}

func newRecorder() *recorder {
	return &recorder{confirmed: make(chan upload.Task, 16)}
}

func (r *recorder) TaskChanged(task upload.Task) {
	if task.State.Status != upload.StatusConfirmed {
		return
	}
	select {
	case r.confirmed <- task:
	default:
	}
}

func (r *recorder) SelectionChanged(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selection = append(r.selection, enabled)
}

func (r *recorder) ErrorDisplayed(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *recorder) Selection() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.selection...)
}

func (r *recorder) waitConfirmed(t *testing.T) upload.Task {
	t.Helper()
	select {
	case task := <-r.confirmed:
		return task
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for confirmation")
		return upload.Task{}
	}
}

type harness struct {
	coordinator *upload.Coordinator
	fields      *form.Fields
	sessions    *fakeSessions
	sender      *gatedSender
	observer    *recorder
}

func newHarness(t *testing.T, strategy upload.Strategy, opts upload.Options, seed ...form.Field) *harness {
	t.Helper()
	fields := form.NewFields(seed...)
	store := form.NewIndexedStore(fields, "fileAttachments")
	h := &harness{
		fields:   fields,
		sessions: &fakeSessions{fail: map[int]error{}},
		sender:   newGatedSender(),
		observer: newRecorder(),
	}
	opts.Observer = h.observer
	coordinator, err := upload.NewCoordinator(context.Background(), h.sessions, h.sender, strategy, store, opts)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	t.Cleanup(coordinator.Close)
	h.coordinator = coordinator
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.coordinator.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func (h *harness) selectFile(t *testing.T, name string) upload.Task {
	t.Helper()
	task, err := h.coordinator.Select(name, []byte("content of "+name))
	if err != nil {
		t.Fatalf("Select %s: %v", name, err)
	}
	return task
}
