package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"upscan/internal/form"
	"upscan/internal/intake"
	"upscan/internal/logging"
	"upscan/internal/services"
)

// DefaultMaxFiles caps confirmed plus in-flight files.
const DefaultMaxFiles = 5

var (
	// ErrSelectionDisabled is returned by Select while the selection control is disabled.
	ErrSelectionDisabled = errors.New("file selection is disabled")
	// ErrTaskNotFound is returned by Remove for unknown or detached tasks.
	ErrTaskNotFound = errors.New("upload task not found")
	// ErrNoFile is returned by Select when no file name was provided.
	ErrNoFile = errors.New("no file selected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("coordinator closed")
)

// SessionSource hands out intake sessions.
type SessionSource interface {
	Initiate(ctx context.Context) (intake.Session, error)
}

// Sender submits one file against a session.
type Sender interface {
	Submit(ctx context.Context, session intake.Session, fileName string, content io.Reader) (intake.SubmitResult, error)
}

// Task is a snapshot of one row.
type Task struct {
	ID        string
	FileName  string
	State     State
	CreatedAt time.Time
}

// Options configures a Coordinator.
type Options struct {
	MaxFiles int
	// OneAtATime also disables selection while any task is in flight.
	OneAtATime bool
	Logger     *slog.Logger
	Observer   Observer
}

type entry struct {
	task     Task
	cancel   context.CancelFunc
	attached bool
}

// Coordinator owns the rows, the current intake session and the reference
// store. Every mutation happens under mu, and task continuations re-check
// that their row is still attached before touching shared state.
type Coordinator struct {
	sessions   SessionSource
	sender     Sender
	strategy   Strategy
	store      form.ReferenceStore
	maxFiles   int
	oneAtATime bool
	logger     *slog.Logger
	observer   Observer
	events     dispatcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu sync.Mutex
	// session is usable only while sessionReady; binding it to a task consumes it.
	session      intake.Session
	sessionReady bool
	rows         []*entry
	lastError    string
	enabled      bool
	closed       bool
}

// NewCoordinator constructs a coordinator. ctx bounds every task it starts.
func NewCoordinator(ctx context.Context, sessions SessionSource, sender Sender, strategy Strategy, store form.ReferenceStore, opts Options) (*Coordinator, error) {
	switch {
	case sessions == nil:
		return nil, errors.New("upload coordinator requires a session source")
	case sender == nil:
		return nil, errors.New("upload coordinator requires a sender")
	case strategy == nil:
		return nil, errors.New("upload coordinator requires a confirmation strategy")
	case store == nil:
		return nil, errors.New("upload coordinator requires a reference store")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	root, cancel := context.WithCancel(ctx)
	return &Coordinator{
		sessions:   sessions,
		sender:     sender,
		strategy:   strategy,
		store:      store,
		maxFiles:   opts.MaxFiles,
		oneAtATime: opts.OneAtATime,
		logger:     logging.NewComponentLogger(opts.Logger, "upload"),
		observer:   opts.Observer,
		ctx:        root,
		cancel:     cancel,
		enabled:    true,
	}, nil
}

// Start restores rows from the form and fetches the first intake session. A
// failed initiation is logged; the next selection then initiates its own
// session.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.Restore(); err != nil {
		return err
	}
	session, err := c.sessions.Initiate(services.WithStage(ctx, "initiate"))
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "intake session initiation failed", "session_initiate_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check intake.initiate_url and that the collaborator service is running"),
			logging.String(logging.FieldImpact, "the next upload initiates its own session"),
		)
		return nil
	}
	c.mu.Lock()
	c.session = session
	c.sessionReady = true
	c.mu.Unlock()
	return nil
}

// Restore rebuilds confirmed rows from references already present on the
// form, as after a page reload.
func (c *Coordinator) Restore() error {
	restored, err := c.store.Restore()
	if err != nil {
		return fmt.Errorf("restore references: %w", err)
	}

	var notes notifications
	c.mu.Lock()
	for _, e := range c.rows {
		if e.task.State.Status == StatusConfirmed {
			e.attached = false
		}
	}
	kept := c.rows[:0]
	for _, e := range c.rows {
		if e.attached {
			kept = append(kept, e)
		}
	}
	c.rows = kept
	now := time.Now().UTC()
	for _, ref := range restored {
		e := &entry{
			task: Task{
				ID:        uuid.NewString(),
				FileName:  ref.Name,
				State:     State{Status: StatusConfirmed, Reference: ref.Reference},
				CreatedAt: now,
			},
			cancel:   func() {},
			attached: true,
		}
		c.rows = append(c.rows, e)
		notes.task(e.task)
	}
	c.updateSelectionLocked(&notes)
	c.unlockAndNotify(notes)

	if len(restored) > 0 {
		c.logger.Info("restored attachments from form", logging.Int("count", len(restored)))
	}
	return nil
}

// Select creates a task for the file and starts its upload.
func (c *Coordinator) Select(fileName string, content []byte) (Task, error) {
	name := form.DisplayName(fileName)
	if name == "" {
		return Task{}, ErrNoFile
	}

	var notes notifications
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Task{}, ErrClosed
	}
	if !c.selectableLocked() {
		c.mu.Unlock()
		return Task{}, ErrSelectionDisabled
	}
	if c.lastError != "" {
		c.lastError = ""
		notes.message("")
	}

	ctx, cancel := context.WithCancel(c.ctx)
	e := &entry{
		task: Task{
			ID:        uuid.NewString(),
			FileName:  name,
			State:     InitialState(),
			CreatedAt: time.Now().UTC(),
		},
		cancel:   cancel,
		attached: true,
	}
	bound := c.sessionReady
	session := c.session.Clone()
	if bound && c.session.SingleUse {
		c.sessionReady = false
	}
	c.rows = append(c.rows, e)
	notes.task(e.task)
	c.updateSelectionLocked(&notes)
	c.wg.Add(1)
	snapshot := e.task
	c.unlockAndNotify(notes)

	go c.run(ctx, e, snapshot, session, bound, content)
	return snapshot, nil
}

func (c *Coordinator) run(ctx context.Context, e *entry, task Task, session intake.Session, bound bool, content []byte) {
	defer c.wg.Done()
	defer e.cancel()

	ctx = services.WithTaskID(ctx, task.ID)
	logger := logging.WithContext(ctx, c.logger).With(logging.String(logging.FieldFileName, task.FileName))

	if !bound {
		fresh, err := c.sessions.Initiate(services.WithStage(ctx, "initiate"))
		if err != nil {
			c.apply(e, Failed{Failure: *newFailure(FailureTransport, "", err)}, logger)
			return
		}
		session = fresh
	}

	logger.Debug("submitting file", logging.Int("session_fields", len(session.Fields)), logging.Bool("fresh_session", !bound))
	result, err := c.sender.Submit(services.WithStage(ctx, "submit"), session, task.FileName, bytes.NewReader(content))
	if err != nil {
		c.apply(e, Failed{Failure: AsFailure(err)}, logger)
		return
	}

	accepted := func() { c.apply(e, Accepted{}, logger) }
	reference, err := c.strategy.Resolve(services.WithStage(ctx, "confirm"), session, result, accepted)
	if err != nil {
		c.apply(e, Failed{Failure: AsFailure(err)}, logger)
		return
	}
	if strings.TrimSpace(reference) == "" {
		err := fmt.Errorf("%s strategy confirmed without a reference", c.strategy.Name())
		c.apply(e, Failed{Failure: *newFailure(FailureProtocol, CodeMissingOutcome, err)}, logger)
		return
	}
	if c.apply(e, Confirmed{Reference: reference}, logger) {
		c.refreshSession(logger)
	}
}

// apply feeds ev to the task and performs the resulting side effects. It
// reports whether the task reached Confirmed.
func (c *Coordinator) apply(e *entry, ev Event, logger *slog.Logger) bool {
	var notes notifications
	c.mu.Lock()
	if !e.attached || c.closed {
		c.mu.Unlock()
		logger.Debug("outcome discarded for detached task", logging.String("event", ev.eventName()))
		return false
	}
	next, err := Next(e.task.State, ev)
	if err != nil {
		c.mu.Unlock()
		logger.Warn("ignored upload event", logging.Error(err))
		return false
	}
	if next.Status == StatusConfirmed {
		if err := c.store.Add(form.FileReference{Reference: next.Reference, Name: e.task.FileName}); err != nil {
			failure := *newFailure(FailureProtocol, CodeUnparseable, err)
			next = State{Status: StatusFailed, Failure: &failure}
		}
	}
	e.task.State = next
	notes.task(e.task)
	if next.Status == StatusFailed {
		c.lastError = next.Failure.Message
		notes.message(c.lastError)
	}
	c.updateSelectionLocked(&notes)
	attached := c.store.Len()
	c.unlockAndNotify(notes)

	switch next.Status {
	case StatusAwaitingConfirmation:
		logger.Info("upload accepted, awaiting confirmation")
	case StatusConfirmed:
		logger.Info("upload confirmed",
			logging.String(logging.FieldReference, next.Reference),
			logging.Int("attached", attached),
		)
	case StatusFailed:
		logging.WarnWithContext(logger, "upload failed", "upload_failed",
			logging.String("kind", string(next.Failure.Kind)),
			logging.String(logging.FieldErrorCode, next.Failure.Code),
			logging.String("message", next.Failure.Message),
			logging.Error(next.Failure.Err),
			logging.String(logging.FieldErrorHint, failureHint(next.Failure.Kind)),
			logging.String(logging.FieldImpact, "file was not attached"),
		)
	}
	return next.Status == StatusConfirmed
}

func failureHint(kind FailureKind) string {
	switch kind {
	case FailureIntake:
		return "the intake service rejected the file; choose a different file"
	case FailureTimeout:
		return "the intake service is slow to scan; retry later or raise upload.poll_attempts"
	case FailureProtocol:
		return "the intake service response did not carry an outcome; check intake endpoint versions"
	default:
		return "check network access to the intake service"
	}
}

func (c *Coordinator) refreshSession(logger *slog.Logger) {
	ctx := services.WithStage(c.ctx, "refresh")
	session, err := c.sessions.Initiate(ctx)
	if err != nil {
		if c.ctx.Err() != nil {
			return
		}
		logging.WarnWithContext(logger, "intake session refresh failed", "session_refresh_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check intake.initiate_url"),
			logging.String(logging.FieldImpact, "the next upload initiates its own session"),
		)
		return
	}
	c.mu.Lock()
	c.session = session
	c.sessionReady = true
	c.mu.Unlock()
	logger.Debug("intake session refreshed", logging.Int("fields", len(session.Fields)))
}

// Remove detaches the task's row. In-flight tasks are cancelled and their
// outcome is dropped; confirmed tasks also lose their store entry. Failed
// rows are only dismissed.
func (c *Coordinator) Remove(id string) error {
	var notes notifications
	c.mu.Lock()
	e := c.findLocked(id)
	if e == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	next, err := Next(e.task.State, Removed{})
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if e.task.State.Status == StatusConfirmed {
		if err := c.store.Remove(e.task.State.Reference); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("remove %s: %w", e.task.FileName, err)
		}
	}
	previous := e.task.State.Status
	e.task.State = next
	c.detachLocked(e)
	e.cancel()
	notes.task(e.task)
	c.updateSelectionLocked(&notes)
	task := e.task
	c.unlockAndNotify(notes)

	c.logger.Info("upload removed",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldFileName, task.FileName),
		logging.String("previous_status", string(previous)),
	)
	return nil
}

// Tasks returns the attached rows in selection order.
func (c *Coordinator) Tasks() []Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	tasks := make([]Task, 0, len(c.rows))
	for _, e := range c.rows {
		tasks = append(tasks, e.task)
	}
	return tasks
}

// Task returns the attached row with id.
func (c *Coordinator) Task(id string) (Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.findLocked(id); e != nil {
		return e.task, true
	}
	return Task{}, false
}

// Count returns the number of confirmed files.
func (c *Coordinator) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, e := range c.rows {
		if e.task.State.Status == StatusConfirmed {
			count++
		}
	}
	return count
}

// InFlight returns the number of tasks still waiting on the intake service.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, e := range c.rows {
		if e.task.State.InFlight() {
			count++
		}
	}
	return count
}

// References returns the store's entries in form order.
func (c *Coordinator) References() []form.FileReference {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.References()
}

// SelectionEnabled reports whether Select would accept a file.
func (c *Coordinator) SelectionEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectableLocked()
}

// LastError returns the displayed error message, if any.
func (c *Coordinator) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Wait blocks until every started task has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels every in-flight task and waits for them to return.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// unlockAndNotify queues notes while mu is still held, so batches keep the
// order of the mutations that produced them, then releases mu and delivers.
func (c *Coordinator) unlockAndNotify(notes notifications) {
	c.events.enqueue(notes)
	c.mu.Unlock()
	c.events.drain(c.observer)
}

func (c *Coordinator) findLocked(id string) *entry {
	for _, e := range c.rows {
		if e.task.ID == id {
			return e
		}
	}
	return nil
}

func (c *Coordinator) detachLocked(target *entry) {
	target.attached = false
	for i, e := range c.rows {
		if e == target {
			c.rows = append(c.rows[:i], c.rows[i+1:]...)
			return
		}
	}
}

func (c *Coordinator) selectableLocked() bool {
	if c.closed {
		return false
	}
	occupied := 0
	inFlight := false
	for _, e := range c.rows {
		if e.task.State.Occupied() {
			occupied++
		}
		if e.task.State.InFlight() {
			inFlight = true
		}
	}
	if occupied >= c.maxFiles {
		return false
	}
	return !(c.oneAtATime && inFlight)
}

func (c *Coordinator) updateSelectionLocked(notes *notifications) {
	enabled := c.selectableLocked()
	if enabled != c.enabled {
		c.enabled = enabled
		notes.selection(enabled)
	}
}
