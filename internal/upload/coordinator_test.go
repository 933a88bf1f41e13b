package upload_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"upscan/internal/form"
	"upscan/internal/intake"
	"upscan/internal/services"
	"upscan/internal/upload"
)

func referencesOf(c *upload.Coordinator) []string {
	var refs []string
	for _, ref := range c.References() {
		refs = append(refs, ref.Reference)
	}
	return refs
}

func TestRedirectUploadConfirmsAndWritesPair(t *testing.T) {
	h := newHarness(t, upload.RedirectStrategy{}, upload.Options{})
	h.start(t)
	h.sender.redirect("a.pdf", "ref-1")

	h.selectFile(t, "a.pdf")
	h.coordinator.Wait()

	refs := h.coordinator.References()
	if len(refs) != 1 || refs[0] != (form.FileReference{Reference: "ref-1", Name: "a.pdf"}) {
		t.Fatalf("unexpected store %+v", refs)
	}
	if v, _ := h.fields.Lookup("fileAttachments[0].fileReference"); v != "ref-1" {
		t.Fatalf("expected fileAttachments[0].fileReference=ref-1, got %q", v)
	}
	if v, _ := h.fields.Lookup("fileAttachments[0].fileName"); v != "a.pdf" {
		t.Fatalf("expected fileAttachments[0].fileName=a.pdf, got %q", v)
	}
	if h.coordinator.Count() != 1 {
		t.Fatalf("expected one uploaded file, got %d", h.coordinator.Count())
	}
	tasks := h.coordinator.Tasks()
	if len(tasks) != 1 || tasks[0].State.Status != upload.StatusConfirmed {
		t.Fatalf("expected a confirmed row, got %+v", tasks)
	}
	if h.sessions.Calls() != 2 {
		t.Fatalf("expected initial session plus one refresh, got %d initiations", h.sessions.Calls())
	}
	if h.coordinator.LastError() != "" {
		t.Fatalf("unexpected error %q", h.coordinator.LastError())
	}
}

func TestPollingFailureDisplaysMessageAndLeavesStoreUnchanged(t *testing.T) {
	status := &scriptedStatus{script: []intake.StatusReport{
		{Status: intake.StatusProcessing},
		{Status: intake.StatusProcessing},
		{Status: intake.StatusProcessing},
		{Status: intake.StatusFailed, ErrorCode: "EntityTooLarge"},
	}}
	strategy := upload.NewPollingStrategy(status, 2*time.Second, 30, upload.WithSleeper(noSleep))
	h := newHarness(t, strategy, upload.Options{})
	h.start(t)
	h.sender.respond("b.pdf", intake.SubmitResult{StatusCode: http.StatusAccepted})

	h.selectFile(t, "b.pdf")
	h.coordinator.Wait()

	if got := h.coordinator.LastError(); got != "The selected file must be smaller than 10MB" {
		t.Fatalf("unexpected message %q", got)
	}
	if len(h.coordinator.References()) != 0 || h.fields.Len() != 0 {
		t.Fatal("failed upload must not write fields")
	}
	tasks := h.coordinator.Tasks()
	if len(tasks) != 1 || tasks[0].State.Status != upload.StatusFailed {
		t.Fatalf("failed row must stay visible, got %+v", tasks)
	}
	if !h.coordinator.SelectionEnabled() {
		t.Fatal("selection must be re-enabled after failure")
	}
	if err := h.coordinator.Remove(tasks[0].ID); err != nil {
		t.Fatalf("dismiss failed row: %v", err)
	}
	if len(h.coordinator.Tasks()) != 0 || h.fields.Len() != 0 {
		t.Fatal("dismissing a failed row must only drop the row")
	}
	if status.Calls() != 4 {
		t.Fatalf("expected 4 polls, got %d", status.Calls())
	}
	if h.sessions.Calls() != 1 {
		t.Fatalf("failure must not refresh the session, got %d initiations", h.sessions.Calls())
	}
}

func TestPollingTimeoutFailsTask(t *testing.T) {
	status := &scriptedStatus{fallback: intake.StatusReport{Status: intake.StatusProcessing}}
	strategy := upload.NewPollingStrategy(status, time.Second, 30, upload.WithSleeper(noSleep))
	h := newHarness(t, strategy, upload.Options{})
	h.start(t)
	h.sender.respond("slow.pdf", intake.SubmitResult{StatusCode: http.StatusOK})

	h.selectFile(t, "slow.pdf")
	h.coordinator.Wait()

	if status.Calls() != 30 {
		t.Fatalf("expected exactly 30 polls, got %d", status.Calls())
	}
	if got := h.coordinator.LastError(); got != upload.MessageFor(upload.FailureTimeout, "") {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestConfirmationsAppendInArrivalOrder(t *testing.T) {
	h := newHarness(t, upload.RedirectStrategy{}, upload.Options{})
	h.start(t)
	h.sender.redirect("first.pdf", "ref-first")
	h.sender.redirect("second.pdf", "ref-second")
	firstGate := h.sender.block("first.pdf")
	secondGate := h.sender.block("second.pdf")

	h.selectFile(t, "first.pdf")
	h.selectFile(t, "second.pdf")

	close(secondGate)
	if task := h.observer.waitConfirmed(t); task.FileName != "second.pdf" {
		t.Fatalf("expected second.pdf to confirm first, got %s", task.FileName)
	}
	close(firstGate)
	h.coordinator.Wait()

	refs := referencesOf(h.coordinator)
	if len(refs) != 2 || refs[0] != "ref-second" || refs[1] != "ref-first" {
		t.Fatalf("expected arrival order [ref-second ref-first], got %v", refs)
	}
	if v, _ := h.fields.Lookup("fileAttachments[0].fileReference"); v != "ref-second" {
		t.Fatalf("expected index 0 to hold ref-second, got %q", v)
	}
}

func TestRemoveBeforeConfirmationDropsOutcome(t *testing.T) {
	h := newHarness(t, upload.RedirectStrategy{}, upload.Options{})
	h.start(t)
	h.sender.redirect("a.pdf", "ref-1")
	gate := h.sender.block("a.pdf")

	task := h.selectFile(t, "a.pdf")
	if err := h.coordinator.Remove(task.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	close(gate)
	h.coordinator.Wait()

	if len(h.coordinator.References()) != 0 || h.fields.Len() != 0 {
		t.Fatal("confirmation after removal must not touch the store")
	}
	if len(h.coordinator.Tasks()) != 0 {
		t.Fatal("removed row must stay detached")
	}
	if h.coordinator.LastError() != "" {
		t.Fatalf("dropped outcome must not display an error, got %q", h.coordinator.LastError())
	}
	if err := h.coordinator.Remove(task.ID); !errors.Is(err, upload.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestRemoveConfirmedMiddleEntry(t *testing.T) {
	h := newHarness(t, upload.RedirectStrategy{}, upload.Options{})
	h.start(t)
	var ids []string
	for i, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		h.sender.redirect(name, "ref-"+string(rune('1'+i)))
		ids = append(ids, h.selectFile(t, name).ID)
		h.coordinator.Wait()
	}
	before := h.fields.Len()

	if err := h.coordinator.Remove(ids[1]); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if got := referencesOf(h.coordinator); len(got) != 2 || got[0] != "ref-1" || got[1] != "ref-3" {
		t.Fatalf("unexpected references %v", got)
	}
	if h.fields.Len() != before-2 {
		t.Fatalf("expected exactly two fields removed, got %d -> %d", before, h.fields.Len())
	}
	if _, ok := h.fields.Lookup("fileAttachments[1].fileReference"); ok {
		t.Fatal("expected middle pair removed")
	}
	if v, _ := h.fields.Lookup("fileAttachments[2].fileName"); v != "c.pdf" {
		t.Fatalf("expected c.pdf to keep index 2, got %q", v)
	}
	if h.coordinator.Count() != 2 {
		t.Fatalf("expected count 2, got %d", h.coordinator.Count())
	}
}

func TestSelectionDisabledAtCap(t *testing.T) {
	h := newHarness(t, upload.RedirectStrategy{}, upload.Options{MaxFiles: 5})
	h.start(t)
	var gates []chan struct{}
	var ids []string
	for _, name := range []string{"1.pdf", "2.pdf", "3.pdf", "4.pdf", "5.pdf"} {
		h.sender.redirect(name, "ref-"+name)
		gates = append(gates, h.sender.block(name))
		ids = append(ids, h.selectFile(t, name).ID)
	}

	if h.coordinator.SelectionEnabled() {
		t.Fatal("selection must be disabled with five files in flight")
	}
	if _, err := h.coordinator.Select("6.pdf", []byte("x")); !errors.Is(err, upload.ErrSelectionDisabled) {
		t.Fatalf("expected ErrSelectionDisabled, got %v", err)
	}

	if err := h.coordinator.Remove(ids[0]); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !h.coordinator.SelectionEnabled() {
		t.Fatal("removing an uploading task must re-enable selection immediately")
	}

	for _, gate := range gates {
		close(gate)
	}
	h.coordinator.Wait()

	if h.coordinator.Count() != 4 {
		t.Fatalf("expected 4 confirmed files, got %d", h.coordinator.Count())
	}
	if !h.coordinator.SelectionEnabled() {
		t.Fatal("selection must stay enabled below the cap")
	}
	selection := h.observer.Selection()
	if len(selection) != 2 || selection[0] || !selection[1] {
		t.Fatalf("expected disable then enable notifications, got %v", selection)
	}
}

func TestOneAtATimeDisablesSelectionWhileInFlight(t *testing.T) {
	h := newHarness(t, upload.RedirectStrategy{}, upload.Options{OneAtATime: true})
	h.start(t)
	h.sender.redirect("a.pdf", "ref-1")
	gate := h.sender.block("a.pdf")

	h.selectFile(t, "a.pdf")
	if _, err := h.coordinator.Select("b.pdf", []byte("x")); !errors.Is(err, upload.ErrSelectionDisabled) {
		t.Fatalf("expected ErrSelectionDisabled, got %v", err)
	}
	close(gate)
	h.coordinator.Wait()
	if !h.coordinator.SelectionEnabled() {
		t.Fatal("selection must be enabled once the upload settles")
	}
}

func TestSelectClearsDisplayedError(t *testing.T) {
	h := newHarness(t, upload.RedirectStrategy{}, upload.Options{})
	h.start(t)
	h.sender.respond("bad.pdf", redirectTo("errorCode=QUARANTINE"))
	h.sender.respond("worse.pdf", redirectTo("errorCode=REJECTED"))
	h.sender.redirect("good.pdf", "ref-ok")

	h.selectFile(t, "bad.pdf")
	h.coordinator.Wait()
	if got := h.coordinator.LastError(); got != "The selected file contains a virus" {
		t.Fatalf("unexpected message %q", got)
	}

	h.selectFile(t, "worse.pdf")
	h.coordinator.Wait()
	if got := h.coordinator.LastError(); got != "The selected file must be a PDF, image, text or Office document" {
		t.Fatalf("latest failure must replace the previous one, got %q", got)
	}

	h.selectFile(t, "good.pdf")
	if got := h.coordinator.LastError(); got != "" {
		t.Fatalf("selecting a file must clear the error, got %q", got)
	}
	h.coordinator.Wait()
	if h.coordinator.Count() != 1 {
		t.Fatalf("expected one confirmed file, got %d", h.coordinator.Count())
	}
}

func TestTransportFailureOnSubmit(t *testing.T) {
	h := newHarness(t, upload.RedirectStrategy{}, upload.Options{})
	h.start(t)
	h.sender.errs["down.pdf"] = services.Wrap(services.ErrTransport, "submit", "POST", "", errors.New("connection refused"))

	h.selectFile(t, "down.pdf")
	h.coordinator.Wait()

	if got := h.coordinator.LastError(); got != "File upload failed: the upload service could not be reached" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestRefreshFailureKeepsUploadAndNextTaskInitiates(t *testing.T) {
	h := newHarness(t, upload.RedirectStrategy{}, upload.Options{})
	h.sessions.fail[2] = services.Wrap(services.ErrTransport, "initiate", "GET", "status 503", nil)
	h.start(t)
	h.sender.redirect("a.pdf", "ref-1")
	h.sender.redirect("b.pdf", "ref-2")

	h.selectFile(t, "a.pdf")
	h.coordinator.Wait()
	if h.coordinator.Count() != 1 || h.coordinator.LastError() != "" {
		t.Fatalf("refresh failure must not fail the upload: count=%d error=%q", h.coordinator.Count(), h.coordinator.LastError())
	}

	h.selectFile(t, "b.pdf")
	h.coordinator.Wait()
	if h.coordinator.Count() != 2 {
		t.Fatalf("expected second upload to confirm, got %d", h.coordinator.Count())
	}
	// initial, failed refresh, on-demand for b.pdf, refresh after b.pdf
	if h.sessions.Calls() != 4 {
		t.Fatalf("expected 4 initiations, got %d", h.sessions.Calls())
	}
}

func TestOnDemandInitiationFailureIsTransport(t *testing.T) {
	h := newHarness(t, upload.RedirectStrategy{}, upload.Options{})
	h.sessions.fail[1] = errors.New("boom")
	h.sessions.fail[2] = errors.New("boom")
	h.start(t)

	h.selectFile(t, "a.pdf")
	h.coordinator.Wait()

	if got := h.coordinator.LastError(); got != upload.MessageFor(upload.FailureTransport, "") {
		t.Fatalf("unexpected message %q", got)
	}
	if len(h.sender.seen) != 0 {
		t.Fatal("nothing may be submitted without a session")
	}
}

func TestStartRestoresConfirmedRows(t *testing.T) {
	h := newHarness(t, upload.RedirectStrategy{}, upload.Options{MaxFiles: 2},
		form.Field{Name: "response", Value: "text"},
		form.Field{Name: "fileAttachments[0].fileReference", Value: "ref-a"},
		form.Field{Name: "fileAttachments[0].fileName", Value: "a.pdf"},
		form.Field{Name: "fileAttachments[1].fileReference", Value: "ref-b"},
		form.Field{Name: "fileAttachments[1].fileName", Value: "b.pdf"},
	)
	h.start(t)

	tasks := h.coordinator.Tasks()
	if len(tasks) != 2 {
		t.Fatalf("expected 2 restored rows, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.State.Status != upload.StatusConfirmed {
			t.Fatalf("restored row %s is %s", task.FileName, task.State.Status)
		}
	}
	if h.coordinator.SelectionEnabled() {
		t.Fatal("restored rows count towards the cap")
	}

	if err := h.coordinator.Remove(tasks[0].ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := h.fields.Lookup("fileAttachments[0].fileName"); ok {
		t.Fatal("expected restored pair to be removed")
	}
	if !h.coordinator.SelectionEnabled() {
		t.Fatal("expected selection enabled below the cap")
	}
}

func TestDelimitedLayoutCannotRemoveConfirmed(t *testing.T) {
	fields := form.NewFields()
	store := form.NewDelimitedStore(fields, "fileReferences")
	sessions := &fakeSessions{fail: map[int]error{}}
	sender := newGatedSender()
	sender.redirect("a.pdf", "ref-1")
	coordinator, err := upload.NewCoordinator(context.Background(), sessions, sender, upload.RedirectStrategy{}, store, upload.Options{})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	defer coordinator.Close()
	if err := coordinator.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	task, err := coordinator.Select("a.pdf", []byte("x"))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	coordinator.Wait()

	if v, _ := fields.Lookup("fileReferences"); v != "ref-1" {
		t.Fatalf("expected delimited field, got %q", v)
	}
	if _, ok := fields.Lookup("fileAttachments[0].fileReference"); ok {
		t.Fatal("only one representation may be written")
	}
	if err := coordinator.Remove(task.ID); !errors.Is(err, form.ErrRemovalUnsupported) {
		t.Fatalf("expected ErrRemovalUnsupported, got %v", err)
	}
	if coordinator.Count() != 1 {
		t.Fatal("row must remain after unsupported removal")
	}
}

func TestSelectRejectsEmptyNameAndClosed(t *testing.T) {
	h := newHarness(t, upload.RedirectStrategy{}, upload.Options{})
	if _, err := h.coordinator.Select("  ", nil); !errors.Is(err, upload.ErrNoFile) {
		t.Fatalf("expected ErrNoFile, got %v", err)
	}
	h.coordinator.Close()
	if _, err := h.coordinator.Select("a.pdf", nil); !errors.Is(err, upload.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

type emptyReferenceStrategy struct{}

func (emptyReferenceStrategy) Name() string { return "empty" }

func (emptyReferenceStrategy) Resolve(context.Context, intake.Session, intake.SubmitResult, func()) (string, error) {
	return "", nil
}

func TestStrategyWithoutReferenceFailsTask(t *testing.T) {
	h := newHarness(t, emptyReferenceStrategy{}, upload.Options{MaxFiles: 1})
	h.start(t)
	h.sender.redirect("a.pdf", "unused")

	task := h.selectFile(t, "a.pdf")
	h.coordinator.Wait()

	got, ok := h.coordinator.Task(task.ID)
	if !ok || got.State.Status != upload.StatusFailed {
		t.Fatalf("expected failed task, got %+v", got)
	}
	if got.State.Failure.Kind != upload.FailureProtocol || got.State.Failure.Code != upload.CodeMissingOutcome {
		t.Fatalf("expected protocol missing-outcome, got %+v", got.State.Failure)
	}
	if h.coordinator.LastError() != upload.MessageFor(upload.FailureProtocol, upload.CodeMissingOutcome) {
		t.Fatalf("unexpected message %q", h.coordinator.LastError())
	}
	if !h.coordinator.SelectionEnabled() || h.fields.Len() != 0 {
		t.Fatal("a task without a reference must free its slot and write nothing")
	}
}

// stallingObserver holds the first SelectionChanged(true) until released,
// so a Select on another goroutine can slip in while it is being delivered.
type stallingObserver struct {
	*recorder
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (o *stallingObserver) SelectionChanged(enabled bool) {
	if enabled {
		o.once.Do(func() {
			close(o.entered)
			<-o.release
		})
	}
	o.recorder.SelectionChanged(enabled)
}

func TestObserverSelectionFollowsMutationOrder(t *testing.T) {
	observer := &stallingObserver{recorder: newRecorder(), entered: make(chan struct{}), release: make(chan struct{})}
	sessions := &fakeSessions{fail: map[int]error{}}
	sender := newGatedSender()
	store := form.NewIndexedStore(form.NewFields(), "fileAttachments")
	coordinator, err := upload.NewCoordinator(context.Background(), sessions, sender, upload.RedirectStrategy{}, store,
		upload.Options{MaxFiles: 1, Observer: observer})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	t.Cleanup(coordinator.Close)
	if err := coordinator.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sender.respond("a.pdf", redirectTo("errorCode=QUARANTINE"))
	sender.redirect("b.pdf", "ref-b")
	gate := sender.block("b.pdf")
	defer close(gate)

	if _, err := coordinator.Select("a.pdf", []byte("a")); err != nil {
		t.Fatalf("Select a.pdf: %v", err)
	}
	select {
	case <-observer.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the failure notification")
	}

	// a.pdf failed and freed the only slot; b.pdf takes it while the
	// observer is still inside the re-enable notification.
	if _, err := coordinator.Select("b.pdf", []byte("b")); err != nil {
		t.Fatalf("Select b.pdf: %v", err)
	}
	close(observer.release)

	deadline := time.Now().Add(5 * time.Second)
	for len(observer.Selection()) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for notifications, got %v", observer.Selection())
		}
		time.Sleep(time.Millisecond)
	}
	selection := observer.Selection()
	want := []bool{false, true, false}
	for i := range want {
		if selection[i] != want[i] {
			t.Fatalf("expected notifications %v, got %v", want, selection)
		}
	}
	if coordinator.SelectionEnabled() != selection[len(selection)-1] {
		t.Fatalf("observer ends with enabled=%v but coordinator reports %v", selection[len(selection)-1], coordinator.SelectionEnabled())
	}
}
