package intake_test

import (
	"context"
	"net/http"
	"reflect"
	"testing"

	"linkrelay/internal/config"
	"linkrelay/internal/dispatch"
	"linkrelay/internal/folders"
	"linkrelay/internal/intake"
	"linkrelay/internal/journal"
	"linkrelay/internal/links"
	"linkrelay/internal/logging"
	"linkrelay/internal/services/megaplan"
	"linkrelay/internal/services/nextcloud"
	"linkrelay/internal/testsupport"
)

type fixture struct {
	cfg     *config.Config
	remote  *testsupport.Remote
	store   journal.Store
	queue   *dispatch.Queue
	handler *intake.Handler
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	remote := testsupport.NewRemote(t)
	cfg := testsupport.NewConfig(t, testsupport.WithRemote(remote))
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	cloud := nextcloud.NewClient(remote.URL(), "relay", "pw", "", remote.Client(), nil)
	tracker := megaplan.NewClient(remote.URL(), "token", "", remote.Client(), nil)
	queue := dispatch.New(context.Background(), logger, nil)
	t.Cleanup(queue.Close)

	handler, err := intake.NewHandler(intake.Dependencies{
		Store:    store,
		Folders:  folders.NewManager(cloud, logger),
		Links:    links.NewProvisioner(cloud, tracker, store, logger),
		Dispatch: queue,
		Catalog:  cfg.Nextcloud.CatalogFolder,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return fixture{cfg: cfg, remote: remote, store: store, queue: queue, handler: handler}
}

func (f fixture) send(t *testing.T, ev intake.Event) intake.Outcome {
	t.Helper()
	outcome := f.handler.Handle(context.Background(), ev)
	f.queue.Wait()
	return outcome
}

func createEvent(id, name, human string) intake.Event {
	return intake.Event{Type: intake.EventCreate, TaskID: id, TaskName: name, HumanNumber: human}
}

func TestCreateBuildsFolderShareAndBinding(t *testing.T) {
	f := newFixture(t)

	if got := f.send(t, createEvent("42", "Foo", "7")); got != intake.OutcomeAccepted {
		t.Fatalf("expected accepted, got %s", got)
	}

	if got := f.remote.CreatedFolders(); !reflect.DeepEqual(got, []string{"/КАТАЛОГ/7. Foo"}) {
		t.Fatalf("unexpected folders %v", got)
	}
	if got := f.remote.TrackerUpdates(); !reflect.DeepEqual(got, []string{"42"}) {
		t.Fatalf("unexpected tracker updates %v", got)
	}
	j := testsupport.LoadJournal(t, f.store)
	b, ok := j.Get("42")
	if !ok {
		t.Fatal("expected task 42 journaled")
	}
	want := journal.Binding{TaskID: "42", FolderPath: "/КАТАЛОГ/7. Foo", ShareID: "101"}
	if b != want {
		t.Fatalf("binding = %+v, want %+v", b, want)
	}
}

func TestCreateWithoutHumanNumberUsesIDSuffix(t *testing.T) {
	f := newFixture(t)
	f.send(t, createEvent("42", "Foo", ""))

	b, _ := testsupport.LoadJournal(t, f.store).Get("42")
	if b.FolderPath != "/КАТАЛОГ/Foo_42" {
		t.Fatalf("unexpected folder path %q", b.FolderPath)
	}
}

func TestCreateIsIdempotentForKnownTask(t *testing.T) {
	f := newFixture(t)
	f.send(t, createEvent("42", "Foo", "7"))
	before := len(f.remote.Calls())

	f.send(t, createEvent("42", "Foo renamed", "7"))

	if after := len(f.remote.Calls()); after != before {
		t.Fatalf("expected no remote calls, got %d new", after-before)
	}
	b, _ := testsupport.LoadJournal(t, f.store).Get("42")
	if b.FolderPath != "/КАТАЛОГ/7. Foo" || b.ShareID != "101" {
		t.Fatalf("journal changed: %+v", b)
	}
}

func TestRenameUpdatesJournalThenMoves(t *testing.T) {
	f := newFixture(t)
	f.send(t, createEvent("42", "Foo", "7"))

	ev := createEvent("42", "Bar", "7")
	ev.Rename = true
	f.send(t, ev)

	moves := f.remote.CallsTo("MOVE")
	if len(moves) != 1 {
		t.Fatalf("expected one MOVE, got %d", len(moves))
	}
	dest := moves[0].Header.Get("Destination")
	if want := nextcloud.NewClient(f.remote.URL(), "relay", "", "", nil, nil).FolderURL("/КАТАЛОГ/7. Bar"); dest != want {
		t.Fatalf("Destination = %q, want %q", dest, want)
	}
	b, _ := testsupport.LoadJournal(t, f.store).Get("42")
	if b.FolderPath != "/КАТАЛОГ/7. Bar" || b.ShareID != "101" {
		t.Fatalf("unexpected binding after rename %+v", b)
	}
}

func TestRenameFailureKeepsNewPath(t *testing.T) {
	f := newFixture(t)
	f.send(t, createEvent("42", "Foo", "7"))
	f.remote.Set(func(r *testsupport.Remote) { r.MoveStatus = http.StatusConflict })

	ev := createEvent("42", "Bar", "7")
	ev.Rename = true
	f.send(t, ev)

	b, _ := testsupport.LoadJournal(t, f.store).Get("42")
	if b.FolderPath != "/КАТАЛОГ/7. Bar" {
		t.Fatalf("expected journal to keep the new path, got %q", b.FolderPath)
	}
}

func TestRenameToSamePathIsNoop(t *testing.T) {
	f := newFixture(t)
	f.send(t, createEvent("42", "Foo", "7"))

	ev := createEvent("42", "Foo", "7")
	ev.Rename = true
	f.send(t, ev)

	if len(f.remote.CallsTo("MOVE")) != 0 {
		t.Fatal("expected no MOVE for an unchanged path")
	}
}

func TestCreateAgainRevokesAndReplaces(t *testing.T) {
	f := newFixture(t)
	f.send(t, createEvent("42", "Foo", "7"))

	ev := createEvent("42", "Foo", "7")
	ev.CreateAgain = true
	f.send(t, ev)

	if got := f.remote.RevokedShares(); !reflect.DeepEqual(got, []string{"101"}) {
		t.Fatalf("unexpected revoked shares %v", got)
	}
	b, _ := testsupport.LoadJournal(t, f.store).Get("42")
	if b.ShareID != "102" {
		t.Fatalf("expected replacement share 102, got %+v", b)
	}
}

func TestDropRevokesAndForgets(t *testing.T) {
	f := newFixture(t)
	f.send(t, createEvent("42", "Foo", "7"))
	f.send(t, createEvent("43", "Baz", "8"))

	f.send(t, intake.Event{Type: intake.EventDrop, TaskID: "42"})

	if got := f.remote.RevokedShares(); !reflect.DeepEqual(got, []string{"101"}) {
		t.Fatalf("unexpected revoked shares %v", got)
	}
	j := testsupport.LoadJournal(t, f.store)
	if j.Has("42") || !j.Has("43") {
		t.Fatalf("unexpected journal after drop: %v", j.Records())
	}
}

func TestDropUnknownTaskDoesNothingRemote(t *testing.T) {
	f := newFixture(t)
	f.send(t, intake.Event{Type: intake.EventDrop, TaskID: "404"})

	if len(f.remote.Calls()) != 0 {
		t.Fatalf("expected no remote calls, got %v", f.remote.Calls())
	}
}

func TestUnsupportedEventIsIgnored(t *testing.T) {
	f := newFixture(t)
	if got := f.send(t, intake.Event{Type: "on_after_update", TaskID: "42"}); got != intake.OutcomeIgnored {
		t.Fatalf("expected ignored, got %s", got)
	}
	if len(f.remote.Calls()) != 0 {
		t.Fatal("expected no remote calls")
	}
	if testsupport.LoadJournal(t, f.store).Len() != 0 {
		t.Fatal("expected empty journal")
	}
}

func TestHandleBodyIgnoresGarbage(t *testing.T) {
	f := newFixture(t)
	if got := f.handler.HandleBody(context.Background(), []byte("not json")); got != intake.OutcomeIgnored {
		t.Fatalf("expected ignored, got %s", got)
	}
	body := []byte(`{"event":"on_after_create","data":{"id":42,"name":"Foo","humanNumber":7}}`)
	if got := f.handler.HandleBody(context.Background(), body); got != intake.OutcomeAccepted {
		t.Fatalf("expected accepted, got %s", got)
	}
	f.queue.Wait()
	if !testsupport.LoadJournal(t, f.store).Has("42") {
		t.Fatal("expected task journaled from raw body")
	}
}

func TestFolderFailureLeavesBindingWithoutShare(t *testing.T) {
	f := newFixture(t)
	f.remote.Set(func(r *testsupport.Remote) { r.MkcolStatus = http.StatusInternalServerError })

	f.send(t, createEvent("42", "Foo", "7"))

	if len(f.remote.SharedPaths()) != 0 {
		t.Fatal("expected no share after folder failure")
	}
	b, ok := testsupport.LoadJournal(t, f.store).Get("42")
	if !ok || b.HasShare() {
		t.Fatalf("expected binding without share, got %+v (present=%v)", b, ok)
	}
}

func TestExistingFolderStillGetsShare(t *testing.T) {
	f := newFixture(t)
	f.remote.Set(func(r *testsupport.Remote) { r.MkcolStatus = http.StatusMethodNotAllowed })

	f.send(t, createEvent("42", "Foo", "7"))

	b, _ := testsupport.LoadJournal(t, f.store).Get("42")
	if b.ShareID != "101" {
		t.Fatalf("expected share on existing folder, got %+v", b)
	}
}

func TestShareFailureLeavesBindingWithoutShare(t *testing.T) {
	f := newFixture(t)
	f.remote.Set(func(r *testsupport.Remote) { r.ShareStatus = http.StatusForbidden })

	f.send(t, createEvent("42", "Foo", "7"))

	b, ok := testsupport.LoadJournal(t, f.store).Get("42")
	if !ok || b.HasShare() {
		t.Fatalf("expected binding without share, got %+v (present=%v)", b, ok)
	}
	if len(f.remote.TrackerUpdates()) != 0 {
		t.Fatal("tracker must not be updated without a share")
	}
}

func TestTrackerNotFoundReleasesBinding(t *testing.T) {
	f := newFixture(t)
	f.remote.Set(func(r *testsupport.Remote) { r.TrackerStatusFor["42"] = http.StatusNotFound })

	f.send(t, createEvent("42", "Foo", "7"))

	if testsupport.LoadJournal(t, f.store).Has("42") {
		t.Fatal("expected binding released after tracker 404")
	}
	if got := f.remote.RevokedShares(); !reflect.DeepEqual(got, []string{"101"}) {
		t.Fatalf("expected the new share revoked, got %v", got)
	}
}

func TestTrackerFailureKeepsBinding(t *testing.T) {
	f := newFixture(t)
	f.remote.Set(func(r *testsupport.Remote) { r.TrackerStatus = http.StatusBadGateway })

	f.send(t, createEvent("42", "Foo", "7"))

	b, _ := testsupport.LoadJournal(t, f.store).Get("42")
	if b.ShareID != "101" {
		t.Fatalf("expected share kept despite tracker failure, got %+v", b)
	}
}

func TestNewHandlerRequiresDependencies(t *testing.T) {
	if _, err := intake.NewHandler(intake.Dependencies{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
