package fileservice_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/starford/flashfs/internal/apperr"
	"github.com/starford/flashfs/internal/checksum"
	"github.com/starford/flashfs/internal/fileops"
	"github.com/starford/flashfs/internal/fileservice"
	"github.com/starford/flashfs/internal/testutil"
)

type published struct {
	mu     sync.Mutex
	events []fileops.Event
}

func (p *published) PublishFileEvent(ev fileops.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *published) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Kind+":"+ev.Path)
	}
	return out
}

func testService(t *testing.T) (*fileservice.Service, *published) {
	t.Helper()
	_, e := testutil.TestEngine(t)
	pub := &published{}
	return fileservice.New(e, testutil.TestDB(t), fileservice.WithPublisher(pub)), pub
}

func TestSaveAndRead(t *testing.T) {
	svc, pub := testService(t)
	ctx := context.Background()

	info, err := svc.Save(ctx, "/a.txt", []byte("hello"), "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if info.Size != 5 || info.Checksum != checksum.Sum([]byte("hello")) {
		t.Errorf("info = %+v", info)
	}

	got, err := svc.Read(ctx, "/a.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got.Content) != "hello" || got.Checksum != info.Checksum {
		t.Errorf("detail = %+v", got)
	}
	if kinds := pub.kinds(); !slices.Equal(kinds, []string{"saved:/a.txt"}) {
		t.Errorf("events = %v", kinds)
	}
}

func TestSaveIfMatch(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	v1, err := svc.Save(ctx, "/lock.txt", []byte("v1"), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Save(ctx, "/lock.txt", []byte("v2"), v1.Checksum); err != nil {
		t.Fatalf("save with current checksum: %v", err)
	}
	_, err = svc.Save(ctx, "/lock.txt", []byte("v3"), v1.Checksum)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("stale checksum err = %v, want ErrConflict", err)
	}
	got, _ := svc.Read(ctx, "/lock.txt")
	if string(got.Content) != "v2" {
		t.Errorf("content = %q, want v2", got.Content)
	}

	_, err = svc.Save(ctx, "/missing.txt", []byte("x"), "abc")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("if-match on missing file err = %v, want ErrNotFound", err)
	}
}

func TestMutationsReturnInfo(t *testing.T) {
	svc, pub := testService(t)
	ctx := context.Background()

	if _, err := svc.Append(ctx, "/log", []byte("ab")); err != nil {
		t.Fatal(err)
	}
	info, err := svc.Append(ctx, "/log", []byte("cd"))
	if err != nil || info.Size != 4 {
		t.Fatalf("Append: info=%+v err=%v", info, err)
	}
	info, err = svc.Truncate(ctx, "/log", 1)
	if err != nil || info.Size != 1 {
		t.Fatalf("Truncate: info=%+v err=%v", info, err)
	}
	info, err = svc.Copy(ctx, "/log", "/copy")
	if err != nil || info.Checksum != checksum.Sum([]byte("a")) {
		t.Fatalf("Copy: info=%+v err=%v", info, err)
	}
	if _, err := svc.Move(ctx, "/copy", "/moved"); err != nil {
		t.Fatal(err)
	}
	info, err = svc.Touch(ctx, "/empty")
	if err != nil || info.Size != 0 {
		t.Fatalf("Touch: info=%+v err=%v", info, err)
	}
	if err := svc.Remove(ctx, "/empty"); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"appended:/log", "appended:/log", "truncated:/log",
		"copied:/copy", "moved:/moved", "touched:/empty", "removed:/empty",
	}
	if kinds := pub.kinds(); !slices.Equal(kinds, want) {
		t.Errorf("events = %v, want %v", kinds, want)
	}

	rep, err := svc.Verify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Clean() {
		t.Errorf("catalog drifted: %+v", rep)
	}
}

func TestListAndTree(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	if err := svc.Mkdir(ctx, "/d"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Save(ctx, "/d/x", []byte("x"), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Save(ctx, "/top", []byte("t"), ""); err != nil {
		t.Fatal(err)
	}

	top, err := svc.List(ctx, "/")
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 {
		t.Fatalf("List(/) = %+v", top)
	}
	tree, err := svc.Tree(ctx, "/", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree) != 3 {
		t.Fatalf("Tree(/) = %+v", tree)
	}
	if _, err := svc.List(ctx, "/top"); !errors.Is(err, apperr.ErrNotDirectory) {
		t.Errorf("List(file) err = %v, want ErrNotDirectory", err)
	}
}

func TestSpaceAndFormat(t *testing.T) {
	svc, pub := testService(t)
	ctx := context.Background()

	if _, err := svc.Save(ctx, "/a", []byte("a"), ""); err != nil {
		t.Fatal(err)
	}
	if sp := svc.Space(ctx); sp.UsedBytes == 0 || sp.TotalBytes == 0 {
		t.Errorf("space = %+v", sp)
	}
	if err := svc.Format(ctx); err != nil {
		t.Fatal(err)
	}
	if sp := svc.Space(ctx); sp.UsedBytes != 0 {
		t.Errorf("used after format = %d", sp.UsedBytes)
	}
	kinds := pub.kinds()
	if kinds[len(kinds)-1] != "formatted:/" {
		t.Errorf("last event = %v", kinds)
	}
}

func TestExternalChanges(t *testing.T) {
	_, e := testutil.TestEngine(t)
	db := testutil.TestDB(t)
	pub := &published{}
	svc := fileservice.New(e, db, fileservice.WithPublisher(pub))

	// Engine-originated write: the watcher echo must be dropped.
	if _, err := svc.Save(context.Background(), "/a", []byte("one"), ""); err != nil {
		t.Fatal(err)
	}
	svc.FileChanged("/a")
	if kinds := pub.kinds(); len(kinds) != 1 {
		t.Fatalf("echo published: %v", kinds)
	}

	// Direct writes bypass the service, as an outside process would.
	unobserved := fileops.New(e.Volume())
	if err := unobserved.WriteString("/a", "two"); err != nil {
		t.Fatal(err)
	}
	svc.FileChanged("/a")
	if cs, _ := db.GetChecksum("/a"); cs != checksum.Sum([]byte("two")) {
		t.Errorf("catalog not updated: %q", cs)
	}

	if err := unobserved.Remove("/a"); err != nil {
		t.Fatal(err)
	}
	svc.FileRemoved("/a")
	svc.FileRemoved("/a")

	if err := unobserved.WriteString("/b", "b"); err != nil {
		t.Fatal(err)
	}
	svc.Reconcile()

	want := []string{"saved:/a", "written:/a", "removed:/a", "written:/b"}
	if kinds := pub.kinds(); !slices.Equal(kinds, want) {
		t.Errorf("events = %v, want %v", kinds, want)
	}
	rep, err := svc.Verify(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Clean() {
		t.Errorf("report after reconcile = %+v", rep)
	}
}

func TestVerifyWithoutCatalog(t *testing.T) {
	_, e := testutil.TestEngine(t)
	svc := fileservice.New(e, nil)
	if _, err := svc.Verify(context.Background()); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}
