package fileops_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/starford/flashfs/internal/apperr"
	"github.com/starford/flashfs/internal/driver"
	"github.com/starford/flashfs/internal/driver/flash"
	"github.com/starford/flashfs/internal/fileops"
	"github.com/starford/flashfs/internal/testutil"
	"github.com/starford/flashfs/internal/volume"
)

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

func TestWriteReadRoundTrip(t *testing.T) {
	_, e := testutil.TestEngine(t)

	for _, n := range []int{0, 1, 511, 512, 513, 1024, 5000} {
		want := payload(n)
		if err := e.Write("/data.bin", want, false); err != nil {
			t.Fatalf("Write(%d): %v", n, err)
		}
		got, err := e.Read("/data.bin")
		if err != nil {
			t.Fatalf("Read(%d): %v", n, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("len %d: round trip mismatch (got %d bytes)", n, len(got))
		}
		if size := e.Size("/data.bin"); size != int64(n) {
			t.Errorf("Size = %d, want %d", size, n)
		}
	}
}

func TestWriteAppend(t *testing.T) {
	_, e := testutil.TestEngine(t)
	testutil.WriteFile(t, e, "/log.txt", "one\n")
	if err := e.AppendString("/log.txt", "two\n"); err != nil {
		t.Fatalf("AppendString: %v", err)
	}
	if err := e.Append("/log.txt", nil); err != nil {
		t.Fatalf("Append empty: %v", err)
	}
	if got := testutil.ReadFile(t, e, "/log.txt"); got != "one\ntwo\n" {
		t.Errorf("content = %q", got)
	}
}

func TestWriteRetriesPartialWrites(t *testing.T) {
	dev, e := testutil.TestEngine(t)
	dev.SetFaults(flash.Faults{MaxChunk: 7})

	want := payload(1000)
	if err := e.Write("/p.bin", want, false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := e.Read("/p.bin")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("partial writes lost data")
	}
}

func TestWriteZeroWriteFails(t *testing.T) {
	dev, e := testutil.TestEngine(t)
	dev.SetFaults(flash.Faults{Write: func(string) bool { return true }})

	err := e.WriteString("/x.txt", "data")
	if !errors.Is(err, apperr.ErrShortWrite) {
		t.Fatalf("err = %v, want ErrShortWrite", err)
	}
	if n := dev.OpenHandles(); n != 0 {
		t.Errorf("open handles = %d after failure", n)
	}
}

func TestSafeSaveScenario(t *testing.T) {
	_, e := testutil.TestEngine(t)
	testutil.WriteFile(t, e, "/f.txt", "hello")

	if err := e.SafeSave("/f.txt", []byte("world!!")); err != nil {
		t.Fatalf("SafeSave: %v", err)
	}
	if got := testutil.ReadFile(t, e, "/f.txt"); got != "world!!" {
		t.Errorf("content = %q", got)
	}
	if size := e.Size("/f.txt"); size != 7 {
		t.Errorf("size = %d, want 7", size)
	}
	if e.Exists("/f.txt" + fileops.SaveSuffix) {
		t.Error("staging file left behind")
	}
}

func TestSafeSaveCreatesMissingTarget(t *testing.T) {
	_, e := testutil.TestEngine(t)
	if err := e.SafeSave("/new.txt", []byte("fresh")); err != nil {
		t.Fatalf("SafeSave: %v", err)
	}
	if got := testutil.ReadFile(t, e, "/new.txt"); got != "fresh" {
		t.Errorf("content = %q", got)
	}
}

func TestSafeSaveStagingFailureKeepsOriginal(t *testing.T) {
	cases := []struct {
		name     string
		original string // empty means the target does not exist
	}{
		{"existing target", "original"},
		{"absent target", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dev, e := testutil.TestEngine(t)
			if tc.original != "" {
				testutil.WriteFile(t, e, "/cfg.json", tc.original)
			}
			dev.SetFaults(flash.Faults{Write: func(p string) bool {
				return strings.HasSuffix(p, fileops.SaveSuffix)
			}})

			err := e.SafeSave("/cfg.json", []byte("replacement"))
			if !errors.Is(err, apperr.ErrShortWrite) {
				t.Fatalf("err = %v, want ErrShortWrite", err)
			}
			if tc.original == "" {
				if e.Exists("/cfg.json") {
					t.Error("absent target was created")
				}
			} else if got := testutil.ReadFile(t, e, "/cfg.json"); got != tc.original {
				t.Errorf("original changed to %q", got)
			}
			if e.Exists("/cfg.json" + fileops.SaveSuffix) {
				t.Error("staging file left behind")
			}
			if n := dev.OpenHandles(); n != 0 {
				t.Errorf("open handles = %d", n)
			}
		})
	}
}

func TestSafeSaveRemoveFailureKeepsOriginal(t *testing.T) {
	dev, e := testutil.TestEngine(t)
	testutil.WriteFile(t, e, "/f.txt", "keep me")
	dev.SetFaults(flash.Faults{Remove: func(p string) bool { return p == "/f.txt" }})

	if err := e.SafeSave("/f.txt", []byte("new")); err == nil {
		t.Fatal("expected error")
	}
	if got := testutil.ReadFile(t, e, "/f.txt"); got != "keep me" {
		t.Errorf("original changed to %q", got)
	}
	if e.Exists("/f.txt.tmp") {
		t.Error("staging file left behind")
	}
}

func TestSafeSaveRenameFailureLeavesTargetAbsent(t *testing.T) {
	dev, e := testutil.TestEngine(t)
	testutil.WriteFile(t, e, "/f.txt", "old")
	dev.SetFaults(flash.Faults{Rename: func(string, string) bool { return true }})

	if err := e.SafeSave("/f.txt", []byte("new")); err == nil {
		t.Fatal("expected error")
	}
	// Delete-then-rename has no rollback: the original is already gone.
	if e.Exists("/f.txt") {
		t.Error("target should be absent after a failed publish")
	}
	if e.Exists("/f.txt.tmp") {
		t.Error("staging file left behind")
	}
}

func TestSafeSaveKeepsForeignStagingFile(t *testing.T) {
	dev, vol := testutil.TestVolume(t, flash.WithMaxOpen(1))
	e := fileops.New(vol)
	testutil.WriteFile(t, e, "/f.txt", "old")
	testutil.WriteFile(t, e, "/f.txt.tmp", "someone else's")

	held, err := dev.Open("/f.txt", driver.ModeRead)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.SafeSave("/f.txt", []byte("new")); !errors.Is(err, flash.ErrTooManyFiles) {
		t.Fatalf("err = %v, want ErrTooManyFiles", err)
	}
	_ = held.Close()

	if got := testutil.ReadFile(t, e, "/f.txt.tmp"); got != "someone else's" {
		t.Errorf("staging path = %q, want it untouched", got)
	}
	if got := testutil.ReadFile(t, e, "/f.txt"); got != "old" {
		t.Errorf("target = %q", got)
	}
}

func TestSafeSaveOutOfSpaceKeepsOriginal(t *testing.T) {
	dev, vol := testutil.TestVolume(t, flash.WithCapacity(3*512), flash.WithBlockSize(512))
	e := fileops.New(vol)
	original := payload(1000)
	if err := e.Write("/big.bin", original, false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := e.SafeSave("/big.bin", payload(1200)); !errors.Is(err, apperr.ErrShortWrite) {
		t.Fatalf("err = %v, want ErrShortWrite", err)
	}
	got, err := e.Read("/big.bin")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Error("original content changed")
	}
	if e.Exists("/big.bin.tmp") || dev.OpenHandles() != 0 {
		t.Error("failed save left state behind")
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		name string
		size int64
		want string
	}{
		{"shorter", 4, "0123"},
		{"exact", 10, "0123456789"},
		{"longer is not padded", 20, "0123456789"},
		{"zero", 0, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, e := testutil.TestEngine(t)
			testutil.WriteFile(t, e, "/t.txt", "0123456789")
			if err := e.Truncate("/t.txt", tc.size); err != nil {
				t.Fatalf("Truncate: %v", err)
			}
			if got := testutil.ReadFile(t, e, "/t.txt"); got != tc.want {
				t.Errorf("content = %q, want %q", got, tc.want)
			}
			if e.Exists("/t.txt" + fileops.TruncateSuffix) {
				t.Error("staging file left behind")
			}
		})
	}
}

func TestTruncateAcrossChunks(t *testing.T) {
	_, e := testutil.TestEngine(t)
	data := payload(2000)
	if err := e.Write("/t.bin", data, false); err != nil {
		t.Fatal(err)
	}
	if err := e.Truncate("/t.bin", 1500); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	got, _ := e.Read("/t.bin")
	if !bytes.Equal(got, data[:1500]) {
		t.Errorf("got %d bytes, want first 1500", len(got))
	}
}

func TestTruncateErrors(t *testing.T) {
	_, e := testutil.TestEngine(t)
	if err := e.Truncate("/missing", 3); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing: err = %v", err)
	}
	testutil.WriteFile(t, e, "/t.txt", "abc")
	if err := e.Truncate("/t.txt", -1); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("negative: err = %v", err)
	}
}

func TestTruncateStagingFailureKeepsOriginal(t *testing.T) {
	dev, e := testutil.TestEngine(t)
	testutil.WriteFile(t, e, "/t.txt", "0123456789")
	dev.SetFaults(flash.Faults{Write: func(p string) bool {
		return strings.HasSuffix(p, fileops.TruncateSuffix)
	}})

	if err := e.Truncate("/t.txt", 5); err == nil {
		t.Fatal("expected error")
	}
	if got := testutil.ReadFile(t, e, "/t.txt"); got != "0123456789" {
		t.Errorf("original changed to %q", got)
	}
	if e.Exists("/t.txt.trunc") || dev.OpenHandles() != 0 {
		t.Error("failed truncate left state behind")
	}
}

func TestTruncatePublishFailures(t *testing.T) {
	t.Run("remove fails", func(t *testing.T) {
		dev, e := testutil.TestEngine(t)
		testutil.WriteFile(t, e, "/t.txt", "0123456789")
		dev.SetFaults(flash.Faults{Remove: func(p string) bool { return p == "/t.txt" }})

		if err := e.Truncate("/t.txt", 4); err == nil {
			t.Fatal("expected error")
		}
		if got := testutil.ReadFile(t, e, "/t.txt"); got != "0123456789" {
			t.Errorf("original changed to %q", got)
		}
		if e.Exists("/t.txt.trunc") || dev.OpenHandles() != 0 {
			t.Error("failed truncate left state behind")
		}
	})

	t.Run("rename fails", func(t *testing.T) {
		dev, e := testutil.TestEngine(t)
		testutil.WriteFile(t, e, "/t.txt", "0123456789")
		dev.SetFaults(flash.Faults{Rename: func(string, string) bool { return true }})

		if err := e.Truncate("/t.txt", 4); err == nil {
			t.Fatal("expected error")
		}
		if e.Exists("/t.txt") {
			t.Error("target should be absent after a failed publish")
		}
		if e.Exists("/t.txt.trunc") || dev.OpenHandles() != 0 {
			t.Error("failed truncate left state behind")
		}
	})
}

func TestCopy(t *testing.T) {
	_, e := testutil.TestEngine(t)
	data := payload(3000)
	if err := e.Write("/a.bin", data, false); err != nil {
		t.Fatal(err)
	}
	if err := e.Copy("/a.bin", "/b.bin"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	got, _ := e.Read("/b.bin")
	if !bytes.Equal(got, data) {
		t.Error("copy mismatch")
	}
}

func TestCopySelfIsNoop(t *testing.T) {
	dev, e := testutil.TestEngine(t)
	testutil.WriteFile(t, e, "/a.txt", "same")
	dev.SetFaults(flash.Faults{Write: func(string) bool { return true }})
	if err := e.Copy("/a.txt", "/a.txt"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if got := testutil.ReadFile(t, e, "/a.txt"); got != "same" {
		t.Errorf("content = %q", got)
	}
}

func TestCopyDirectoryFails(t *testing.T) {
	dev, e := testutil.TestEngine(t)
	if err := e.Mkdir("/dir"); err != nil {
		t.Fatal(err)
	}
	if err := e.Copy("/dir", "/b"); !errors.Is(err, apperr.ErrIsDirectory) {
		t.Fatalf("err = %v, want ErrIsDirectory", err)
	}
	if e.Exists("/b") {
		t.Error("destination was created")
	}
	if dev.OpenHandles() != 0 {
		t.Error("handle leaked")
	}
}

func TestCopyWriteFailureClosesHandles(t *testing.T) {
	dev, e := testutil.TestEngine(t)
	testutil.WriteFile(t, e, "/a.txt", "content")
	dev.SetFaults(flash.Faults{Write: func(p string) bool { return p == "/b.txt" }})

	if err := e.Copy("/a.txt", "/b.txt"); !errors.Is(err, apperr.ErrShortWrite) {
		t.Fatalf("err = %v", err)
	}
	if dev.OpenHandles() != 0 {
		t.Errorf("open handles = %d", dev.OpenHandles())
	}
}

func TestMoveReplacesDestination(t *testing.T) {
	_, e := testutil.TestEngine(t)
	testutil.WriteFile(t, e, "/a.txt", "from a")
	testutil.WriteFile(t, e, "/b.txt", "from b")

	if err := e.Move("/a.txt", "/b.txt"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if e.Exists("/a.txt") {
		t.Error("source still exists")
	}
	if got := testutil.ReadFile(t, e, "/b.txt"); got != "from a" {
		t.Errorf("destination = %q", got)
	}
}

func TestMoveEdgeCases(t *testing.T) {
	_, e := testutil.TestEngine(t)
	testutil.WriteFile(t, e, "/a.txt", "a")
	testutil.WriteFile(t, e, "/b.txt", "b")

	if err := e.Move("/a.txt", "/a.txt"); err != nil {
		t.Errorf("self move: %v", err)
	}
	if err := e.Move("/missing", "/b.txt"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing source: err = %v", err)
	}
	if got := testutil.ReadFile(t, e, "/b.txt"); got != "b" {
		t.Errorf("destination touched by failed move: %q", got)
	}
}

func TestMoveRemoveFailureKeepsBoth(t *testing.T) {
	dev, e := testutil.TestEngine(t)
	testutil.WriteFile(t, e, "/a.txt", "from a")
	testutil.WriteFile(t, e, "/b.txt", "from b")
	dev.SetFaults(flash.Faults{Remove: func(p string) bool { return p == "/b.txt" }})

	if err := e.Move("/a.txt", "/b.txt"); err == nil {
		t.Fatal("expected error")
	}
	if got := testutil.ReadFile(t, e, "/a.txt"); got != "from a" {
		t.Errorf("source = %q", got)
	}
	if got := testutil.ReadFile(t, e, "/b.txt"); got != "from b" {
		t.Errorf("destination = %q", got)
	}
}

func TestMoveRenameFailureLosesDestination(t *testing.T) {
	dev, e := testutil.TestEngine(t)
	testutil.WriteFile(t, e, "/a.txt", "from a")
	testutil.WriteFile(t, e, "/b.txt", "from b")
	dev.SetFaults(flash.Faults{Rename: func(string, string) bool { return true }})

	if err := e.Move("/a.txt", "/b.txt"); err == nil {
		t.Fatal("expected error")
	}
	// The destination was removed before the rename was attempted.
	if e.Exists("/b.txt") {
		t.Error("destination should be absent")
	}
	if got := testutil.ReadFile(t, e, "/a.txt"); got != "from a" {
		t.Errorf("source = %q", got)
	}
}

func TestTouch(t *testing.T) {
	_, e := testutil.TestEngine(t)
	if err := e.Touch("/empty"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if !e.Exists("/empty") || e.Size("/empty") != 0 {
		t.Error("touch did not create an empty file")
	}
	testutil.WriteFile(t, e, "/full", "keep")
	if err := e.Touch("/full"); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ReadFile(t, e, "/full"); got != "keep" {
		t.Errorf("touch changed content to %q", got)
	}
}

func TestReadInto(t *testing.T) {
	_, e := testutil.TestEngine(t)
	testutil.WriteFile(t, e, "/r.txt", "hello")

	buf := make([]byte, 4)
	n, err := e.ReadInto("/r.txt", buf)
	if err != nil || n != 4 || string(buf) != "hell" {
		t.Errorf("small buffer: n=%d err=%v buf=%q", n, err, buf)
	}

	buf = make([]byte, 10)
	n, err = e.ReadInto("/r.txt", buf)
	if err != nil || n != 5 || string(buf[:n]) != "hello" {
		t.Errorf("large buffer: n=%d err=%v", n, err)
	}

	if _, err := e.ReadInto("/r.txt", nil); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("empty buffer: err = %v", err)
	}
}

func TestReadErrors(t *testing.T) {
	_, e := testutil.TestEngine(t)
	if _, err := e.Read("/missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing: err = %v", err)
	}
	if err := e.Mkdir("/d"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Read("/d"); !errors.Is(err, apperr.ErrIsDirectory) {
		t.Errorf("directory: err = %v", err)
	}
	if !e.IsDir("/d") || e.IsDir("/missing") {
		t.Error("IsDir mismatch")
	}
}

func TestOperationsRequireMount(t *testing.T) {
	vol := volume.New(flash.New())
	e := fileops.New(vol)

	checks := map[string]error{
		"write":     e.WriteString("/a", "x"),
		"safe save": e.SafeSave("/a", []byte("x")),
		"copy":      e.Copy("/a", "/b"),
		"move":      e.Move("/a", "/b"),
		"touch":     e.Touch("/a"),
		"truncate":  e.Truncate("/a", 1),
		"remove":    e.Remove("/a"),
	}
	for name, err := range checks {
		if !errors.Is(err, apperr.ErrNotMounted) {
			t.Errorf("%s: err = %v, want ErrNotMounted", name, err)
		}
	}
	if _, err := e.Read("/a"); !errors.Is(err, apperr.ErrNotMounted) {
		t.Errorf("read: err = %v", err)
	}
	if e.Exists("/a") || e.Size("/a") != 0 {
		t.Error("queries should be empty when unmounted")
	}

	var sink bytes.Buffer
	e.ListDir("/", &sink)
	e.ListRecursive("/", &sink, 3)
	if got := sink.String(); got != "FS not initialized\nFS not initialized\n" {
		t.Errorf("sink = %q", got)
	}
}

func TestObserverReceivesEvents(t *testing.T) {
	var events []fileops.Event
	_, e := testutil.TestEngine(t, fileops.WithObserver(func(ev fileops.Event) {
		events = append(events, ev)
	}))

	testutil.WriteFile(t, e, "/a", "1")
	_ = e.SafeSave("/a", []byte("2"))
	_ = e.Copy("/a", "/b")
	_ = e.Move("/b", "/c")
	_ = e.SafeSave("/a", nil)

	want := []fileops.Event{
		{Kind: fileops.EventWritten, Path: "/a"},
		{Kind: fileops.EventSaved, Path: "/a"},
		{Kind: fileops.EventCopied, Path: "/b", From: "/a"},
		{Kind: fileops.EventMoved, Path: "/c", From: "/b"},
		{Kind: fileops.EventSaved, Path: "/a"},
	}
	if len(events) != len(want) {
		t.Fatalf("events = %+v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}
}
