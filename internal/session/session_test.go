package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewEvent(t *testing.T) {
	ev := NewEvent(EventTaskStart, TaskData("t-1", "hello"))

	if ev.Type != EventTaskStart {
		t.Errorf("Type = %q, want %q", ev.Type, EventTaskStart)
	}
	if ev.Data["task_id"] != "t-1" {
		t.Errorf("Data[task_id] = %v, want %q", ev.Data["task_id"], "t-1")
	}
	if ev.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
}

func TestCatalogRefreshData(t *testing.T) {
	d := CatalogRefreshData(12, nil)
	if d["ok"] != true || d["entries"] != 12 {
		t.Errorf("success data = %v", d)
	}
	if _, ok := d["error"]; ok {
		t.Error("success data should not carry an error")
	}

	d = CatalogRefreshData(0, errors.New("registry down"))
	if d["ok"] != false || d["error"] != "registry down" {
		t.Errorf("failure data = %v", d)
	}
}

func TestErrorData(t *testing.T) {
	d := ErrorData("delete failed", map[string]any{"task_id": "foo"})
	if d["message"] != "delete failed" {
		t.Errorf("message = %v", d["message"])
	}
	if d["task_id"] != "foo" {
		t.Errorf("task_id = %v", d["task_id"])
	}
}

func TestJSONJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "test"+journalSuffix)

	j, err := NewJSONJournal(path)
	if err != nil {
		t.Fatalf("NewJSONJournal: %v", err)
	}
	if j.Path() != path {
		t.Errorf("Path() = %q, want %q", j.Path(), path)
	}

	events := []Event{
		NewEvent(EventHostOpen, HostOpenData("1.0.0", "mock", "/tmp/x")),
		NewEvent(EventTaskStart, TaskData("t-1", "hello")),
		NewEvent(EventTaskCancel, TaskCancelData("t-1", true, 12)),
		NewEvent(EventHostClose, nil),
	}
	for _, ev := range events {
		if err := j.Log(ev); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}

	var first Event
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("Unmarshal line 0: %v", err)
	}
	if first.Type != EventHostOpen {
		t.Errorf("first event type = %q, want %q", first.Type, EventHostOpen)
	}
}

func TestJSONJournalAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a"+journalSuffix)

	for i := 0; i < 2; i++ {
		j, err := NewJSONJournal(path)
		if err != nil {
			t.Fatalf("NewJSONJournal: %v", err)
		}
		j.Log(NewEvent(EventTaskDelete, TaskData("t", ""))) //nolint:errcheck
		j.Close()                                          //nolint:errcheck
	}

	events, err := ReadEvents(path)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
}

func TestNopJournal(t *testing.T) {
	var j Journal = NopJournal{}
	if err := j.Log(NewEvent(EventHostOpen, nil)); err != nil {
		t.Errorf("NopJournal.Log should not error: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("NopJournal.Close should not error: %v", err)
	}
}

func TestDefaultPath(t *testing.T) {
	p := DefaultPath("/tmp/journal")
	if filepath.Dir(p) != "/tmp/journal" {
		t.Errorf("dir = %q, want /tmp/journal", filepath.Dir(p))
	}
	if !strings.HasSuffix(p, journalSuffix) {
		t.Errorf("path %q should end with %q", p, journalSuffix)
	}
}

func TestListJournals(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"20250115T100000Z" + journalSuffix,
		"20250116T100000Z" + journalSuffix,
		"not-a-journal.txt",
	} {
		os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0o644) //nolint:errcheck
	}

	files, err := ListJournals(dir)
	if err != nil {
		t.Fatalf("ListJournals: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	if files[0].NumEvents != 1 {
		t.Errorf("NumEvents = %d, want 1", files[0].NumEvents)
	}
}

func TestListJournalsNoDir(t *testing.T) {
	files, err := ListJournals(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("ListJournals: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("got %d files, want 0", len(files))
	}
}

func TestReadEventsSkipsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x"+journalSuffix)

	content := `{"timestamp":"2025-01-15T10:00:00Z","type":"host_open","data":{}}
not valid json
{"timestamp":"2025-01-15T10:00:01Z","type":"host_close","data":{}}
`
	os.WriteFile(path, []byte(content), 0o644) //nolint:errcheck

	events, err := ReadEvents(path)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (malformed line skipped)", len(events))
	}
}

func TestRenderTimeline(t *testing.T) {
	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, Type: EventHostOpen, Data: HostOpenData("1.2.3", "copilot", "/s")},
		{Timestamp: base.Add(100 * time.Millisecond), Type: EventTaskStart, Data: TaskData("task-1", "write tests")},
		{Timestamp: base.Add(200 * time.Millisecond), Type: EventTaskCancel, Data: TaskCancelData("task-1", false, 3000)},
		{Timestamp: base.Add(300 * time.Millisecond), Type: EventTaskResume, Data: TaskData("task-1", "write tests")},
		{Timestamp: base.Add(400 * time.Millisecond), Type: EventCatalogRefresh, Data: CatalogRefreshData(0, errors.New("offline"))},
		{Timestamp: base.Add(500 * time.Millisecond), Type: EventError, Data: ErrorData("something broke", nil)},
		{Timestamp: base.Add(2 * time.Second), Type: EventHostClose},
	}

	var buf bytes.Buffer
	RenderTimeline(&buf, events)
	output := buf.String()

	for _, want := range []string{"TASK JOURNAL", "copilot", "task-1", "timed out after 3000ms", "offline", "something broke", "2.0s"} {
		if !strings.Contains(output, want) {
			t.Errorf("output should contain %q", want)
		}
	}
}

func TestJSONNumber(t *testing.T) {
	for _, v := range []any{float64(3000), 3000, int32(3000), int64(3000), json.Number("3000")} {
		if got := jsonNumber(v); got != 3000 {
			t.Errorf("jsonNumber(%T) = %d, want 3000", v, got)
		}
	}
	if got := jsonNumber("3000"); got != 0 {
		t.Errorf("jsonNumber(string) = %d, want 0", got)
	}
}

func TestRenderTimelineEmpty(t *testing.T) {
	var buf bytes.Buffer
	RenderTimeline(&buf, nil)
	if !strings.Contains(buf.String(), "No events found.") {
		t.Error("empty events should print 'No events found.'")
	}
}
