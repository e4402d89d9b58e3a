package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// JournalFile is a journal on disk.
type JournalFile struct {
	Path      string
	Name      string
	Size      int64
	ModTime   time.Time
	NumEvents int
}

// ListJournals finds journal files in dir, newest first. A missing
// directory has no journals.
func ListJournals(dir string) ([]JournalFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading journal directory: %w", err)
	}

	var files []JournalFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), journalSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(dir, e.Name())
		n, _ := countLines(path) //nolint:errcheck
		files = append(files, JournalFile{
			Path:      path,
			Name:      e.Name(),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			NumEvents: n,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})

	return files, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close() //nolint:errcheck
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}

// ReadEvents parses all events from a journal. Malformed lines are skipped.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var events []Event
	scanner := bufio.NewScanner(f)
	// Increase buffer for large lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue // skip malformed lines
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	return events, nil
}

// RenderTimeline writes a human-readable timeline of events to w.
//
//nolint:errcheck // display-only writes; errors are not actionable
func RenderTimeline(w io.Writer, events []Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w, " TASK JOURNAL")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	start := events[0].Timestamp
	for _, ev := range events {
		ts := formatDuration(ev.Timestamp.Sub(start))
		taskID, _ := ev.Data["task_id"].(string) //nolint:errcheck
		task, _ := ev.Data["task"].(string)      //nolint:errcheck

		switch ev.Type {
		case EventHostOpen:
			version, _ := ev.Data["version"].(string) //nolint:errcheck
			engine, _ := ev.Data["engine"].(string)   //nolint:errcheck
			fmt.Fprintf(w, "[%s] 🚀 Host opened  version=%s  engine=%s\n", ts, version, engine)

		case EventTaskStart:
			fmt.Fprintf(w, "[%s] ▶  Task started  %s  %q\n", ts, taskID, task)

		case EventTaskResume:
			fmt.Fprintf(w, "[%s] ↻  Task resumed  %s  %q\n", ts, taskID, task)

		case EventTaskCancel:
			acked, _ := ev.Data["acknowledged"].(bool) //nolint:errcheck
			wait := jsonNumber(ev.Data["wait_ms"])
			note := "acknowledged"
			if !acked {
				note = "timed out"
			}
			fmt.Fprintf(w, "[%s] ■  Task cancelled  %s  (%s after %dms)\n", ts, taskID, note, wait)

		case EventTaskDelete:
			fmt.Fprintf(w, "[%s] ✗  Task deleted  %s\n", ts, taskID)

		case EventCatalogRefresh:
			entries := jsonNumber(ev.Data["entries"])
			if ok, _ := ev.Data["ok"].(bool); ok { //nolint:errcheck
				fmt.Fprintf(w, "[%s] ⟳  Catalog refreshed  %d models\n", ts, entries)
			} else {
				msg, _ := ev.Data["error"].(string) //nolint:errcheck
				fmt.Fprintf(w, "[%s] ⟳  Catalog refresh failed: %s\n", ts, msg)
			}

		case EventError:
			msg, _ := ev.Data["message"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] ❌ Error: %s\n", ts, msg)

		case EventHostClose:
			fmt.Fprintf(w, "[%s] 🏁 Host closed\n", ts)

		default:
			fmt.Fprintf(w, "[%s] %s %v\n", ts, ev.Type, ev.Data)
		}
	}
	fmt.Fprintln(w)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%6dms", d.Milliseconds())
	}
	return fmt.Sprintf("%6.1fs", d.Seconds())
}

// jsonNumber extracts a number from event data, either decoded from JSON
// (float64 or json.Number) or built in memory (int, int32, int64).
func jsonNumber(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case json.Number:
		i, _ := n.Int64() //nolint:errcheck
		return int(i)
	}
	return 0
}
