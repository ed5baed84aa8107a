package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const defaultPoll = 250 * time.Millisecond

// Entry is one log record.
type Entry []string

func (e Entry) String() string {
	return strings.Join(e, "\n")
}

// TailOptions controls Tail. Limit caps the replayed backlog; zero or less
// replays the whole file.
type TailOptions struct {
	Limit  int
	Follow bool
	Poll   time.Duration
	Match  func(Entry) bool
}

// Tail emits the last opts.Limit matching entries of path and, when following,
// every matching entry appended afterwards until ctx is done. A missing file
// is not an error; a follower waits for it to appear.
func Tail(ctx context.Context, path string, opts TailOptions, emit func(Entry) error) error {
	if emit == nil {
		return errors.New("tail: emit callback is required")
	}
	if opts.Poll <= 0 {
		opts.Poll = defaultPoll
	}
	t := &tailer{path: path, opts: opts}
	if err := t.backfill(emit); err != nil {
		return err
	}
	if !opts.Follow {
		return nil
	}
	return t.follow(ctx)
}

type tailer struct {
	path    string
	opts    TailOptions
	sink    func(Entry) error
	info    os.FileInfo
	offset  int64
	pending Entry
}

func (t *tailer) backfill(emit func(Entry) error) error {
	t.sink = emit
	info, err := os.Stat(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("log path %q is a directory", t.path)
	}

	var backlog []Entry
	t.sink = func(e Entry) error {
		backlog = append(backlog, e)
		if t.opts.Limit > 0 && len(backlog) > t.opts.Limit {
			backlog = backlog[1:]
		}
		return nil
	}
	offset, err := scanLines(t.path, 0, t.addLine)
	if err != nil {
		return err
	}
	if err := t.flush(); err != nil {
		return err
	}
	t.info, t.offset, t.sink = info, offset, emit

	for _, e := range backlog {
		if err := emit(e); err != nil {
			return err
		}
	}
	return nil
}

func (t *tailer) follow(ctx context.Context) error {
	ticker := time.NewTicker(t.opts.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return t.flush()
		case <-ticker.C:
		}
		if err := t.poll(); err != nil {
			return err
		}
	}
}

func (t *tailer) poll() error {
	info, err := os.Stat(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat log file: %w", err)
	}
	if t.info != nil && (!os.SameFile(t.info, info) || info.Size() < t.offset) {
		if err := t.flush(); err != nil {
			return err
		}
		t.offset = 0
	}
	t.info = info
	if info.Size() == t.offset {
		// Nothing new since the last poll, so the held entry is complete.
		return t.flush()
	}
	offset, err := scanLines(t.path, t.offset, t.addLine)
	t.offset = offset
	return err
}

// addLine appends indented lines to the held entry and starts a new entry
// on anything else.
func (t *tailer) addLine(line string) error {
	if t.pending != nil && isContinuation(line) {
		t.pending = append(t.pending, line)
		return nil
	}
	if err := t.flush(); err != nil {
		return err
	}
	t.pending = Entry{line}
	return nil
}

func (t *tailer) flush() error {
	if t.pending == nil {
		return nil
	}
	entry := t.pending
	t.pending = nil
	if t.opts.Match != nil && !t.opts.Match(entry) {
		return nil
	}
	return t.sink(entry)
}

func isContinuation(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}

// scanLines calls fn for each complete line after offset and returns the
// offset just past the last one. A trailing partial line is left unread.
func scanLines(path string, offset int64, fn func(string) error) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return offset, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return offset, nil
			}
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		if err := fn(strings.TrimRight(line, "\r\n")); err != nil {
			return offset, err
		}
	}
}

// JobMatcher selects entries that belong to jobID. Console headers carry
// only the first eight characters of the id. An empty id matches everything.
func JobMatcher(jobID string) func(Entry) bool {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil
	}
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	jsonField := `"job_id":"` + jobID + `"`
	header := "Job " + short
	field := "- job_id: " + jobID
	return func(e Entry) bool {
		if len(e) == 0 {
			return false
		}
		if strings.Contains(e[0], jsonField) || strings.Contains(e[0], header) {
			return true
		}
		for _, line := range e[1:] {
			if strings.Contains(line, field) {
				return true
			}
		}
		return false
	}
}
