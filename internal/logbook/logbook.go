// Package logbook keeps a plain-text journal of boot progress that outlives
// the process, one timestamped entry per line.
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a journal entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is one journal line.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
}

// String renders e in the on-disk format.
func (e Entry) String() string {
	return fmt.Sprintf("%s %-5s %s", e.Time.UTC().Format(time.RFC3339), e.Level, e.Message)
}

// ParseEntry reads a line written by Append. Lines in any other shape are
// reported as not ok.
func ParseEntry(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Entry{}, false
	}
	ts, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		return Entry{}, false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
	rest = strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
	return Entry{Time: ts, Level: Level(fields[1]), Message: rest}, true
}

// Logbook appends entries to a file. The file is opened on first write and
// held until Close.
type Logbook struct {
	path string
	now  func() time.Time

	mu   sync.Mutex
	file *os.File
	err  error
}

// New prepares a logbook at path, creating its directory.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Logbook{path: path, now: time.Now}, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry. Write failures are kept for Err rather than
// returned so callers on the boot path never stall on the journal.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	entry := Entry{Time: l.now(), Level: level, Message: oneLine(message)}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			l.err = err
			return
		}
		l.file = f
	}
	if _, err := l.file.WriteString(entry.String() + "\n"); err != nil {
		l.err = err
	}
}

// Err returns the last write failure.
func (l *Logbook) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close releases the file handle. Later appends reopen it.
func (l *Logbook) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Tail returns up to maxLines of the most recent lines and the total number
// of lines in the file.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	ring := make([]string, maxLines)
	total := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		ring[total%maxLines] = scanner.Text()
		total++
	}
	if total == 0 {
		return nil, 0
	}
	if total <= maxLines {
		return ring[:total], total
	}
	start := total % maxLines
	return append(ring[start:], ring[:start]...), total
}

// Entries is Tail parsed into entries; unparseable lines are skipped.
func (l *Logbook) Entries(maxLines int) []Entry {
	lines, _ := l.Tail(maxLines)
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if e, ok := ParseEntry(line); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}

func oneLine(message string) string {
	return strings.Join(strings.Fields(message), " ")
}
