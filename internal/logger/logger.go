package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	skerrors "github.com/gzhole/skillgate/internal/errors"
	"github.com/gzhole/skillgate/internal/redact"
)

// New rotates the audit log to <path>.1 once it reaches defaultMaxLogBytes.
const defaultMaxLogBytes = 5 << 20

// promptExcerptRunes bounds how much of a prompt is kept in the trail.
const promptExcerptRunes = 200

type AuditEvent struct {
	ID         string   `json:"id"`
	Timestamp  string   `json:"timestamp"`
	SessionID  string   `json:"session_id,omitempty"`
	Event      string   `json:"event"`
	ToolName   string   `json:"tool_name,omitempty"`
	FilePath   string   `json:"file_path,omitempty"`
	Prompt     string   `json:"prompt,omitempty"`
	Decision   string   `json:"decision"`
	Skills     []string `json:"skills,omitempty"`
	Suppressed []string `json:"suppressed,omitempty"`
	Error      string   `json:"error,omitempty"`
}

type AuditLogger struct {
	file *os.File
	mu   sync.Mutex
}

func New(path string) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, skerrors.Wrap(err, "creating audit log dir")
	}
	if err := rotateIfNeeded(path, defaultMaxLogBytes); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, skerrors.Wrap(err, "opening audit log")
	}

	return &AuditLogger{file: file}, nil
}

// Log fills in the id and timestamp when unset, redacts free text and
// appends the event as one JSON line.
func (l *AuditLogger) Log(event AuditEvent) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	event.Prompt = redact.Excerpt(event.Prompt, promptExcerptRunes)
	if event.Error != "" {
		event.Error = redact.Redact(event.Error)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	data = append(data, '\n')
	_, err = l.file.Write(data)
	return err
}

func (l *AuditLogger) Close() error {
	if l != nil && l.file != nil {
		return l.file.Close()
	}
	return nil
}

func rotateIfNeeded(path string, max int64) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return skerrors.Wrap(err, "checking audit log size")
	}
	if info.Size() < max {
		return nil
	}
	if err := os.Rename(path, path+".1"); err != nil {
		return skerrors.Wrap(err, "rotating audit log")
	}
	return nil
}

// ReadEvents returns every parseable event in the log, oldest first.
// Malformed lines are skipped. A missing log yields no events.
func ReadEvents(path string) ([]AuditEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, skerrors.Wrap(err, "opening audit log")
	}
	defer func() { _ = f.Close() }()

	var events []AuditEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev AuditEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return events, skerrors.Wrap(err, "reading audit log")
	}
	return events, nil
}
