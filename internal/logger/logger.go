package logger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gzhole/rostershield/internal/redact"
)

// defaultMaxLogBytes is the size at which the audit log is rotated to <path>.1.
const defaultMaxLogBytes = 10 * 1024 * 1024

// AuditEvent is one brokered message or API call. It carries counts only;
// payloads are never written.
type AuditEvent struct {
	ID         string `json:"id"`
	Timestamp  string `json:"timestamp"`
	Source     string `json:"source"`
	Direction  string `json:"direction"`
	Method     string `json:"method,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	OwnerID    string `json:"owner_id,omitempty"`
	CourseID   int64  `json:"course_id,omitempty"`
	Outcome    string `json:"outcome"`
	Tokens     int    `json:"tokens,omitempty"`
	OneWay     int    `json:"one_way,omitempty"`
	Unresolved int    `json:"unresolved,omitempty"`
	Error      string `json:"error,omitempty"`
}

type AuditLogger struct {
	path     string
	file     *os.File
	size     int64
	maxBytes int64
	mu       sync.Mutex
}

func New(path string) (*AuditLogger, error) {
	l := &AuditLogger{path: path, maxBytes: defaultMaxLogBytes}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *AuditLogger) open() error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	l.file = file
	l.size = info.Size()
	return nil
}

// rotate moves the current log to <path>.1 and starts a new one. If the
// rename fails the current file is reopened, so logging continues past the
// limit rather than stopping.
func (l *AuditLogger) rotate() error {
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return err
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return fmt.Errorf("rotate audit log: %w", err)
	}
	return l.open()
}

// Log appends one JSON line. Missing IDs and timestamps are filled in, and
// the error text is scrubbed of credentials and PII-shaped strings.
func (l *AuditLogger) Log(event AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if event.Error != "" {
		event.Error = redact.ForLog(event.Error)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	var rotateErr error
	if l.file != nil && l.size > 0 && l.size+int64(len(data)) > l.maxBytes {
		rotateErr = l.rotate()
	}
	if l.file == nil {
		if err := l.open(); err != nil {
			return errors.Join(rotateErr, err)
		}
	}

	n, err := l.file.Write(data)
	l.size += int64(n)
	if err != nil {
		return err
	}
	return rotateErr
}

func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
