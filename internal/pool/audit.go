package pool

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sync"
)

const (
	AuditFileName = "last_used_images.html"

	auditMaxSize  = 1000000
	auditKeepSize = 800000
)

// AuditLog is an append-only HTML list of consumed images, most recent last.
// It is cut back to its last ~800KB once it passes 1MB.
type AuditLog struct {
	mu   sync.Mutex
	path string
}

func NewAuditLog(dir string) *AuditLog {
	return &AuditLog{path: filepath.Join(dir, AuditFileName)}
}

func (a *AuditLog) Path() string { return a.path }

func AuditLine(filename, source string) string {
	if source == "" {
		source = "<url unknown>"
	}
	src := html.EscapeString(source)
	return fmt.Sprintf(`<code>%s:&nbsp;<a href="%s">%s</a></code><br>`, html.EscapeString(filename), src, src)
}

func (a *AuditLog) Append(line string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("write audit log: %w", err)
	}
	info, err := f.Stat()
	f.Close()
	if err != nil {
		return fmt.Errorf("stat audit log: %w", err)
	}
	if info.Size() > auditMaxSize {
		return a.truncate()
	}
	return nil
}

func (a *AuditLog) truncate() error {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}
	if len(data) > auditKeepSize {
		data = data[len(data)-auditKeepSize:]
		// the first line was probably cut
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			data = data[i+1:]
		}
	}

	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	if err := os.Rename(tmp, a.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace audit log: %w", err)
	}
	return nil
}
