package jsonfile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/hay-kot/shelter/internal/core/notify"
)

const (
	defaultMaxNotices = 500
	noticeFilename    = "notifications.jsonl"
)

// NoticeRecord is one line of the notification journal.
type NoticeRecord struct {
	notify.Delivery
	RecordedAt time.Time `json:"recorded_at"`
}

// NoticeLog implements notify.Journal using a JSONL file that keeps the most
// recent dispatch attempts.
type NoticeLog struct {
	dir        string
	maxNotices int
	now        func() time.Time
	mu         sync.Mutex
}

var _ notify.Journal = (*NoticeLog)(nil)

// NewNoticeLog creates a journal in dir.
func NewNoticeLog(dir string) *NoticeLog {
	return &NoticeLog{
		dir:        dir,
		maxNotices: defaultMaxNotices,
		now:        time.Now,
	}
}

// WithMaxNotices sets how many records are retained.
func (s *NoticeLog) WithMaxNotices(max int) *NoticeLog {
	s.maxNotices = max
	return s
}

// Path returns the journal file.
func (s *NoticeLog) Path() string {
	return filepath.Join(s.dir, noticeFilename)
}

func (s *NoticeLog) withExclusiveLock(fn func() error) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}

	f, err := os.OpenFile(s.Path()+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN) //nolint:errcheck

	return fn()
}

// Record appends a delivery, dropping the oldest records past the limit.
func (s *NoticeLog) Record(d notify.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withExclusiveLock(func() error {
		records, err := s.readUnsafe()
		if err != nil {
			return err
		}

		records = append(records, NoticeRecord{Delivery: d, RecordedAt: s.now()})
		if s.maxNotices > 0 && len(records) > s.maxNotices {
			records = records[len(records)-s.maxNotices:]
		}

		return s.writeUnsafe(records)
	})
}

// List returns recent records, newest first. A limit of zero returns all.
func (s *NoticeLog) List(limit int) ([]NoticeRecord, error) {
	return s.ListSince(time.Time{}, limit)
}

// ListSince returns records written after since, newest first.
func (s *NoticeLog) ListSince(since time.Time, limit int) ([]NoticeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []NoticeRecord
	err := s.withExclusiveLock(func() error {
		records, err := s.readUnsafe()
		if err != nil {
			return err
		}

		for i := len(records) - 1; i >= 0; i-- {
			if !records[i].RecordedAt.After(since) {
				continue
			}
			result = append(result, records[i])
			if limit > 0 && len(result) >= limit {
				break
			}
		}
		return nil
	})
	return result, err
}

// readUnsafe reads all records. Malformed lines are skipped.
// Caller must hold lock.
func (s *NoticeLog) readUnsafe() ([]NoticeRecord, error) {
	f, err := os.Open(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var records []NoticeRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var r NoticeRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	return records, nil
}

// writeUnsafe replaces the journal atomically.
// Caller must hold lock.
func (s *NoticeLog) writeUnsafe(records []NoticeRecord) error {
	tmpPath := s.Path() + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	enc := json.NewEncoder(f)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			f.Close() //nolint:errcheck
			_ = os.Remove(tmpPath)
			return fmt.Errorf("write record: %w", err)
		}
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.Path()); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
