package session

import (
	"fmt"
	"time"
)

// NoticeLevel grades a transient notice.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is a short-lived message for the user, such as a failed mutation.
type Notice struct {
	ID    uint64
	Level NoticeLevel
	Text  string
	At    time.Time
}

func noticeTask(id uint64) string {
	return fmt.Sprintf("notice.%d", id)
}

// addNoticeLocked records a notice that expires after the notice TTL.
func (s *Session) addNoticeLocked(level NoticeLevel, format string, args ...any) Notice {
	s.nextNotice++
	n := Notice{
		ID:    s.nextNotice,
		Level: level,
		Text:  fmt.Sprintf(format, args...),
		At:    s.sched.Now(),
	}
	s.notices = append(s.notices, n)
	s.metrics.Notice(string(level))

	epoch := s.epoch
	s.sched.Schedule(noticeTask(n.ID), s.opts.NoticeTTL, func() {
		s.mu.Lock()
		removed := false
		if s.epoch == epoch {
			removed = s.dropNoticeLocked(n.ID)
		}
		s.mu.Unlock()
		if removed {
			s.notify()
		}
	})
	return n
}

func (s *Session) dropNoticeLocked(id uint64) bool {
	for i, n := range s.notices {
		if n.ID == id {
			s.notices = append(s.notices[:i], s.notices[i+1:]...)
			return true
		}
	}
	return false
}

// DismissNotice removes a notice before it expires.
func (s *Session) DismissNotice(id uint64) {
	s.sched.Cancel(noticeTask(id))
	s.mu.Lock()
	removed := s.dropNoticeLocked(id)
	s.mu.Unlock()
	if removed {
		s.notify()
	}
}
