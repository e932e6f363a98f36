package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"user_id", 3, "caldav_password", "hunter2", "TELEGRAM_TOKEN", "abc"})

	assert.Equal(t, []interface{}{"user_id", 3, "caldav_password", "[REDACTED]", "TELEGRAM_TOKEN", "[REDACTED]"}, out)
}

func TestSanitizeKVsKeepsDanglingValue(t *testing.T) {
	out := sanitizeKVs([]interface{}{"calendar", "Work", "orphan"})

	assert.Equal(t, []interface{}{"calendar", "Work", "orphan"}, out)
}

func TestNopLoggerDoesNotPanic(t *testing.T) {
	l := NewNop().With("repo", "test")
	l.Info("hello", "k", "v")
	l.Printf("slow query %s", "SELECT 1")
}
