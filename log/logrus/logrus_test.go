package logrus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/cachekit/log"
)

func TestLoggerForwardsFieldsAndLevel(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	l.Warn("read degraded", log.Fields{"key": "app.user:1"})

	e := hook.LastEntry()
	if e == nil {
		t.Fatalf("expected an entry")
	}
	if e.Level != logrus.WarnLevel || e.Message != "read degraded" {
		t.Fatalf("got level=%v msg=%q", e.Level, e.Message)
	}
	if e.Data["key"] != "app.user:1" || e.Data["component"] != "cachekit" {
		t.Fatalf("fields not forwarded: %v", e.Data)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.InfoLevel)
	l := New(base)

	l.Debug("swept", log.Fields{"removed": 3})
	if n := len(hook.AllEntries()); n != 0 {
		t.Fatalf("debug should be filtered at info level, got %d entries", n)
	}
}
