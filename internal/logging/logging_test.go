package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func useObserver(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	prevBase, prevSugar := baseLogger, sugar
	baseLogger = zap.New(core)
	sugar = baseLogger.Sugar()
	instanceID.Store("")
	t.Cleanup(func() {
		baseLogger, sugar = prevBase, prevSugar
	})
	return recorded
}

func TestInstanceIDAddsLogField(t *testing.T) {
	recorded := useObserver(t)

	SetInstanceID("mixer-123")
	Infof("hello %s", "world")

	logs := recorded.All()
	if len(logs) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(logs))
	}
	if logs[0].Message != "hello world" {
		t.Fatalf("unexpected message %q", logs[0].Message)
	}

	fields := logs[0].ContextMap()
	if fields["instance_id"] != "mixer-123" {
		t.Fatalf("expected instance_id to be mixer-123, got %v", fields["instance_id"])
	}
}

func TestSetInstanceIDIgnoresBlank(t *testing.T) {
	recorded := useObserver(t)

	SetInstanceID("keep")
	SetInstanceID("   ")
	Warnf("x")

	fields := recorded.All()[0].ContextMap()
	if fields["instance_id"] != "keep" {
		t.Fatalf("expected blank id to be ignored, got %v", fields["instance_id"])
	}
}

func TestNamedLoggerCarriesComponent(t *testing.T) {
	recorded := useObserver(t)
	SetInstanceID("abc")

	Named("mixer").Infow("channel created", "channel_id", "c1")

	entry := recorded.All()[0]
	if entry.LoggerName != "mixer" {
		t.Fatalf("expected logger name mixer, got %q", entry.LoggerName)
	}
	fields := entry.ContextMap()
	if fields["channel_id"] != "c1" || fields["instance_id"] != "abc" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestInitRejectsUnknownFormat(t *testing.T) {
	if err := Init(Config{Format: "xml"}); err == nil {
		t.Fatal("expected invalid format error")
	}
	if err := Init(Config{Level: "loud"}); err == nil {
		t.Fatal("expected invalid level error")
	}
}

func TestNewInstanceID(t *testing.T) {
	a, b := NewInstanceID(), NewInstanceID()
	if len(a) != 8 {
		t.Fatalf("expected 8 hex chars, got %q", a)
	}
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
}

func TestInitSetsLevel(t *testing.T) {
	prevBase, prevSugar := baseLogger, sugar
	t.Cleanup(func() {
		baseLogger, sugar = prevBase, prevSugar
		level.SetLevel(zapcore.InfoLevel)
	})

	if err := Init(Config{Level: "DEBUG", Format: "json"}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !DebugEnabled() {
		t.Fatal("expected debug level to be enabled")
	}

	if err := Init(Config{}); err != nil {
		t.Fatalf("init defaults: %v", err)
	}
	if DebugEnabled() {
		t.Fatal("expected default level to be info")
	}
}
