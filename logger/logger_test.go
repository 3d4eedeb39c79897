package logger

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type bufWriter struct{ bytes.Buffer }

func (w *bufWriter) Printf(format string, args ...interface{}) {
	fmt.Fprintf(&w.Buffer, format, args...)
}

func TestDefaultLoggerTrace(t *testing.T) {
	w := &bufWriter{}
	l := New(w, Config{LogLevel: Info})
	ctx := WithUnitOfWork(context.Background(), "abc")

	l.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", -1 }, nil)
	assert.Contains(t, w.String(), "[abc]")
	assert.Contains(t, w.String(), "[rows:-]")
	assert.Contains(t, w.String(), "SELECT 1")

	w.Reset()
	l.LogMode(Error).Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 2", 0 }, nil)
	assert.Empty(t, w.String())

	w.Reset()
	l.LogMode(Error).Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 3", 0 }, assert.AnError)
	assert.Contains(t, w.String(), assert.AnError.Error())
}

func TestDefaultLoggerForUnitOfWork(t *testing.T) {
	w := &bufWriter{}
	l := New(w, Config{LogLevel: Info, SlowThreshold: time.Millisecond})
	scoped := l.(Scoper).ForUnitOfWork("abc", "ann")

	scoped.Trace(WithUnitOfWork(context.Background(), "other"), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)
	assert.Contains(t, w.String(), "[abc ann]")
	assert.NotContains(t, w.String(), "other")

	w.Reset()
	scoped.LogMode(Warn).Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) { return "SELECT 2", 1 }, nil)
	assert.Contains(t, w.String(), "[abc ann]")
	assert.Contains(t, w.String(), "SLOW SQL >= 1ms")
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]LogLevel{"silent": Silent, "error": Error, "warn": Warn, "info": Info} {
		got, ok := ParseLevel(name)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := ParseLevel("verbose")
	assert.False(t, ok)
}

func TestUnitOfWorkID(t *testing.T) {
	assert.Equal(t, "", UnitOfWorkID(context.Background()))
	assert.Equal(t, "x", UnitOfWorkID(WithUnitOfWork(context.Background(), "x")))
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv("POLYORM_LOG_LEVEL", "info")
	assert.Equal(t, Info, levelFromEnv())

	t.Setenv("POLYORM_LOG_LEVEL", "loud")
	assert.Equal(t, Warn, levelFromEnv())
}
