package main

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type syncCountingCore struct {
	zapcore.Core
	syncs int
}

func (c *syncCountingCore) Sync() error {
	c.syncs++
	return c.Core.Sync()
}

func TestFinish(t *testing.T) {
	t.Run("Failure", func(t *testing.T) {
		obs, logs := observer.New(zapcore.InfoLevel)
		core := &syncCountingCore{Core: obs}

		code := finish(zap.New(core), errors.New("listen tcp: address in use"))
		if code != 1 {
			t.Errorf("expected exit status 1, got %d", code)
		}
		if core.syncs != 1 {
			t.Errorf("expected logger to be flushed once, got %d", core.syncs)
		}
		if logs.FilterMessage("server failed").Len() != 1 {
			t.Errorf("expected one failure entry, got %v", logs.All())
		}
	})

	t.Run("CleanShutdown", func(t *testing.T) {
		obs, logs := observer.New(zapcore.InfoLevel)
		core := &syncCountingCore{Core: obs}

		if code := finish(zap.New(core), nil); code != 0 {
			t.Errorf("expected exit status 0, got %d", code)
		}
		if core.syncs != 1 {
			t.Errorf("expected logger to be flushed once, got %d", core.syncs)
		}
		if logs.Len() != 0 {
			t.Errorf("expected no entries, got %v", logs.All())
		}
	})
}
