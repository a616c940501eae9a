package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dujiao-next/checkout/internal/config"
)

type fakeService struct {
	name     string
	startErr error
	stopped  atomic.Bool
	order    *[]string
}

func (s *fakeService) Name() string { return s.name }

func (s *fakeService) Start(ctx context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	<-ctx.Done()
	return nil
}

func (s *fakeService) Stop(ctx context.Context) error {
	s.stopped.Store(true)
	if s.order != nil {
		*s.order = append(*s.order, s.name)
	}
	return nil
}

func TestRunnerStopsAllServicesOnCancel(t *testing.T) {
	a := &fakeService{name: "a"}
	b := &fakeService{name: "b"}
	runner := NewRunner(a, b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runner.Run(ctx, time.Second, nil)
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("cancel should exit cleanly, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not exit")
	}
	if !a.stopped.Load() || !b.stopped.Load() {
		t.Fatalf("all services should be stopped")
	}
}

func TestRunnerPropagatesStartError(t *testing.T) {
	boom := errors.New("listen failed")
	failing := &fakeService{name: "http", startErr: boom}
	other := &fakeService{name: "worker"}

	err := NewRunner(failing, other).Run(context.Background(), time.Second, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("want start error, got %v", err)
	}
	if !other.stopped.Load() {
		t.Fatalf("sibling service should be stopped")
	}
}

func TestRunnerStopsServicesBeforeHooks(t *testing.T) {
	var order []string
	api := &fakeService{name: "api", order: &order}
	worker := &fakeService{name: "worker", order: &order}
	runner := NewRunner(api, worker)
	runner.OnStop("container", func(context.Context) error {
		order = append(order, "container")
		return nil
	})
	runner.OnStop("tracer", func(context.Context) error {
		order = append(order, "tracer")
		return errors.New("flush failed")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := runner.Run(ctx, time.Second, nil); err != nil {
		t.Fatalf("cancel should exit cleanly, got %v", err)
	}
	want := []string{"api", "worker", "container", "tracer"}
	if len(order) != len(want) {
		t.Fatalf("want stop order %v got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("want stop order %v got %v", want, order)
		}
	}
}

func TestRunnerRejectsNilService(t *testing.T) {
	if err := NewRunner(&fakeService{name: "api"}, nil).Run(context.Background(), time.Second, nil); err == nil {
		t.Fatalf("nil service should fail")
	}
}

func TestRunnerWithoutServices(t *testing.T) {
	if err := NewRunner().Run(context.Background(), time.Second, nil); err == nil {
		t.Fatalf("empty runner should fail")
	}
}

func TestBuildRunnerRejectsUnknownMode(t *testing.T) {
	if _, _, err := BuildRunner(&config.Config{}, "cron"); err == nil {
		t.Fatalf("unknown mode should fail")
	}
	if _, _, err := BuildRunner(nil, ModeAll); err == nil {
		t.Fatalf("nil config should fail")
	}
}

func TestNormalizeOptionsDefaults(t *testing.T) {
	opts := normalizeOptions(Options{})
	if opts.Mode != ModeAll {
		t.Fatalf("mode want %s got %s", ModeAll, opts.Mode)
	}
	if opts.ShutdownTimeout != 10*time.Second {
		t.Fatalf("shutdown timeout want 10s got %s", opts.ShutdownTimeout)
	}
	if opts.Logger == nil {
		t.Fatalf("logger should default")
	}
}
