package app

import (
	"context"
	"errors"

	"github.com/dujiao-next/checkout/internal/config"
	"github.com/dujiao-next/checkout/internal/provider"
	"github.com/dujiao-next/checkout/internal/router"
	"github.com/dujiao-next/checkout/internal/telemetry"
	"github.com/dujiao-next/checkout/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, *provider.Container, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is nil")
	}
	if !validMode(mode) {
		return nil, nil, errors.New("unknown mode: " + mode)
	}

	container := provider.NewContainer(cfg)

	var services []Service

	// 初始化 HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		services = append(services, NewHTTPService(cfg.Server, engine))
	}

	// 初始化 Worker 服务（队列关闭时 all 模式仅启动 HTTP）
	if mode == ModeAll || mode == ModeWorker {
		consumer := worker.NewConsumer(container)
		workerService, err := worker.NewService(&cfg.Queue, consumer)
		if err != nil {
			if mode == ModeWorker {
				container.Close()
				return nil, nil, err
			}
		} else {
			services = append(services, workerService)
		}
	}

	if len(services) == 0 {
		container.Close()
		return nil, nil, errors.New("no services initialized (check mode and config)")
	}

	runner := NewRunner(services...)
	runner.OnStop("container", func(context.Context) error {
		container.Close()
		return nil
	})
	return runner, container, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	shutdownTracer, err := telemetry.InitTracer(opts.Config.Tracing)
	if err != nil {
		opts.Logger.Warnw("app_tracer_init_failed", "error", err)
	}

	runner, _, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}
	// container 之后关闭 tracer，保留停机期间的 span
	if shutdownTracer != nil {
		runner.OnStop("tracer", shutdownTracer)
	}

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}

func validMode(mode string) bool {
	switch mode {
	case ModeAll, ModeAPI, ModeWorker:
		return true
	default:
		return false
	}
}
