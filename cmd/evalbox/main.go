package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/evalbox/config"
	"github.com/isdmx/evalbox/httpapi"
	"github.com/isdmx/evalbox/logger"
	"github.com/isdmx/evalbox/mcpserver"
	"github.com/isdmx/evalbox/sandbox"
)

const usage = "usage: evalbox [serve|worker|config]"

func main() {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "serve":
		fx.New(options()).Run()
	case sandbox.WorkerCommand:
		os.Exit(sandbox.RunWorker(logger.NewWorker()))
	case "config":
		os.Exit(printConfig(os.Stdout, os.Stderr))
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func options() fx.Option {
	return fx.Options(
		// Provide dependencies
		fx.Provide(
			config.New,
			logger.NewFromConfig,
			sandbox.NewExecutor,
			mcpserver.New,
			httpapi.New,
		),

		// Start the configured transport
		fx.Invoke(registerTransport),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)
}

type transportParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Config     *config.Config
	Logger     *zap.Logger
	MCP        *mcpserver.MCPServer
	REST       *httpapi.Server
}

// registerTransport serves the configured transport for the lifetime of
// the application. A transport that fails stops the application.
func registerTransport(p transportParams) error {
	var serve func() error
	var stop func(context.Context) error

	switch p.Config.Server.Transport {
	case config.TransportREST:
		serve, stop = p.REST.ListenAndServe, p.REST.Shutdown
	case config.TransportHTTP:
		serve, stop = p.MCP.ServeHTTP, p.MCP.Shutdown
	case config.TransportStdio:
		// ServeStdio returns on its own once stdin closes or a signal arrives
		serve, stop = p.MCP.ServeStdio, func(context.Context) error { return nil }
	default:
		return fmt.Errorf("unsupported transport: %s", p.Config.Server.Transport)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				err := serve()
				if err != nil {
					p.Logger.Error("transport failed", zap.String("transport", p.Config.Server.Transport), zap.Error(err))
					_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
					return
				}
				if p.Config.Server.Transport == config.TransportStdio {
					_ = p.Shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: stop,
	})
	return nil
}

func printConfig(stdout, stderr io.Writer) int {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}
	out, err := cfg.YAML()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	_, _ = stdout.Write(out)
	return 0
}
