// Package main is the entry point for the evalbox execution server.
//
// evalbox runs short Python-dialect (Starlark) snippets on request. Each
// request is evaluated by a fresh worker process (this same binary started
// with the worker subcommand) that is bounded by a wall-clock timeout and
// always killed and reaped before the response is written.
//
// Commands:
//
//	evalbox [serve]   serve the configured transport (rest, stdio or http)
//	evalbox worker    run one isolation unit; used by the server itself
//	evalbox config    print the effective configuration as YAML
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
