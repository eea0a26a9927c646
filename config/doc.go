// Package config provides application configuration management.
//
// The config package loads the evalbox configuration once at startup from
// an optional config.yaml, defaults and environment variables. The
// execution timeout can be set with EXECUTION_TIMEOUT (seconds, default 30).
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Execution timeout: %s\n", cfg.GetTimeout())
package config
