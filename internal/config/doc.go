// Package config provides configuration management for the pipeline
// orchestrator.
//
// Configuration is loaded from environment variables using the env package.
// Service-specific keys carry the FTL_ prefix; keys shared with the rest of
// the platform (REDIS_*, LLM_*, LOG_LEVEL) are unprefixed. All values have
// sensible defaults for development use.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("HTTP server will listen on %s\n", cfg.GetHTTPAddr())
package config
