// Package server assembles and runs the EmbedOS host.
//
// It wires the content engine, guest registry, attachment coordinator,
// permission broker, and event router into one process and fronts them
// with the REST control plane and the WebSocket event stream.
//
// Server Lifecycle:
//  1. Load configuration from environment, optionally a TOML file
//  2. Initialize logger (production or development)
//  3. Build the content engine and domain coordinators
//  4. Install per-partition permission profiles
//  5. Setup HTTP routes and middleware
//  6. Start the lifecycle ticker and HTTP server
//  7. Graceful shutdown on context cancellation
//
// Example Usage:
//
//	cfg, _ := config.Load()
//	srv, err := server.NewServer(cfg, nil, logger)
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
