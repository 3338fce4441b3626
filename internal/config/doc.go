// Package config provides configuration parsing for sunmao projects.
//
// The configuration is stored in sunmao.json (or sunmao.yaml) at the
// project root. This package handles loading, saving, and validating
// configuration.
//
// # Configuration File Structure
//
//	{
//	  "name": "hello",
//	  "app": "app.yaml",
//	  "server": {"port": 8080, "host": "0.0.0.0"},
//	  "log": {"level": "info", "format": "json"},
//	  "metrics": {"enabled": true, "path": "/metrics"},
//	  "tracing": {"enabled": true, "tracerName": "sunmao"},
//	  "snapshot": {"path": "state.db", "interval": "30s"},
//	  "s3": {"region": "us-east-1"},
//	  "dependencies": {"apiBase": "https://api.example.com"}
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Listening on", cfg.Address())
package config
