//go:build tools

package main

// Pins the swagger codegen CLI so `go run github.com/swaggo/swag/cmd/swag`
// resolves against the module graph.
import _ "github.com/swaggo/swag"
