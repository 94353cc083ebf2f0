/*
Package datum is a command execution and script hot-loading engine for
AI agents driving a host design application.

It sits between an AI orchestrator and a live host document: commands
arrive over a JSON bridge, pass three validation phases (static,
contextual, semantic), and execute inside document transactions whose
every mutation is journaled as a domain event for audit and undo.
Generated scripts run in a Lua sandbox whose only way to the document
is a serialized capability gateway, so a failing script can never leave
partial state behind.

# Concept

The engine follows a hexagonal layout. The core (command framework,
event journal, script surface) is decoupled from adapters: the host
document is a port you implement for your host application, and the
bridge dispatcher can be fronted by HTTP, MCP, or any transport that
can carry JSON messages.

# Key Features

  - Three-phase validation: commands fail fast and report the exact
    phase, property, and stable error code.
  - Transactional execution: failures roll the document back
    byte-for-byte; commits journal events for event-sourced undo.
  - Script hot-loading: generated Lua runs sandboxed and atomically;
    proven scripts graduate into the registry.
  - Transient I/O recovery: stream reads and reconnects retry with
    exponential backoff and resume from the last good offset.

# Usage

Wire the engine over a host document implementation:

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/datum"
		"github.com/aretw0/datum/pkg/adapters/memory"
		"github.com/aretw0/datum/pkg/domain"
	)

	func main() {
		host := memory.NewHost()
		host.SeedType("Walls", `Generic - 8"`)

		engine, err := datum.New(host)
		if err != nil {
			log.Fatal(err)
		}
		defer engine.Close()

		result := engine.Execute(context.Background(), domain.Command{
			Type: "create_wall",
			Parameters: map[string]any{
				"start":     map[string]any{"x": 0, "y": 0, "z": 0},
				"end":       map[string]any{"x": 20, "y": 0, "z": 0},
				"height":    9.0,
				"wall_type": `Generic - 8"`,
			},
		})
		log.Printf("%s (%d elements)", result.Message, result.ElementsAffected)
	}
*/
package datum
