package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openpos/companysync/internal/models"
	"github.com/openpos/companysync/internal/store/metadata"
)

func formatLatency(ms int64) string {
	return fmt.Sprintf("%dms", ms)
}

func (a *App) relayCommand(ctx context.Context, args []string) {
	if len(args) == 0 {
		printlnFn("Usage: relay add <url> [read|write|rw] | list | remove <url> | primary <url> | test <url>")
		return
	}

	switch args[0] {
	case "add":
		if len(args) < 2 {
			printlnFn("Usage: relay add <url> [read|write|rw]")
			return
		}
		roles := models.RelayRoles{Read: true, Write: true}
		if len(args) > 2 {
			switch args[2] {
			case "read":
				roles = models.RelayRoles{Read: true}
			case "write":
				roles = models.RelayRoles{Write: true}
			case "rw":
			default:
				printlnFn("Unknown role:", args[2])
				return
			}
		}
		a.pool.AddRelay(args[1], roles)
		a.publishRelayList(ctx)
		printlnFn("Relay added.")

	case "list":
		for _, rc := range a.pool.Snapshot() {
			marker := " "
			if rc.IsPrimary {
				marker = "*"
			}
			latency := "-"
			if rc.LatencyMs != nil {
				latency = formatLatency(*rc.LatencyMs)
			}
			printfFn("%s %-40s r=%-5v w=%-5v %-12s %s\n", marker, rc.URL, rc.Roles.Read, rc.Roles.Write, rc.Status, latency)
		}
		health := a.pool.Health()
		printfFn("%d/%d connected\n", health.ConnectedCount, health.Total)

	case "remove":
		if len(args) < 2 {
			printlnFn("Usage: relay remove <url>")
			return
		}
		if err := a.pool.RemoveRelay(args[1]); err != nil {
			printlnFn(err.Error())
			return
		}
		a.publishRelayList(ctx)
		printlnFn("Relay removed.")

	case "primary":
		if len(args) < 2 {
			printlnFn("Usage: relay primary <url>")
			return
		}
		if err := a.pool.SetPrimary(args[1]); err != nil {
			printlnFn(err.Error())
			return
		}
		printlnFn("Primary set.")

	case "test":
		if len(args) < 2 {
			printlnFn("Usage: relay test <url>")
			return
		}
		status, latency, err := a.pool.TestRelay(ctx, args[1])
		if err != nil {
			printfFn("%s: %s (%s)\n", args[1], status, err.Error())
			return
		}
		if latency != nil {
			printfFn("%s: %s, %s\n", args[1], status, formatLatency(*latency))
		} else {
			printfFn("%s: %s\n", args[1], status)
		}

	default:
		printlnFn("Unknown relay subcommand:", args[0])
	}
}

// publishRelayList persists the new relay configuration locally and
// advertises it; a publish failure only delays other devices learning
// about it.
func (a *App) publishRelayList(ctx context.Context) {
	snapshot := a.pool.Snapshot()

	raw, err := json.Marshal(snapshot)
	if err == nil {
		err = a.repos.Metadata.Set(ctx, metadata.KeyRelays, raw)
	}
	if err != nil {
		a.log.Warn("relay configuration not persisted", "err", err)
	}

	if err := a.sync.PublishRelayList(ctx, snapshot); err != nil {
		a.log.Warn("relay list not published", "err", err)
	}
}
