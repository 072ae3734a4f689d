package cli

import (
	"context"
	"strconv"
	"strings"

	"github.com/openpos/companysync/internal/models"
)

const defaultAuditLimit = 20

func (a *App) auditCommand(ctx context.Context, args []string) {
	if len(args) == 0 {
		printlnFn("Usage: audit list [n] | search <text> | stats")
		return
	}

	switch args[0] {
	case "list":
		limit := defaultAuditLimit
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				printlnFn("Usage: audit list [n]")
				return
			}
			limit = n
		}
		a.printAudit(ctx, models.AuditFilter{Limit: limit})

	case "search":
		if len(args) < 2 {
			printlnFn("Usage: audit search <text>")
			return
		}
		a.printAudit(ctx, models.AuditFilter{Search: strings.Join(args[1:], " "), Limit: defaultAuditLimit})

	case "stats":
		stats, err := a.audit.Stats(ctx)
		if err != nil {
			printlnFn(err.Error())
			return
		}
		printfFn("%d entries\n", stats.Total)
		for action, n := range stats.ByAction {
			printfFn("  %-28s %d\n", action, n)
		}

	default:
		printlnFn("Unknown audit subcommand:", args[0])
	}
}

func (a *App) printAudit(ctx context.Context, f models.AuditFilter) {
	entries, err := a.audit.List(ctx, f)
	if err != nil {
		printlnFn(err.Error())
		return
	}
	for _, e := range entries {
		who := e.UserName
		if who == "" {
			who = e.UserID
		}
		printfFn("%s  %-24s %-12s %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, who, e.Details)
	}
}
