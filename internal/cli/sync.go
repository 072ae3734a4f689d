package cli

import (
	"context"

	"github.com/openpos/companysync/internal/models"
)

func (a *App) syncCommand(ctx context.Context, args []string) {
	if len(args) == 0 {
		printlnFn("Usage: sync now|status")
		return
	}

	switch args[0] {
	case "now":
		statuses, err := a.sync.SyncAll(ctx)
		if err != nil {
			printlnFn(err.Error())
		}
		for _, st := range statuses {
			printStatus(st)
		}
		a.startSync(ctx)

	case "status":
		statuses := a.sync.Statuses()
		for i := range statuses {
			printStatus(&statuses[i])
		}

	default:
		printlnFn("Unknown sync subcommand:", args[0])
	}
}

func printStatus(st *models.DomainStatus) {
	last := "never"
	if st.LastSyncAt != nil {
		last = st.LastSyncAt.Format("2006-01-02 15:04:05")
	}
	if st.LastError != "" {
		printfFn("%-10s %-10s last %s  (%s)\n", st.Domain, st.State, last, st.LastError)
		return
	}
	printfFn("%-10s %-10s last %s\n", st.Domain, st.State, last)
}
