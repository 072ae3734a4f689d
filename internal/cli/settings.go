package cli

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/openpos/companysync/internal/common"
	"github.com/openpos/companysync/internal/models"
)

func (a *App) settingsCommand(ctx context.Context, args []string) {
	if len(args) == 0 {
		printlnFn("Usage: settings show|edit")
		return
	}

	switch args[0] {
	case "show":
		settings, err := a.sync.Settings(ctx)
		if errors.Is(err, common.ErrNotFound) {
			printlnFn("No settings yet. Run 'settings edit'.")
			return
		}
		if err != nil {
			printlnFn(err.Error())
			return
		}
		printfFn("Name:      %s\n", settings.Name)
		printfFn("Currency:  %s\n", settings.Currency)
		printfFn("Timezone:  %s\n", settings.Timezone)
		printfFn("Tax rate:  %.2f%%\n", settings.TaxRatePct)
		printfFn("Receipt:   %s\n", settings.ReceiptNote)
		printfFn("Updated:   %s by %s\n", settings.UpdatedAt.Format("2006-01-02 15:04:05"), settings.UpdatedBy)

	case "edit":
		a.editSettings(ctx)

	default:
		printlnFn("Unknown settings subcommand:", args[0])
	}
}

// editSettings prompts for each field; an empty answer keeps the current
// value.
func (a *App) editSettings(ctx context.Context) {
	settings, err := a.sync.Settings(ctx)
	if errors.Is(err, common.ErrNotFound) {
		settings = &models.CompanySettings{}
	} else if err != nil {
		printlnFn(err.Error())
		return
	}

	prompts := []struct {
		label string
		field *string
	}{
		{"Company name", &settings.Name},
		{"Currency", &settings.Currency},
		{"Timezone", &settings.Timezone},
		{"Receipt note", &settings.ReceiptNote},
	}
	for _, p := range prompts {
		answer, err := getSimpleText(a.reader, p.label+" ["+*p.field+"]", os.Stdout)
		if err != nil {
			printlnFn(err.Error())
			return
		}
		if answer != "" {
			*p.field = answer
		}
	}

	rate, err := getSimpleText(a.reader, "Tax rate % ["+strconv.FormatFloat(settings.TaxRatePct, 'f', 2, 64)+"]", os.Stdout)
	if err != nil {
		printlnFn(err.Error())
		return
	}
	if rate != "" {
		parsed, err := strconv.ParseFloat(rate, 64)
		if err != nil {
			printlnFn("Invalid tax rate:", rate)
			return
		}
		settings.TaxRatePct = parsed
	}

	pub, err := a.identity.EnsureDeviceKey(ctx)
	if err != nil {
		printlnFn(err.Error())
		return
	}
	settings.UpdatedBy = pub

	if err := a.sync.UpdateSettings(ctx, settings); err != nil {
		printlnFn(err.Error())
		return
	}
	printlnFn("Settings saved and replicated.")
}
