package cli

import (
	"context"
	"os"

	"github.com/openpos/companysync/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate
// testing. They point to interactive input helpers and can be swapped in
// tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

func (a *App) setupMasterPassword(ctx context.Context) {
	isSetUp, err := a.keyring.IsSetUp(ctx)
	if err != nil {
		printlnFn(err.Error())
		return
	}
	if isSetUp {
		printlnFn("Master password is already set up. Use 'unlock'.")
		return
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		printlnFn(err.Error())
		return
	}
	defer common.WipeByteArray(password)

	if err := a.keyring.SetupMasterPassword(ctx, password); err != nil {
		printlnFn(err.Error())
		return
	}
	printlnFn("Encryption enabled, vault unlocked.")
}

func (a *App) unlock(ctx context.Context) {
	password, err := getPassword(os.Stdout)
	if err != nil {
		printlnFn(err.Error())
		return
	}
	defer common.WipeByteArray(password)

	if err := a.keyring.Unlock(ctx, password); err != nil {
		printlnFn(err.Error())
		return
	}
	printlnFn("Unlocked.")
}

func (a *App) keyCommand(ctx context.Context, args []string) {
	if len(args) == 0 {
		printlnFn("Usage: key list|rotate|export <id>|import <id> <hex>|backup [id]|restore|disable")
		return
	}

	switch args[0] {
	case "list":
		keys, err := a.keyring.ListKeys(ctx)
		if err != nil {
			printlnFn(err.Error())
			return
		}
		for _, k := range keys {
			marker := " "
			if k.IsCurrent {
				marker = "*"
			}
			printfFn("%s %s  %s  created %s\n", marker, k.KeyID, k.Algorithm, k.CreatedAt.Format("2006-01-02 15:04"))
		}

	case "rotate":
		password, err := getPassword(os.Stdout)
		if err != nil {
			printlnFn(err.Error())
			return
		}
		defer common.WipeByteArray(password)

		keyID, err := a.keyring.RotateKey(ctx, password)
		if err != nil {
			printlnFn(err.Error())
			return
		}
		printlnFn("New current key:", keyID)

	case "export":
		if len(args) < 2 {
			printlnFn("Usage: key export <id>")
			return
		}
		password, err := getPassword(os.Stdout)
		if err != nil {
			printlnFn(err.Error())
			return
		}
		defer common.WipeByteArray(password)

		material, err := a.keyring.ExportKey(ctx, args[1], password)
		if err != nil {
			printlnFn(err.Error())
			return
		}
		printlnFn(material)

	case "import":
		if len(args) < 3 {
			printlnFn("Usage: key import <id> <hex>")
			return
		}
		if err := a.keyring.ImportKey(ctx, args[1], args[2]); err != nil {
			printlnFn(err.Error())
			return
		}
		printlnFn("Key imported.")

	case "backup":
		keyID := ""
		if len(args) > 1 {
			keyID = args[1]
		} else {
			current, err := a.keyring.CurrentKeyID(ctx)
			if err != nil {
				printlnFn(err.Error())
				return
			}
			keyID = current
		}
		eventID, err := a.keyring.BackupKey(ctx, keyID)
		if err != nil {
			printlnFn(err.Error())
			return
		}
		printlnFn("Backup published, event", eventID)

	case "disable":
		answer, err := getSimpleText(a.reader, "Disabling encryption destroys all keys and secure fields. Type 'yes' to continue", os.Stdout)
		if err != nil || answer != "yes" {
			printlnFn("Aborted.")
			return
		}
		password, err := getPassword(os.Stdout)
		if err != nil {
			printlnFn(err.Error())
			return
		}
		defer common.WipeByteArray(password)

		if err := a.keyring.DisableEncryption(ctx, password); err != nil {
			printlnFn(err.Error())
			return
		}
		printlnFn("Encryption disabled.")

	case "restore":
		restored, err := a.keyring.RestoreFromBackup(ctx)
		if err != nil {
			printlnFn(err.Error())
			return
		}
		printfFn("Restored %d key(s) from backup.\n", restored)

	default:
		printlnFn("Unknown key subcommand:", args[0])
	}
}
