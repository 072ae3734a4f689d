package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// printlnFn and printfFn are test seams for user-facing output.
var printlnFn = fmt.Println
var printfFn = fmt.Printf

// execIface defines the minimal command surface the REPL needs to
// operate. The real App type satisfies this interface; tests provide a
// lightweight stub.
type execIface interface {
	status() string
	execute(ctx context.Context, cmd string, args []string) (exit bool)
}

// Root starts the interactive loop on stdin.
func (a *App) Root(ctx context.Context) {
	printlnFn("openpos admin console (type 'help' for commands)")
	runREPL(ctx, a, bufio.NewScanner(os.Stdin))
}

// runREPL reads a line, parses the first token as the command and
// dispatches. The loop exits on EOF or when a handler signals exit.
// Handlers print their own errors; the loop stays resilient.
func runREPL(ctx context.Context, a execIface, scanner *bufio.Scanner) {
	for {
		printfFn("pos %s> ", a.status())
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		if a.execute(ctx, parts[0], parts[1:]) {
			return
		}
	}
}

func (a *App) status() string {
	s := "locked"
	if !a.keyring.IsLocked() {
		s = "unlocked"
	}
	if a.company.Degraded() {
		s += " degraded"
	}
	return "(" + s + ")"
}

func (a *App) execute(ctx context.Context, cmd string, args []string) bool {
	switch cmd {
	case "help":
		a.help()
	case "setup":
		a.setupMasterPassword(ctx)
	case "unlock":
		a.unlock(ctx)
	case "lock":
		a.keyring.Lock()
	case "key":
		a.keyCommand(ctx, args)
	case "relay":
		a.relayCommand(ctx, args)
	case "code":
		a.codeCommand(ctx, args)
	case "staff":
		a.staffCommand(ctx, args)
	case "sync":
		a.syncCommand(ctx, args)
	case "audit":
		a.auditCommand(ctx, args)
	case "settings":
		a.settingsCommand(ctx, args)
	case "exit", "quit":
		printlnFn("Bye!")
		return true
	default:
		printlnFn("Unknown command:", cmd)
	}
	return false
}

func (a *App) help() {
	printlnFn("Available commands:")
	printlnFn("  setup | unlock | lock")
	printlnFn("  key list|rotate|export|import|backup|restore|disable")
	printlnFn("  relay add|list|remove|primary|test")
	printlnFn("  code generate|show|set|toggle|regenerate|announce|join")
	printlnFn("  staff create|list|invite|join|whoami|revoke|restore|delete")
	printlnFn("  sync now|status")
	printlnFn("  audit list|search|stats")
	printlnFn("  settings show|edit")
	printlnFn("  exit")
}
