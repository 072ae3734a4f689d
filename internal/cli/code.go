package cli

import (
	"context"
)

func (a *App) codeCommand(ctx context.Context, args []string) {
	if len(args) == 0 {
		printlnFn("Usage: code generate | show | set <code> | join <code> | toggle on|off | regenerate | announce")
		return
	}

	switch args[0] {
	case "generate":
		code, err := a.company.GenerateCompanyCode()
		if err != nil {
			printlnFn(err.Error())
			return
		}
		printlnFn(code)
		printlnFn("Run 'code set " + code + "' to bind this device as the owner.")

	case "show":
		cc, err := a.company.Current(ctx)
		if err != nil {
			printlnFn(err.Error())
			return
		}
		state := "disabled"
		if cc.Enabled {
			state = "enabled"
		}
		printfFn("%s (%s), owner %s\n", cc.Code, state, cc.OwnerPubkey)

	case "set":
		if len(args) < 2 {
			printlnFn("Usage: code set <code>")
			return
		}
		pub, err := a.identity.EnsureDeviceKey(ctx)
		if err != nil {
			printlnFn(err.Error())
			return
		}
		if err := a.company.SetCompanyCode(ctx, args[1], pub); err != nil {
			printlnFn(err.Error())
			return
		}
		a.announceOwnership(ctx)
		a.startSync(ctx)
		printlnFn("Company code bound, this device is the owner.")

	case "join":
		if len(args) < 2 {
			printlnFn("Usage: code join <code>")
			return
		}
		owner, err := a.company.DiscoverOwnerByCompanyCode(ctx, args[1])
		if err != nil {
			printlnFn(err.Error())
			return
		}
		if owner == "" {
			printlnFn("Owner not discoverable; continuing in degraded local-only mode.")
		}
		if err := a.company.SetCompanyCode(ctx, args[1], owner); err != nil {
			printlnFn(err.Error())
			return
		}
		a.startSync(ctx)
		printlnFn("Joined company scope.")

	case "toggle":
		if len(args) < 2 || (args[1] != "on" && args[1] != "off") {
			printlnFn("Usage: code toggle on|off")
			return
		}
		if err := a.company.ToggleCompanyCode(ctx, args[1] == "on"); err != nil {
			printlnFn(err.Error())
			return
		}
		printlnFn("Company code " + args[1] + ".")

	case "regenerate":
		code, err := a.company.Regenerate(ctx)
		if err != nil {
			printlnFn(err.Error())
			return
		}
		a.announceOwnership(ctx)
		printlnFn("New company code:", code)

	case "announce":
		a.announceOwnership(ctx)

	default:
		printlnFn("Unknown code subcommand:", args[0])
	}
}

func (a *App) announceOwnership(ctx context.Context) {
	priv, err := a.identity.DevicePrivateKey(ctx)
	if err != nil {
		printlnFn(err.Error())
		return
	}
	if err := a.company.AnnounceOwnership(ctx, priv); err != nil {
		printlnFn(err.Error())
	}
}
