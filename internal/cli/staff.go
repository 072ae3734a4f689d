package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/openpos/companysync/internal/filex"
	"github.com/openpos/companysync/internal/models"
	"github.com/openpos/companysync/internal/store/metadata"
)

func (a *App) staffCommand(ctx context.Context, args []string) {
	if len(args) == 0 {
		printlnFn("Usage: staff create <role> <name> | list [all] | invite <id> | join <token> | whoami | revoke <id> | restore <id> | delete <id>")
		return
	}

	switch args[0] {
	case "create":
		if len(args) < 3 {
			printlnFn("Usage: staff create <role> <name>")
			return
		}
		rec, err := a.staff.Create(ctx, strings.Join(args[2:], " "), models.Role(args[1]))
		if err != nil {
			printlnFn(err.Error())
			return
		}
		printfFn("Created %s (%s), id %s\n", rec.Name, rec.Role, rec.ID)
		if rec.Role != models.RoleOwner {
			printlnFn("Run 'staff invite " + rec.ID + "' to onboard a device.")
		}

	case "list":
		includeDeleted := len(args) > 1 && args[1] == "all"
		members, err := a.staff.List(ctx, includeDeleted)
		if err != nil {
			printlnFn(err.Error())
			return
		}
		for _, m := range members {
			printfFn("%s  %-20s %-8s %s\n", m.ID, m.Name, m.Role, staffState(m))
		}

	case "invite":
		if len(args) < 2 {
			printlnFn("Usage: staff invite <id>")
			return
		}
		invite, err := a.identity.CreateInvite(ctx, args[1])
		if err != nil {
			printlnFn(err.Error())
			return
		}
		printlnFn("Invite link (expires " + invite.ExpiresAt.Format("2006-01-02 15:04") + "):")
		printlnFn(invite.PayloadLink)

		png, err := a.identity.InviteQR(invite)
		if err != nil {
			printlnFn(err.Error())
			return
		}
		dir, err := filex.EnsureSubdDir("invites")
		if err != nil {
			printlnFn(err.Error())
			return
		}
		file := filepath.Join(dir, fmt.Sprintf("invite-%s.png", args[1]))
		if err := filex.WriteFileAtomic(file, png, 0o600); err != nil {
			printlnFn(err.Error())
			return
		}
		printlnFn("QR code written to", file)

	case "join":
		if len(args) < 2 {
			printlnFn("Usage: staff join <token>")
			return
		}
		pub, err := a.identity.EnsureDeviceKey(ctx)
		if err != nil {
			printlnFn(err.Error())
			return
		}
		rec, err := a.staff.Join(ctx, args[1], pub)
		if err != nil {
			printlnFn(err.Error())
			return
		}
		if err := a.repos.Metadata.Set(ctx, metadata.KeyStaffID, []byte(rec.ID)); err != nil {
			a.log.Warn("own staff id not persisted", "err", err)
		}
		printfFn("Joined as %s (%s).\n", rec.Name, rec.Role)

	case "whoami":
		id, err := a.repos.Metadata.Get(ctx, metadata.KeyStaffID)
		if err != nil {
			printlnFn("This device has not joined a staff identity.")
			return
		}
		rec, err := a.staff.Get(ctx, string(id))
		if err != nil {
			printlnFn(err.Error())
			return
		}
		printfFn("%s  %s (%s), %s\n", rec.ID, rec.Name, rec.Role, staffState(rec))

	case "revoke":
		if len(args) < 2 {
			printlnFn("Usage: staff revoke <id>")
			return
		}
		if err := a.staff.Revoke(ctx, args[1]); err != nil {
			printlnFn(err.Error())
			return
		}
		printlnFn("Access revoked.")

	case "restore":
		if len(args) < 2 {
			printlnFn("Usage: staff restore <id>")
			return
		}
		if err := a.staff.Restore(ctx, args[1]); err != nil {
			printlnFn(err.Error())
			return
		}
		printlnFn("Access restored.")

	case "delete":
		if len(args) < 2 {
			printlnFn("Usage: staff delete <id>")
			return
		}
		if err := a.staff.Delete(ctx, args[1]); err != nil {
			printlnFn(err.Error())
			return
		}
		printlnFn("Identity deleted (recoverable with 'staff restore').")

	default:
		printlnFn("Unknown staff subcommand:", args[0])
	}
}

func staffState(m *models.StaffIdentity) string {
	switch {
	case m.DeletedAt != nil:
		return "deleted"
	case m.RevokedAt != nil:
		return "revoked"
	case m.IsActive:
		return "active"
	default:
		return "pending"
	}
}
