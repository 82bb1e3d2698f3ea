package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopdesk-backend/internal/admins"
	"github.com/angelmondragon/shopdesk-backend/internal/identity"
	"github.com/angelmondragon/shopdesk-backend/internal/shops"
	"github.com/angelmondragon/shopdesk-backend/pkg/config"
	"github.com/angelmondragon/shopdesk-backend/pkg/db/models"
	"github.com/angelmondragon/shopdesk-backend/pkg/enums"
	"github.com/angelmondragon/shopdesk-backend/pkg/security"
)

const tempPasswordLength = 16

type credentialStore interface {
	Create(ctx context.Context, email, passwordHash string) (*models.Credential, error)
	FindByEmail(ctx context.Context, email string) (*models.Credential, error)
}

type adminStore interface {
	FindByPrincipalID(ctx context.Context, principalID uuid.UUID) (*models.Administrator, error)
	Create(ctx context.Context, input admins.CreateAdministratorInput) (*models.Administrator, error)
	List(ctx context.Context) ([]models.Administrator, error)
	Delete(ctx context.Context, principalID uuid.UUID) error
}

type console struct {
	out         io.Writer
	credentials credentialStore
	admins      adminStore
	shops       shops.Service
	passwordCfg config.PasswordConfig
}

// provisioningDisabled backs the shop service's secondary auth; the CLI never creates shop accounts.
type provisioningDisabled struct{}

func (provisioningDisabled) CreateCredential(context.Context, string, string) (*identity.Principal, *identity.Tokens, error) {
	return nil, nil, errors.New("shop provisioning is only available through the API")
}

func (provisioningDisabled) DeleteCredential(context.Context) error { return nil }

func (provisioningDisabled) SignOut(context.Context) error { return nil }

func (c *console) admin(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.listAdmins(ctx)
	}
	switch args[0] {
	case "list":
		return c.listAdmins(ctx)
	case "add":
		return c.addAdmin(ctx, args[1:])
	case "remove", "rm":
		if len(args) < 2 {
			return errors.New("usage: admins remove <email|principal-id>")
		}
		return c.removeAdmin(ctx, args[1])
	default:
		return fmt.Errorf("unknown admins subcommand: %s", args[0])
	}
}

func (c *console) listAdmins(ctx context.Context) error {
	records, err := c.admins.List(ctx)
	if err != nil {
		return fmt.Errorf("listing administrators: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(c.out, "No administrators found.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRINCIPAL\tEMAIL\tNAME\tROLE\tSINCE")
	for _, record := range records {
		name := "-"
		if record.DisplayName != nil && *record.DisplayName != "" {
			name = *record.DisplayName
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			record.PrincipalID, record.Email, name, record.Role, record.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func (c *console) addAdmin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("admins add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "administrator email")
	name := fs.String("name", "", "display name")
	password := fs.String("password", "", "password for a new credential")
	role := fs.String("role", admins.DefaultRole, "administrator role")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}

	credential, generated, err := c.ensureCredential(ctx, *email, *password)
	if err != nil {
		return err
	}

	existing, err := c.admins.FindByPrincipalID(ctx, credential.ID)
	if err != nil {
		return fmt.Errorf("checking administrator: %w", err)
	}
	if existing != nil {
		color.New(color.FgYellow).Fprintf(c.out, "%s is already an administrator\n", credential.Email)
		return nil
	}

	if _, err := c.admins.Create(ctx, admins.CreateAdministratorInput{
		PrincipalID: credential.ID,
		Email:       credential.Email,
		DisplayName: *name,
		Role:        *role,
	}); err != nil {
		return fmt.Errorf("creating administrator: %w", err)
	}

	color.New(color.FgGreen).Fprintf(c.out, "Granted admin access to %s (%s)\n", credential.Email, credential.ID)
	if generated != "" {
		fmt.Fprintf(c.out, "Temporary password: %s\n", color.CyanString(generated))
	}
	return nil
}

// ensureCredential returns the existing credential for email or creates one.
// The second return value is a generated password, empty when none was generated.
func (c *console) ensureCredential(ctx context.Context, email, password string) (*models.Credential, string, error) {
	credential, err := c.credentials.FindByEmail(ctx, email)
	if err == nil {
		return credential, "", nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", fmt.Errorf("looking up credential: %w", err)
	}

	generated := ""
	if password == "" {
		if password, err = security.GenerateTempPassword(tempPasswordLength); err != nil {
			return nil, "", fmt.Errorf("generating password: %w", err)
		}
		generated = password
	}
	if err := security.ValidatePasswordPolicy(password, c.passwordCfg.MinLength); err != nil {
		return nil, "", err
	}

	hash, err := security.HashPassword(password, c.passwordCfg)
	if err != nil {
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}
	credential, err = c.credentials.Create(ctx, email, hash)
	if err != nil {
		return nil, "", fmt.Errorf("creating credential: %w", err)
	}
	return credential, generated, nil
}

func (c *console) removeAdmin(ctx context.Context, target string) error {
	principalID, err := uuid.Parse(target)
	if err != nil {
		credential, lookupErr := c.credentials.FindByEmail(ctx, target)
		if lookupErr != nil {
			return fmt.Errorf("no credential for %s: %w", target, lookupErr)
		}
		principalID = credential.ID
	}

	if err := c.admins.Delete(ctx, principalID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%s is not an administrator", target)
		}
		return fmt.Errorf("removing administrator: %w", err)
	}
	color.New(color.FgGreen).Fprintf(c.out, "Revoked admin access for %s\n", target)
	return nil
}

func (c *console) shop(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.listShops(c.shops.ListAll(ctx), nil)
	}
	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("shops list", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		status := fs.String("status", "", "filter by status")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		var filter *enums.ShopStatus
		if *status != "" {
			parsed, err := enums.ParseShopStatus(*status)
			if err != nil {
				return err
			}
			filter = &parsed
		}
		return c.listShops(c.shops.ListAll(ctx), filter)
	case "pending":
		return c.listShops(c.shops.ListPending(ctx), nil)
	case "counts":
		return c.printCounts(c.shops.Counts(ctx))
	case "approve", "reject", "freeze", "unfreeze":
		if len(args) < 2 {
			return fmt.Errorf("usage: shops %s <id>", args[0])
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid shop id %q", args[1])
		}
		return c.transition(ctx, args[0], id)
	default:
		return fmt.Errorf("unknown shops subcommand: %s", args[0])
	}
}

func (c *console) transition(ctx context.Context, action string, id uuid.UUID) error {
	var (
		shop *shops.ShopDTO
		err  error
	)
	switch action {
	case "approve":
		shop, err = c.shops.Approve(ctx, id)
	case "reject":
		shop, err = c.shops.Reject(ctx, id)
	case "freeze":
		shop, err = c.shops.ToggleFreeze(ctx, id, true)
	case "unfreeze":
		shop, err = c.shops.ToggleFreeze(ctx, id, false)
	}
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(c.out, "%s is now %s\n", shop.ShopName, shop.Status)
	return nil
}

func (c *console) listShops(items []shops.ShopDTO, status *enums.ShopStatus) error {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tSTATUS\tCREATED")
	rows := 0
	for _, item := range items {
		if status != nil && item.Status != *status {
			continue
		}
		created := "-"
		if item.CreatedAt != nil {
			created = item.CreatedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", item.ID, item.ShopName, item.Email, item.Status, created)
		rows++
	}
	if rows == 0 {
		fmt.Fprintln(c.out, "No shops found.")
		return nil
	}
	return w.Flush()
}

func (c *console) printCounts(counts shops.ShopCounts) error {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCOUNT")
	fmt.Fprintf(w, "pending\t%d\n", counts.Pending)
	fmt.Fprintf(w, "approved\t%d\n", counts.Approved)
	fmt.Fprintf(w, "rejected\t%d\n", counts.Rejected)
	fmt.Fprintf(w, "frozen\t%d\n", counts.Frozen)
	fmt.Fprintf(w, "total\t%d\n", counts.Total)
	return w.Flush()
}
