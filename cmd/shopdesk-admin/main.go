package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/shopdesk-backend/internal/admins"
	"github.com/angelmondragon/shopdesk-backend/internal/identity"
	"github.com/angelmondragon/shopdesk-backend/internal/shops"
	"github.com/angelmondragon/shopdesk-backend/pkg/config"
	"github.com/angelmondragon/shopdesk-backend/pkg/db"
	"github.com/angelmondragon/shopdesk-backend/pkg/logger"
	"github.com/angelmondragon/shopdesk-backend/pkg/migrate"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes one console command and returns the process exit code.
// Deferred cleanup runs before the caller exits.
func run(argv []string) int {
	if len(argv) == 0 {
		printUsage()
		return 1
	}

	cmd, args := argv[0], argv[1:]
	switch cmd {
	case "help", "-h", "--help":
		printUsage()
		return 0
	case "admins", "shops":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		return 1
	}

	if err := execute(context.Background(), cmd, args); err != nil {
		color.Red("Error: %v\n", err)
		return 1
	}
	return 0
}

func execute(ctx context.Context, cmd string, args []string) error {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logg := logger.New(logger.Options{
		ServiceName: "shopdesk-admin",
		Level:       logger.ParseLevel("warn"),
		Format:      "console",
		Output:      os.Stderr,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer dbClient.Close()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	adminRepo := admins.NewRepository(dbClient.DB())
	shopService, err := shops.NewService(shops.ServiceParams{
		Repo:           shops.NewRepository(dbClient.DB()),
		Secondary:      func(string) shops.SecondaryAuth { return provisioningDisabled{} },
		Admins:         adminRepo,
		Admin:          cfg.Admin,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return err
	}

	cli := &console{
		out:         os.Stdout,
		credentials: identity.NewRepository(dbClient.DB()),
		admins:      adminRepo,
		shops:       shopService,
		passwordCfg: cfg.Password,
	}

	if cmd == "admins" {
		return cli.admin(ctx, args)
	}
	return cli.shop(ctx, args)
}

func printUsage() {
	yellow := color.New(color.FgYellow)

	fmt.Println("Usage: shopdesk-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  admins list                               List administrator records")
	fmt.Println("  admins add --email <e> [--name <n>]       Grant admin access, creating a credential if needed")
	fmt.Println("             [--password <p>] [--role <r>]  A temporary password is generated when omitted")
	fmt.Println("  admins remove <email|principal-id>        Revoke admin access")
	fmt.Println("  shops list [--status <s>]                 List shops newest first")
	fmt.Println("  shops pending                             List shops awaiting review")
	fmt.Println("  shops counts                              Show shop totals per status")
	fmt.Println("  shops approve|reject <id>                 Approve or reject a shop")
	fmt.Println("  shops freeze|unfreeze <id>                Freeze or unfreeze a shop")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  SHOPDESK_DB_DSN / SHOPDESK_USE_SQLITE     Database to manage")
	fmt.Println("  SHOPDESK_ADMIN_EMAIL                      Configured admin address")
	fmt.Println()
}
