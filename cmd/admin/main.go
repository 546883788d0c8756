// Package main provides admin management utilities for Folio.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"folio/internal/bootstrap"
	"folio/internal/cache"
	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/featureflags"
	"folio/internal/repository"
	"folio/internal/service"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/admin promote <email>   - Promote user to admin")
	fmt.Println("  go run ./cmd/admin demote <email>    - Demote user from admin")
	fmt.Println("  go run ./cmd/admin list-admins       - List all admins")
	fmt.Println("  go run ./cmd/admin users             - List users with page and view totals")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	// Redis is optional here; when reachable, promotions drop the running
	// server's cached copy of the user.
	db, rdb, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{SkipSchema: true})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)
	if rdb != nil {
		defer rdb.Close()
	}

	admin := service.NewAdminService(
		repository.NewUserRepository(db, cache.NewStore(rdb)),
		repository.NewPageRepository(db),
		repository.NewPageViewRepository(db),
		repository.NewWaitlistRepository(db),
		featureflags.NewManager(cfg.FeatureFlags),
	)

	switch cmd := os.Args[1]; cmd {
	case "promote", "demote":
		if len(os.Args) < 3 {
			fmt.Printf("Usage: go run ./cmd/admin %s <email>\n", cmd)
			os.Exit(1)
		}
		err = setAdmin(ctx, admin, os.Args[2], cmd == "promote")
	case "list-admins":
		err = listAdmins(ctx, admin)
	case "users":
		err = listUsers(ctx, admin)
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

func setAdmin(ctx context.Context, admin *service.AdminService, email string, isAdmin bool) error {
	user, err := admin.SetAdminByEmail(ctx, email, isAdmin)
	if err != nil {
		return err
	}
	verb := "demoted"
	if isAdmin {
		verb = "promoted"
	}
	fmt.Printf("Successfully %s %s (ID: %d)\n", verb, user.Username, user.ID)
	return nil
}

func listAdmins(ctx context.Context, admin *service.AdminService) error {
	admins, err := admin.ListAdmins(ctx)
	if err != nil {
		return err
	}
	if len(admins) == 0 {
		fmt.Println("No admins found in the system")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL")
	for _, a := range admins {
		fmt.Fprintf(w, "%d\t%s\t%s\n", a.ID, a.Username, a.Email)
	}
	return w.Flush()
}

func listUsers(ctx context.Context, admin *service.AdminService) error {
	rows, err := admin.Users(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tPLAN\tADMIN\tPAGES\tVIEWS")
	for _, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%d\t%d\n",
			r.ID, r.Username, r.Email, r.Plan, r.IsAdmin, r.PageCount, r.TotalViews)
	}
	return w.Flush()
}
