// Package main implements the control CLI: an operator tool for tasks that
// don't belong behind the HTTP API — bootstrapping a new company, inspecting
// a user's account, fixing a broken team assignment, or forcing a password
// reset from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/vactrail/backend/internal/authz"
	"github.com/vactrail/backend/internal/clock"
	"github.com/vactrail/backend/internal/config"
	"github.com/vactrail/backend/internal/identity"
	"github.com/vactrail/backend/internal/password"
)

func main() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	hasher := password.NewHasher(password.DefaultParams())
	store := identity.NewStore(pool, hasher, clock.Real{})

	switch os.Args[1] {
	case "create-company":
		cmdCreateCompany(ctx, pool, hasher, os.Args[2:])
	case "check-user":
		cmdCheckUser(ctx, store, os.Args[2:])
	case "fix-membership":
		cmdFixMembership(ctx, store, os.Args[2:])
	case "reset-password":
		cmdResetPassword(ctx, pool, hasher, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `control: vactrail operator CLI

Usage:
  control create-company -name NAME -slug SLUG -domain DOMAIN [-admin-email EMAIL -admin-password PASS]
  control check-user -email EMAIL
  control fix-membership -user USER_ID -team TEAM_ID [-primary]
  control reset-password -email EMAIL -password NEWPASS`)
}

// cmdCreateCompany creates a company and a default "general" function, and
// optionally seeds a first admin user so the tenant isn't locked out of its
// own company after bootstrap.
func cmdCreateCompany(ctx context.Context, pool *pgxpool.Pool, hasher *password.Hasher, args []string) {
	fs := flag.NewFlagSet("create-company", flag.ExitOnError)
	name := fs.String("name", "", "company name")
	slug := fs.String("slug", "", "company slug (unique)")
	domain := fs.String("domain", "", "email domain")
	adminEmail := fs.String("admin-email", "", "optional: seed an admin user with this email")
	adminPassword := fs.String("admin-password", "", "required if -admin-email is set")
	adminFirstName := fs.String("admin-first-name", "Admin", "admin user's first name")
	adminLastName := fs.String("admin-last-name", "User", "admin user's last name")
	fs.Parse(args)

	if *name == "" || *slug == "" {
		log.Fatal("create-company: -name and -slug are required")
	}
	if *adminEmail != "" && *adminPassword == "" {
		log.Fatal("create-company: -admin-password is required when -admin-email is set")
	}

	companyID := uuid.New()
	_, err := pool.Exec(ctx,
		`INSERT INTO companies (id, name, slug, domain, settings) VALUES ($1, $2, $3, $4, '{}'::jsonb)`,
		companyID, *name, *slug, *domain,
	)
	if err != nil {
		log.Fatalf("create-company: insert company: %v", err)
	}
	fmt.Printf("created company %s (%s)\n", companyID, *name)

	functionID := uuid.New()
	_, err = pool.Exec(ctx,
		`INSERT INTO functions (id, company_id, name, code) VALUES ($1, $2, 'General', 'general')`,
		functionID, companyID,
	)
	if err != nil {
		log.Fatalf("create-company: insert default function: %v", err)
	}
	fmt.Printf("created default function %s\n", functionID)

	if *adminEmail == "" {
		return
	}

	hash, err := hasher.Hash(*adminPassword)
	if err != nil {
		log.Fatalf("create-company: hash admin password: %v", err)
	}

	userID := uuid.New()
	_, err = pool.Exec(ctx,
		`INSERT INTO users (id, company_id, primary_function_id, email, first_name, last_name, password_hash, role, is_active, email_verified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true, true)`,
		userID, companyID, functionID, *adminEmail, *adminFirstName, *adminLastName, hash, authz.RoleAdmin,
	)
	if err != nil {
		log.Fatalf("create-company: insert admin user: %v", err)
	}
	fmt.Printf("created admin user %s <%s>\n", userID, *adminEmail)
}

func cmdCheckUser(ctx context.Context, store *identity.Store, args []string) {
	fs := flag.NewFlagSet("check-user", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	fs.Parse(args)

	if *email == "" {
		log.Fatal("check-user: -email is required")
	}

	user, err := store.GetUserByEmail(ctx, *email)
	if err != nil {
		log.Fatalf("check-user: %v", err)
	}

	company, err := store.GetCompany(ctx, user.CompanyID)
	if err != nil {
		log.Fatalf("check-user: load company: %v", err)
	}

	fmt.Printf("id:              %s\n", user.ID)
	fmt.Printf("email:           %s\n", user.Email)
	fmt.Printf("name:            %s %s\n", user.FirstName, user.LastName)
	fmt.Printf("company:         %s (%s)\n", company.Name, company.Slug)
	fmt.Printf("role:            %s\n", user.Role)
	fmt.Printf("active:          %t\n", user.IsActive)
	fmt.Printf("email_verified:  %t\n", user.EmailVerified)
	fmt.Printf("failed_logins:   %d\n", user.FailedLoginCount)
	if user.LockedUntil != nil {
		fmt.Printf("locked_until:    %s\n", user.LockedUntil.Format("2006-01-02T15:04:05Z07:00"))
	}
	if user.DeletedAt != nil {
		fmt.Printf("deleted_at:      %s\n", user.DeletedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
}

func cmdFixMembership(ctx context.Context, store *identity.Store, args []string) {
	fs := flag.NewFlagSet("fix-membership", flag.ExitOnError)
	userID := fs.String("user", "", "user id")
	teamID := fs.String("team", "", "team id")
	primary := fs.Bool("primary", false, "mark this team as the user's primary team")
	fs.Parse(args)

	if *userID == "" || *teamID == "" {
		log.Fatal("fix-membership: -user and -team are required")
	}

	uid, err := uuid.Parse(*userID)
	if err != nil {
		log.Fatalf("fix-membership: bad -user: %v", err)
	}
	tid, err := uuid.Parse(*teamID)
	if err != nil {
		log.Fatalf("fix-membership: bad -team: %v", err)
	}

	membership, err := store.AddTeamMembership(ctx, uid, tid, *primary)
	if err != nil {
		log.Fatalf("fix-membership: %v", err)
	}
	fmt.Printf("membership %s: user %s -> team %s (primary=%t)\n", membership.ID, uid, tid, *primary)
}

func cmdResetPassword(ctx context.Context, pool *pgxpool.Pool, hasher *password.Hasher, args []string) {
	fs := flag.NewFlagSet("reset-password", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	newPassword := fs.String("password", "", "new password")
	fs.Parse(args)

	if *email == "" || *newPassword == "" {
		log.Fatal("reset-password: -email and -password are required")
	}

	hash, err := hasher.Hash(*newPassword)
	if err != nil {
		log.Fatalf("reset-password: hash: %v", err)
	}

	tag, err := pool.Exec(ctx,
		`UPDATE users SET password_hash = $1, failed_login_count = 0, locked_until = NULL, updated_at = now()
		 WHERE lower(email) = lower($2) AND deleted_at IS NULL`,
		hash, *email,
	)
	if err != nil {
		log.Fatalf("reset-password: %v", err)
	}
	if tag.RowsAffected() == 0 {
		log.Fatalf("reset-password: no active user found with email %s", *email)
	}
	fmt.Printf("password reset for %s\n", *email)
}
