package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planora/planora/internal/auth"
	"github.com/planora/planora/internal/perm"
)

func runAdmin(args []string) int {
	if len(args) == 0 {
		printAdminUsage()
		return 2
	}

	switch args[0] {
	case "reset-password":
		return runResetPassword(args[1:])
	case "grant-role":
		return runGrantRole(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown admin command: %s\n", args[0])
		printAdminUsage()
		return 2
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  planora admin reset-password --email user@example.com [--password <new>] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  planora admin grant-role --email user@example.com --role <root|admin|manager|member|viewer> [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Notes:")
	fmt.Fprintln(os.Stderr, "  - If --password is omitted, a random password is generated and printed.")
	fmt.Fprintln(os.Stderr, "  - grant-role resets the permission set to the role's defaults.")
	fmt.Fprintln(os.Stderr, "  - --db-dsn defaults to PL_DB_DSN.")
}

func runResetPassword(args []string) int {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var email string
	var password string
	var dbDSN string

	fs.StringVar(&email, "email", "", "User email")
	fs.StringVar(&password, "password", "", "New password (if empty, generates one)")
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to PL_DB_DSN)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Fprintln(os.Stderr, "--email is required")
		return 2
	}

	dbDSN = resolveDSN(dbDSN)
	if dbDSN == "" {
		fmt.Fprintln(os.Stderr, "--db-dsn is required (or set PL_DB_DSN)")
		return 2
	}

	generated := false
	if password == "" {
		pw, err := generatePassword(24)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate password: %v\n", err)
			return 1
		}
		password = pw
		generated = true
	}

	if len(password) < 8 {
		fmt.Fprintln(os.Stderr, "Password must be at least 8 characters")
		return 2
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	tag, err := pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE email = $1`, email, passwordHash)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to update password: %v\n", err)
		return 1
	}
	if tag.RowsAffected() == 0 {
		fmt.Fprintf(os.Stderr, "No user found with email %q\n", email)
		return 1
	}

	fmt.Fprintln(os.Stdout, "Password updated.")
	if generated {
		fmt.Fprintln(os.Stdout, password)
	}

	return 0
}

// runGrantRole assigns a role directly in the database. This is the
// bootstrap path for the first root account; everything after that goes
// through the API.
func runGrantRole(args []string) int {
	fs := flag.NewFlagSet("grant-role", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var email string
	var roleStr string
	var dbDSN string

	fs.StringVar(&email, "email", "", "User email")
	fs.StringVar(&roleStr, "role", "", "Role to grant")
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to PL_DB_DSN)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Fprintln(os.Stderr, "--email is required")
		return 2
	}

	role, ok := perm.ParseRole(roleStr)
	if !ok {
		fmt.Fprintf(os.Stderr, "Invalid role %q\n", roleStr)
		return 2
	}

	dbDSN = resolveDSN(dbDSN)
	if dbDSN == "" {
		fmt.Fprintln(os.Stderr, "--db-dsn is required (or set PL_DB_DSN)")
		return 2
	}

	permissions := perm.DefaultPermissionsFor(role)
	permStrings := make([]string, len(permissions))
	for i, p := range permissions {
		permStrings[i] = string(p)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	tag, err := pool.Exec(ctx, `
		UPDATE users SET role = $2, permissions = $3, updated_at = NOW() WHERE email = $1
	`, email, string(role), permStrings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to update role: %v\n", err)
		return 1
	}
	if tag.RowsAffected() == 0 {
		fmt.Fprintf(os.Stderr, "No user found with email %q\n", email)
		return 1
	}

	fmt.Fprintf(os.Stdout, "Granted role %s to %s.\n", role, email)
	return 0
}

func resolveDSN(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return strings.TrimSpace(os.Getenv("PL_DB_DSN"))
}

func generatePassword(bytesLen int) (string, error) {
	if bytesLen < 8 {
		bytesLen = 8
	}

	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	// URL-safe, printable, without padding.
	return base64.RawURLEncoding.EncodeToString(b), nil
}
