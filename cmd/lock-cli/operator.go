package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"tokenlock/cmd/internal/passphrase"
	"tokenlock/crypto"
	"tokenlock/integrations/exports"
	"tokenlock/integrations/outbox"
	"tokenlock/rpc"
)

const outboxUsage = "Usage: lock-cli outbox <pending|ack> [options]"

func runOutboxCommand(args []string, stdout, stderr io.Writer) int {
	name, rest, ok := subcommand(args, outboxUsage, stderr)
	if !ok {
		return 1
	}
	fs := flag.NewFlagSet("outbox "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		limit int
		ids   string
	)
	fs.IntVar(&limit, "limit", 0, "maximum transfers to list")
	fs.StringVar(&ids, "ids", "", "comma separated transfer ids to acknowledge")
	if err := fs.Parse(rest); err != nil {
		return 1
	}
	switch name {
	case "pending":
		var param interface{}
		if limit > 0 {
			param = map[string]int{"limit": limit}
		}
		return printCall(stdout, stderr, "lock_outboxPending", param, true)
	case "ack":
		if !require(stderr, map[string]string{"ids": ids}) {
			return 1
		}
		list := make([]string, 0)
		for _, id := range strings.Split(ids, ",") {
			if trimmed := strings.TrimSpace(id); trimmed != "" {
				list = append(list, trimmed)
			}
		}
		return printCall(stdout, stderr, "lock_outboxAck", map[string][]string{"ids": list}, true)
	default:
		return unknownSubcommand(stderr, name, outboxUsage)
	}
}

// runExportCommand reads the outbox database directly and writes an extract
// with its checksum.
func runExportCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		dsn    string
		status string
		format string
		out    string
		limit  int
	)
	fs.StringVar(&dsn, "dsn", "file:outbox.db", "outbox database DSN")
	fs.StringVar(&status, "status", "", "filter by status (PENDING, FORWARDED, CANCELLED)")
	fs.StringVar(&format, "format", "csv", "output format: csv, jsonl or parquet")
	fs.StringVar(&out, "out", "", "write the export to this file instead of stdout")
	fs.IntVar(&limit, "limit", 0, "maximum rows (0 for all)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	store, err := outbox.Open(dsn)
	if err != nil {
		fmt.Fprintf(stderr, "Error: open outbox: %v\n", err)
		return 1
	}
	defer store.Close()

	transfers, err := store.List(context.Background(), outbox.Status(strings.ToUpper(strings.TrimSpace(status))), limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: list transfers: %v\n", err)
		return 1
	}

	var (
		data []byte
		sum  string
	)
	switch strings.ToLower(format) {
	case "csv":
		data, sum, err = exports.TransfersCSV(transfers)
	case "jsonl":
		data, sum, err = exports.TransfersJSONL(transfers)
	case "parquet":
		data, sum, err = exports.TransfersParquet(transfers)
	default:
		fmt.Fprintf(stderr, "Error: unknown format %q\n", format)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if out == "" {
		if _, err := stdout.Write(data); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stderr, "rows=%d sha256=%s\n", len(transfers), sum)
		return 0
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		fmt.Fprintf(stderr, "Error: write %s: %v\n", out, err)
		return 1
	}
	fmt.Fprintf(stdout, "Wrote %d transfers to %s (sha256=%s)\n", len(transfers), out, sum)
	return 0
}

// runTokenCommand mints a bearer token for the RPC server from the shared
// HMAC secret, prompting for it when the environment does not carry it.
func runTokenCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		subject   string
		scope     string
		ttl       time.Duration
		secretEnv string
		issuer    string
		audience  string
	)
	fs.StringVar(&subject, "subject", "", "bech32 account the token speaks for")
	fs.StringVar(&scope, "scope", "", "comma separated scopes, e.g. admin")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	fs.StringVar(&secretEnv, "secret-env", "TOKENLOCK_JWT_SECRET", "environment variable holding the HMAC secret")
	fs.StringVar(&issuer, "issuer", "tokenlock", "token issuer")
	fs.StringVar(&audience, "audience", "tokenlock-rpc", "token audience")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if !require(stderr, map[string]string{"subject": subject}) {
		return 1
	}
	account, err := crypto.ParseAccount(strings.TrimSpace(subject))
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid subject: %v\n", err)
		return 1
	}
	secret, err := passphrase.NewSource(secretEnv, "JWT signing secret").Get()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	auth, err := rpc.NewAuthenticator(rpc.AuthConfig{
		HMACSecret: secret,
		Issuer:     issuer,
		Audience:   audience,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	var scopes []string
	for _, s := range strings.Split(scope, ",") {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			scopes = append(scopes, trimmed)
		}
	}
	token, err := auth.Issue(account, ttl, scopes...)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
