package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/fieldmeta"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/domain/types"
	"github.com/jacksonlee411/contact-autofill/modules/autofill/infrastructure/persistence"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: dbtool <migrate|smoke> --dsn <dsn>")
	}

	switch os.Args[1] {
	case "migrate":
		dsn := parseDSNFlag("migrate", os.Args[2:])
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := migrate(ctx, dsn); err != nil {
			fatal(err)
		}
		fmt.Println("[migrate] OK")
	case "smoke":
		dsn := parseDSNFlag("smoke", os.Args[2:])
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := smoke(ctx, dsn); err != nil {
			fatal(err)
		}
		fmt.Println("[smoke] OK")
	default:
		fatalf("unknown subcommand: %s", os.Args[1])
	}
}

func parseDSNFlag(name string, args []string) string {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var dsn string
	fs.StringVar(&dsn, "dsn", os.Getenv("CONFIG_STORE_DSN"), "config store dsn (postgres://, sqlite://)")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if strings.TrimSpace(dsn) == "" {
		fatalf("missing --dsn")
	}
	return dsn
}

func dsnScheme(dsn string) string {
	scheme, _, ok := strings.Cut(strings.TrimSpace(dsn), "://")
	if !ok {
		return ""
	}
	return strings.ToLower(scheme)
}

// migrate applies the config store schema. SQLite stores migrate on open;
// Postgres gets the schema applied over a single connection.
func migrate(ctx context.Context, dsn string) error {
	switch dsnScheme(dsn) {
	case "postgres", "postgresql":
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return err
		}
		defer conn.Close(context.Background())
		if _, err := conn.Exec(ctx, persistence.PostgresSchema()); err != nil {
			if msg, ok := pgErrorMessage(err); ok {
				return fmt.Errorf("apply schema: %s", msg)
			}
			return err
		}
		return nil
	case "sqlite", "sqlite3":
		_, closeFn, err := persistence.OpenConfigStore(ctx, dsn)
		closeFn()
		return err
	default:
		return fmt.Errorf("migrate: unsupported dsn scheme %q", dsnScheme(dsn))
	}
}

// smoke round-trips a configuration and one field through the store, then
// removes them.
func smoke(ctx context.Context, dsn string) error {
	store, closeFn, err := persistence.OpenConfigStore(ctx, dsn)
	if err != nil {
		return err
	}
	defer closeFn()

	ts := time.Now().UTC().Truncate(time.Microsecond)
	cfgID, err := uuid.NewV7()
	if err != nil {
		return err
	}
	fieldID, err := uuid.NewV7()
	if err != nil {
		return err
	}

	owner := types.Configuration{ID: cfgID.String(), Name: "dbtool smoke", LocationID: "smoke", CreatedAt: ts, UpdatedAt: ts}
	if _, err := store.CreateConfiguration(ctx, owner); err != nil {
		return fmt.Errorf("create configuration: %w", err)
	}
	defer func() { _ = store.DeleteConfiguration(context.Background(), owner.ID) }()

	targetKey := "contact.email"
	field := types.ExtractionFieldConfig{
		ID:              fieldID.String(),
		ConfigurationID: owner.ID,
		FieldName:       "Email",
		TargetKey:       targetKey,
		TargetKind:      fieldmeta.ClassifyTargetKey(targetKey),
		FieldType:       "EMAIL",
		OverwritePolicy: types.OverwriteIfEmpty,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
	if _, err := store.CreateFieldConfig(ctx, field); err != nil {
		return fmt.Errorf("create field: %w", err)
	}

	list, err := store.ListFieldConfigs(ctx, owner.ID)
	if err != nil {
		return fmt.Errorf("list fields: %w", err)
	}
	if len(list) != 1 || list[0].ID != field.ID || list[0].TargetKind != types.TargetKindStandard {
		return fmt.Errorf("unexpected fields: %+v", list)
	}

	if err := store.DeleteConfiguration(ctx, owner.ID); err != nil {
		return fmt.Errorf("delete configuration: %w", err)
	}
	if _, err := store.GetFieldConfig(ctx, owner.ID, field.ID); err == nil {
		return errors.New("field survived configuration delete")
	}
	return nil
}

func pgErrorMessage(err error) (string, bool) {
	pgErr, ok := errors.AsType[*pgconn.PgError](err)
	if !ok {
		return "", false
	}
	return pgErr.Message, true
}

func fatal(err error) {
	if err == nil {
		os.Exit(1)
	}
	fatalf("%v", err)
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
