package server

import (
	"net/url"
	"os"
)

const memoryStoreDSN = "memory://"

// dbDSNFromEnv picks the config store DSN. DB_HOST switches the fallback from
// the in-memory store to a Postgres URL built from the DB_* variables.
func dbDSNFromEnv() string {
	if v := os.Getenv("CONFIG_STORE_DSN"); v != "" {
		return v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}
	if os.Getenv("DB_HOST") == "" {
		return memoryStoreDSN
	}

	host := getenvDefault("DB_HOST", "127.0.0.1")
	port := getenvDefault("DB_PORT", "5432")
	user := getenvDefault("DB_USER", "app")
	pass := getenvDefault("DB_PASSWORD", "app")
	name := getenvDefault("DB_NAME", "contact_autofill")
	sslmode := getenvDefault("DB_SSLMODE", "disable")

	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, pass),
		Host:   host + ":" + port,
		Path:   "/" + name,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

func dbEnvSet() bool {
	return os.Getenv("CONFIG_STORE_DSN") != "" || os.Getenv("DATABASE_URL") != "" || os.Getenv("DB_HOST") != ""
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
