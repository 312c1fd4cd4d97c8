package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jacksonlee411/contact-autofill/internal/routing"
)

func main() {
	addr := getenvDefault("CRM_STUB_ADDR", "127.0.0.1:8090")
	token := os.Getenv("CRM_STUB_TOKEN")
	seed := strings.Split(getenvDefault("CRM_STUB_SEED_CONTACTS", "contact-1"), ",")

	a, err := routing.LoadAllowlist(os.Getenv("ROUTING_ALLOWLIST_PATH"))
	if err != nil {
		log.Fatal(err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	h, err := newHandler(a, newStore(seed), token, logger)
	if err != nil {
		log.Fatal(err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(srv) }()
	log.Printf("crmstub: listening on %s", addr)

	select {
	case err := <-errCh:
		if err != nil {
			log.Printf("crmstub: server error: %v", err)
		}
	case <-ctx.Done():
	}
	_ = srv.Shutdown(context.Background())
}

func listenAndServe(srv *http.Server) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func getenvDefault(k string, def string) string {
	if v := os.Getenv(k); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}
