package natsserver

import (
	"io"
	"log/slog"
	"testing"

	"github.com/auralith/kokorod/internal/config"
)

func TestStartDisabledReturnsNil(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := Start(config.BusConfig{Embedded: false}, "node", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if srv != nil {
		t.Fatal("expected nil server when embedded mode is off")
	}
	// nil receivers are tolerated so callers need no guards.
	srv.Shutdown()
	if srv.ClientURL() != "" {
		t.Fatal("nil server must report an empty client URL")
	}
}
