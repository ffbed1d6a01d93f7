package db

import (
	"database/sql"
	"strings"
	"testing"
)

func TestSetup_ClosesOnFailure(t *testing.T) {
	// A directory cannot be opened as a database file.
	conn, err := sql.Open("sqlite", t.TempDir())
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}

	if _, err := setup(conn); err == nil {
		conn.Close()
		t.Fatal("setup() succeeded on a directory")
	}

	err = conn.Ping()
	if err == nil || !strings.Contains(err.Error(), "database is closed") {
		t.Errorf("connection left open after failed setup: ping err = %v", err)
	}
}
