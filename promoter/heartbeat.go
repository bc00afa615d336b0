package promoter

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pingcap/errors"

	// heartbeat drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

var (
	// ErrPrimaryUnreachable means the connection to the primary could not
	// be established at all.
	ErrPrimaryUnreachable = errors.New("could not establish connection to primary server")

	// ErrUnexpectedResult means the primary accepted the connection but the
	// liveness query did not return exactly one row.
	ErrUnexpectedResult = errors.New("could not retrieve expected result from primary server")
)

// Checker runs one liveness attempt against the primary.
type Checker interface {
	Check(ctx context.Context) error
}

// Heartbeat checks the primary with a trivial query over a fresh connection.
// The connection is never held across attempts.
type Heartbeat struct {
	driver   string
	connInfo string
}

func NewHeartbeat(cfg *Config) *Heartbeat {
	h := new(Heartbeat)
	h.driver = cfg.Driver
	h.connInfo = cfg.PrimaryConnInfo

	return h
}

// Check opens a connection to the primary, runs SELECT 1 and requires
// exactly one row back. The handle is released before returning on every
// path. Failures are classified, never propagated as panics: the cause is
// ErrPrimaryUnreachable or ErrUnexpectedResult.
func (h *Heartbeat) Check(ctx context.Context) error {
	db, err := sqlx.Open(h.driver, h.connInfo)
	if err != nil {
		return errors.Annotatef(ErrPrimaryUnreachable, "%s", err)
	}
	defer db.Close()

	conn, err := db.Connx(ctx)
	if err != nil {
		return errors.Annotatef(ErrPrimaryUnreachable, "%s", err)
	}
	defer conn.Close()

	var rows []int
	if err = conn.SelectContext(ctx, &rows, "SELECT 1"); err != nil {
		return errors.Annotatef(ErrUnexpectedResult, "%s", err)
	}

	if len(rows) != 1 {
		return errors.Annotatef(ErrUnexpectedResult, "got %d rows, want 1", len(rows))
	}

	return nil
}
