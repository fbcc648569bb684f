package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Execer is the subset of clickhouse-go's driver.Conn the store needs.
type Execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// ClickHouse appends exchanges to a MergeTree table.
type ClickHouse struct {
	conn  Execer
	table string
	now   func() time.Time
}

func NewClickHouse(conn Execer, table string) *ClickHouse {
	if table == "" {
		table = DefaultTable
	}
	return &ClickHouse{conn: conn, table: table, now: time.Now}
}

func (c *ClickHouse) Name() string { return "clickhouse" }

// EnsureTable creates the exchange table if it does not exist.
func (c *ClickHouse) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          UUID,
	user_id     Nullable(String),
	project_id  Nullable(String),
	message     String,
	response    String,
	tokens_used UInt32,
	created_at  DateTime64(6, 'UTC')
) ENGINE = MergeTree ORDER BY (created_at, id)`, c.table)

	if err := c.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("store: clickhouse create table: %w", err)
	}
	return nil
}

// Scope ignores the header; ownership comes from the resolved identity.
func (c *ClickHouse) Scope(string) Scope { return c }

func (c *ClickHouse) Insert(ctx context.Context, ex *Exchange) (*Record, error) {
	if ex.UserID == nil {
		return nil, ErrUnauthenticated
	}

	id := uuid.New()
	created := c.now().UTC()

	query := fmt.Sprintf(
		"INSERT INTO %s (id, user_id, project_id, message, response, tokens_used, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		c.table,
	)
	err := c.conn.Exec(ctx, query,
		id, ex.UserID, ex.ProjectID, ex.Message, ex.Response, uint32(ex.TokensUsed), created,
	)
	if err != nil {
		return nil, fmt.Errorf("store: clickhouse insert: %w", err)
	}

	return &Record{
		ID:         id.String(),
		Response:   ex.Response,
		TokensUsed: ex.TokensUsed,
		CreatedAt:  Timestamp(created),
	}, nil
}
