package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"os"

	_ "github.com/lib/pq"
)

const kvSchema = `CREATE TABLE IF NOT EXISTS _kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type Postgres struct {
	db *sql.DB
}

func AttachPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Close() error { return p.db.Close() }

// EnsureSchema creates the backing table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, kvSchema)
	return err
}

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := p.db.QueryRowContext(ctx, "SELECT value FROM _kv WHERE key=$1", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	_, err := p.db.ExecContext(ctx,
		"INSERT INTO _kv(key, value) VALUES($1, $2) ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=now()",
		key, value)
	return err
}

func BuildPostgresDSNFromEnv() string {
	host := os.Getenv("PG_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("PG_PORT")
	if port == "" {
		port = "5432"
	}
	user := os.Getenv("PG_USER")
	if user == "" {
		user = "postgres"
	}
	db := os.Getenv("PG_DB")
	if db == "" {
		db = "leads"
	}
	ssl := os.Getenv("PG_SSLMODE")
	if ssl == "" {
		ssl = "disable"
	}
	dsn := "postgres://" + user
	if pass := os.Getenv("PG_PASSWORD"); pass != "" {
		dsn += ":" + pass
	}
	dsn += "@" + host + ":" + port + "/" + db + "?sslmode=" + ssl
	return dsn
}

// OpenPostgresFromEnv connects and ensures the _kv table exists.
func OpenPostgresFromEnv() (*Postgres, error) {
	db, err := sql.Open("postgres", BuildPostgresDSNFromEnv())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	p := AttachPostgres(db)
	if err := p.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}
