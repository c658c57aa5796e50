package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"example.com/ecolog/internal/migrations"
)

// RunMigrations applies the embedded goose migrations against the database.
// It opens a short-lived database/sql connection because goose does not
// speak the pgx pool API.
func RunMigrations(ctx context.Context, postgresURL string) error {
	db, err := sql.Open("pgx", postgresURL)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}
