package postgres_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	readings "thermo-cloud/internal/readings/domain"
	readingspostgres "thermo-cloud/internal/readings/infrastructure/postgres"
	"thermo-cloud/internal/readings/infrastructure/repotest"
)

func TestReadingRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	loc := time.FixedZone("IST", 3600)
	counter := 0
	repotest.Run(t, loc, func(t *testing.T) readings.ReadingRepository {
		counter++
		table := fmt.Sprintf("temperature_readings_it_%d_%d", time.Now().UnixNano()%1_000_000, counter)
		repo := readingspostgres.NewReadingRepository(db, readingspostgres.WithTable(table), readingspostgres.WithLocation(loc))
		if err := repo.EnsureSchema(context.Background()); err != nil {
			t.Fatalf("ensure schema: %v", err)
		}
		t.Cleanup(func() {
			_, _ = db.Exec("DROP TABLE IF EXISTS " + table)
		})
		return repo
	})
}
