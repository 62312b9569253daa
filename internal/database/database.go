package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-activity/internal/config"
	"ms-activity/internal/logger"
	"ms-activity/internal/models"
)

// Connect opens the PostgreSQL pool, retrying while the database comes up.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	var sqldb *sql.DB
	var err error

	tries := cfg.ConnectTries
	if tries < 1 {
		tries = 1
	}

	for i := 0; i < tries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, tries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.PingContext(ctx)
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		sqldb.Close()
		if i < tries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to postgres after %d attempts: %w", tries, err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// Models lists every table in foreign key order, parents first.
var Models = []interface{}{
	(*models.Period)(nil),
	(*models.Activity)(nil),
	(*models.UserTag)(nil),
	(*models.Occasion)(nil),
	(*models.OccasionDate)(nil),
	(*models.OccasionNeed)(nil),
	(*models.Attendee)(nil),
	(*models.Booking)(nil),
	(*models.Invoice)(nil),
	(*models.InvoiceItem)(nil),
	(*models.InvoiceReference)(nil),
}

var foreignKeys = map[string][]string{
	"occasions": {
		"(period_id) REFERENCES periods (id)",
		"(activity_id) REFERENCES activities (id)",
	},
	"occasion_dates":     {"(occasion_id) REFERENCES occasions (id)"},
	"occasion_needs":     {"(occasion_id) REFERENCES occasions (id)"},
	"bookings":           {"(occasion_id) REFERENCES occasions (id)", "(attendee_id) REFERENCES attendees (id)", "(period_id) REFERENCES periods (id)"},
	"invoices":           {"(period_id) REFERENCES periods (id)"},
	"invoice_items":      {"(invoice_id) REFERENCES invoices (id)"},
	"invoice_references": {"(invoice_id) REFERENCES invoices (id)"},
}

// CreateSchema builds the tables straight from the models. Production
// databases are migrated with the SQL files under migrations/; this is for
// tests and local tooling.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, m := range Models {
		q := db.NewCreateTable().Model(m).IfNotExists()
		table := q.GetTableName()
		for _, fk := range foreignKeys[table] {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}
	return nil
}

// DropSchema drops the tables in reverse dependency order.
func DropSchema(ctx context.Context, db bun.IDB) error {
	for i := len(Models) - 1; i >= 0; i-- {
		q := db.NewDropTable().Model(Models[i]).IfExists()
		if db.Dialect().Name() == dialect.PG {
			q = q.Cascade()
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("drop table: %w", err)
		}
	}
	return nil
}

// ForUpdate adds a row lock on dialects that support it.
func ForUpdate(db bun.IDB, q *bun.SelectQuery) *bun.SelectQuery {
	if db.Dialect().Name() == dialect.PG {
		return q.For("UPDATE")
	}
	return q
}

// ForUpdateSkipLocked is ForUpdate for callers that move on to the next
// row instead of waiting for one held by another transaction.
func ForUpdateSkipLocked(db bun.IDB, q *bun.SelectQuery) *bun.SelectQuery {
	if db.Dialect().Name() == dialect.PG {
		return q.For("UPDATE SKIP LOCKED")
	}
	return q
}
