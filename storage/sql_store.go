package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"carprep/models"
)

const batchSize = 50

// vehicleColumns are the insertable columns of the vehicles table, in order.
var vehicleColumns = []string{
	"run_id", "brand_model_key", "vehicle_id", "brand", "model", "year",
	"price", "power_kw", "fuel", "body_type", "transmission", "mileage", "image_path",
}

// dialect captures what differs between Postgres and SQLite.
type dialect struct {
	name        string
	placeholder func(n int) string
	schema      string
}

var postgresDialect = dialect{
	name:        "postgres",
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	schema: `
		CREATE TABLE IF NOT EXISTS vehicles (
			id              SERIAL PRIMARY KEY,
			run_id          VARCHAR(36)   NOT NULL,
			brand_model_key TEXT          UNIQUE NOT NULL,
			vehicle_id      INTEGER       NOT NULL,
			brand           TEXT          NOT NULL,
			model           TEXT          NOT NULL,
			year            INTEGER,
			price           NUMERIC(12,2),
			power_kw        INTEGER,
			fuel            TEXT          NOT NULL DEFAULT '',
			body_type       TEXT          NOT NULL DEFAULT '',
			transmission    TEXT          NOT NULL DEFAULT '',
			mileage         DOUBLE PRECISION,
			image_path      TEXT          NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_vehicles_brand ON vehicles(brand);
		CREATE INDEX IF NOT EXISTS idx_vehicles_price ON vehicles(price);
		CREATE INDEX IF NOT EXISTS idx_vehicles_run   ON vehicles(run_id);
	`,
}

var sqliteDialect = dialect{
	name:        "sqlite",
	placeholder: func(int) string { return "?" },
	schema: `
		CREATE TABLE IF NOT EXISTS vehicles (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id          TEXT     NOT NULL,
			brand_model_key TEXT     UNIQUE NOT NULL,
			vehicle_id      INTEGER  NOT NULL,
			brand           TEXT     NOT NULL,
			model           TEXT     NOT NULL,
			year            INTEGER,
			price           NUMERIC(12,2),
			power_kw        INTEGER,
			fuel            TEXT     NOT NULL DEFAULT '',
			body_type       TEXT     NOT NULL DEFAULT '',
			transmission    TEXT     NOT NULL DEFAULT '',
			mileage         REAL,
			image_path      TEXT     NOT NULL DEFAULT '',
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_vehicles_brand ON vehicles(brand);
		CREATE INDEX IF NOT EXISTS idx_vehicles_price ON vehicles(price);
		CREATE INDEX IF NOT EXISTS idx_vehicles_run   ON vehicles(run_id);
	`,
}

// sqlStore implements VehicleWriter on database/sql for either dialect.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

func (s *sqlStore) migrate() error {
	for _, stmt := range strings.Split(s.dialect.schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Clear deletes all stored vehicles.
func (s *sqlStore) Clear() error {
	if _, err := s.db.Exec("DELETE FROM vehicles"); err != nil {
		return fmt.Errorf("%s: clear: %w", s.dialect.name, err)
	}
	return nil
}

// Write upserts vehicles in batches inside one transaction.
func (s *sqlStore) Write(runID string, vehicles []*models.Vehicle) error {
	if len(vehicles) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%s: begin: %w", s.dialect.name, err)
	}
	for i := 0; i < len(vehicles); i += batchSize {
		end := i + batchSize
		if end > len(vehicles) {
			end = len(vehicles)
		}
		query, args := s.dialect.insertBatch(runID, dedupBatch(vehicles[i:end]))
		if _, err := tx.Exec(query, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%s: insert batch at %d: %w", s.dialect.name, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", s.dialect.name, err)
	}
	return nil
}

// dedupBatch keeps the last vehicle per key, since one upsert statement
// may not touch the same row twice.
func dedupBatch(batch []*models.Vehicle) []*models.Vehicle {
	idx := make(map[string]int, len(batch))
	out := make([]*models.Vehicle, 0, len(batch))
	for _, v := range batch {
		if i, ok := idx[v.Key()]; ok {
			out[i] = v
			continue
		}
		idx[v.Key()] = len(out)
		out = append(out, v)
	}
	return out
}

// insertBatch builds one multi-row upsert keyed on brand_model_key.
func (d dialect) insertBatch(runID string, batch []*models.Vehicle) (string, []any) {
	n := len(vehicleColumns)
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*n)

	for idx, v := range batch {
		ph := make([]string, n)
		for c := range ph {
			ph[c] = d.placeholder(idx*n + c + 1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
		valueArgs = append(valueArgs,
			runID, v.Key(), v.ID, v.Brand, v.Model, nullInt(v.Year),
			v.Price, nullInt(v.PowerKW), v.Fuel, v.BodyType, v.Transmission,
			sql.NullFloat64{Float64: v.Mileage, Valid: v.HasMileage}, v.ImagePath)
	}

	updates := make([]string, 0, n-1)
	for _, c := range vehicleColumns {
		if c != "brand_model_key" {
			updates = append(updates, c+" = EXCLUDED."+c)
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO vehicles (%s)
		VALUES %s
		ON CONFLICT (brand_model_key) DO UPDATE SET %s
	`, strings.Join(vehicleColumns, ", "), strings.Join(valueStrings, ","), strings.Join(updates, ", "))
	return query, valueArgs
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}

// FetchAll retrieves all stored vehicles in insertion order.
func (s *sqlStore) FetchAll() ([]*models.Vehicle, error) {
	rows, err := s.db.Query(`
		SELECT vehicle_id, brand, model, year, price, power_kw, fuel,
		       body_type, transmission, mileage, image_path
		FROM vehicles
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch all: %w", s.dialect.name, err)
	}
	defer rows.Close()

	var vehicles []*models.Vehicle
	for rows.Next() {
		v := &models.Vehicle{}
		var year, power sql.NullInt64
		var price decimal.NullDecimal
		var mileage sql.NullFloat64
		if err := rows.Scan(
			&v.ID, &v.Brand, &v.Model, &year, &price, &power, &v.Fuel,
			&v.BodyType, &v.Transmission, &mileage, &v.ImagePath,
		); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", s.dialect.name, err)
		}
		v.Year, v.PowerKW = int(year.Int64), int(power.Int64)
		v.Price = price
		v.Mileage, v.HasMileage = mileage.Float64, mileage.Valid
		v.Row = len(vehicles) + 1
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

// CountByRun returns how many stored rows the given run last touched.
func (s *sqlStore) CountByRun(runID string) (int, error) {
	var n int
	q := "SELECT COUNT(*) FROM vehicles WHERE run_id = " + s.dialect.placeholder(1)
	if err := s.db.QueryRow(q, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: count run: %w", s.dialect.name, err)
	}
	return n, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
