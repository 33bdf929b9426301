// Copyright 2024 The wsgate-go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package directory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Postgres is the database-backed directory policy. It answers lookups from
// a device table, for deployments where the platform's device registry is a
// directly reachable PostgreSQL database.
type Postgres struct {
	db    *sql.DB
	query string
}

// OpenPostgres connects to the given DSN and prepares lookups against the
// named table. The table needs a text device_id column; rows present in the
// table are considered authorized.
func OpenPostgres(dsn, table string) (*Postgres, error) {
	if table == "" {
		table = "devices"
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open device directory database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach device directory database: %w", err)
	}

	return &Postgres{
		db:    db,
		query: fmt.Sprintf("SELECT 1 FROM %s WHERE device_id = $1", table),
	}, nil
}

// Authorize reports whether the device identity exists in the device table.
func (p *Postgres) Authorize(ctx context.Context, deviceID string) (bool, error) {
	if deviceID == "" {
		return false, ErrMissingDeviceID
	}
	var one int
	err := p.db.QueryRowContext(ctx, p.query, deviceID).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("device directory query failed: %w", err)
	}
	return true, nil
}

// Close releases the database connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}
