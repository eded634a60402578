package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// DDL фиксированное: структура хранилища у нас не динамическая, динамика
// живёт в jsonb-колонках (data записей, entry_options колонок).
func ddl() map[string]string {
	return map[string]string{
		"000_schema": `create schema if not exists fieldday;`,
		"100_projects": `create table if not exists fieldday.projects (
  "id" text primary key,
  "name" text not null,
  "created_at" timestamp with time zone not null
);`,
		"110_tabs": `create table if not exists fieldday.tabs (
  "id" text primary key,
  "project_id" text not null references fieldday.projects(id),
  "name" text not null,
  "schema_version" bigint not null default 0,
  "max_letter" text not null,
  "max_number" integer not null,
  "blocklist" text not null default '',
  "created_at" timestamp with time zone not null
);`,
		"120_columns": `create table if not exists fieldday.columns (
  "id" text primary key,
  "tab_id" text not null references fieldday.tabs(id),
  "name" text not null,
  "data_type" text not null,
  "ord" integer not null,
  "required" boolean not null default false,
  "identifier_domain" boolean not null default false,
  "entry_options" jsonb
);
-- deferrable: батч правок может переименовывать колонки "крест-накрест" в одной транзакции
alter table fieldday.columns add constraint columns_tab_name_uq unique ("tab_id", "name") deferrable initially deferred;`,
		"130_entries": `create table if not exists fieldday.entries (
  "id" text primary key,
  "tab_id" text not null references fieldday.tabs(id),
  "version" bigint not null,
  "entry_date" timestamp with time zone not null,
  "updated_at" timestamp with time zone not null,
  "deleted" boolean not null default false,
  "data" jsonb not null
);
create index if not exists entries_tab_idx on fieldday.entries("tab_id");`,
	}
}

// ApplyDDL выполняет map[key]sql в стабильном порядке ключей.
// Ожидается idempotent DDL (create ... if not exists).
func ApplyDDL(db *sql.DB, ddl map[string]string) error {
	keys := make([]string, 0, len(ddl))
	for k := range ddl {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	for _, k := range keys {
		sqlText := strings.TrimSpace(ddl[k])
		if sqlText == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, sqlText); err != nil {
			// pgx/stdlib возвращает *pgconn.PgError — игнорируем duplicate_object (42710)
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "42710" {
				log.Printf("DDL skipped (already exists): %s (%s)", pgErr.ConstraintName, strings.TrimSpace(pgErr.Message))
				continue
			}
			// подстраховка по фразе (на случай других объектов)
			e := strings.ToLower(err.Error())
			if strings.Contains(e, "already exists") || strings.Contains(e, "duplicate") {
				log.Printf("DDL skipped (already exists): %v", err)
				continue
			}
			return fmt.Errorf("DDL apply failed: %w", err)
		}
	}
	return nil
}

// EnsureSchema накатывает базовый DDL.
func EnsureSchema(db *sql.DB) error {
	return ApplyDDL(db, ddl())
}
