package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"fieldday/internal/schema"
)

// Store — персистентное зеркало in-memory хранилища. Ключевое требование:
// коммит правок схемы и патчей строк — ОДНА транзакция; «колонку удалили,
// строки не переписали» существовать не должно.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// TabRecord — строка таба для персиста (без завязки на пакет api).
type TabRecord struct {
	ID            string
	ProjectID     string
	Name          string
	SchemaVersion int64
	MaxLetter     string
	MaxNumber     int
	Blocklist     string
	CreatedAt     time.Time
}

func (s *Store) SaveProject(ctx context.Context, id, name string, createdAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		insert into fieldday.projects (id, name, created_at) values ($1, $2, $3)
		on conflict (id) do update set name = excluded.name`,
		id, name, createdAt)
	return err
}

func (s *Store) SaveTab(ctx context.Context, t TabRecord) error {
	_, err := s.db.ExecContext(ctx, `
		insert into fieldday.tabs (id, project_id, name, schema_version, max_letter, max_number, blocklist, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		on conflict (id) do update set
			name = excluded.name,
			schema_version = excluded.schema_version,
			max_letter = excluded.max_letter,
			max_number = excluded.max_number,
			blocklist = excluded.blocklist`,
		t.ID, t.ProjectID, t.Name, t.SchemaVersion, t.MaxLetter, t.MaxNumber, t.Blocklist, t.CreatedAt)
	return err
}

func (s *Store) SaveColumn(ctx context.Context, tabID string, col schema.Column) error {
	opts, err := json.Marshal(col.EntryOptions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into fieldday.columns (id, tab_id, name, data_type, ord, required, identifier_domain, entry_options)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		on conflict (id) do update set
			name = excluded.name,
			data_type = excluded.data_type,
			ord = excluded.ord,
			required = excluded.required,
			identifier_domain = excluded.identifier_domain,
			entry_options = excluded.entry_options`,
		col.ID, tabID, col.Name, string(col.Type), col.Order, col.Required, col.IdentifierDomain, opts)
	return err
}

func (s *Store) UpsertEntry(ctx context.Context, tabID string, e *schema.Entry) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into fieldday.entries (id, tab_id, version, entry_date, updated_at, deleted, data)
		values ($1, $2, $3, $4, $5, $6, $7)
		on conflict (id) do update set
			version = excluded.version,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted,
			data = excluded.data`,
		e.ID, tabID, e.Version, e.EntryDate, e.UpdatedAt, e.Deleted, data)
	return err
}

func (s *Store) SetEntryDeleted(ctx context.Context, tabID, id string, deleted bool, version int64) error {
	res, err := s.db.ExecContext(ctx, `
		update fieldday.entries set deleted = $1, version = $2, updated_at = now()
		where id = $3 and tab_id = $4`,
		deleted, version, id, tabID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("entry %s not found", id)
	}
	return nil
}

// ApplySchemaBatch применяет мутации колонок и патчи строк одного коммита
// схемы в одной транзакции и проставляет новую версию схемы таба.
func (s *Store) ApplySchemaBatch(ctx context.Context, tabID string, newVersion int64, batch *schema.ColumnBatch, patches []schema.EntryPatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range batch.Updates {
		opts, err := json.Marshal(p.Column.EntryOptions)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			update fieldday.columns set
				name = $1, data_type = $2, ord = $3, required = $4,
				identifier_domain = $5, entry_options = $6
			where id = $7 and tab_id = $8`,
			p.Column.Name, string(p.Column.Type), p.Column.Order, p.Column.Required,
			p.Column.IdentifierDomain, opts, p.ID, tabID); err != nil {
			return err
		}
	}
	for _, id := range batch.Deletions {
		if _, err := tx.ExecContext(ctx,
			`delete from fieldday.columns where id = $1 and tab_id = $2`, id, tabID); err != nil {
			return err
		}
	}
	for _, p := range patches {
		data, err := json.Marshal(p.Data)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			update fieldday.entries set data = $1, version = version + 1, updated_at = now()
			where id = $2 and tab_id = $3`,
			data, p.EntryID, tabID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`update fieldday.tabs set schema_version = $1 where id = $2`, newVersion, tabID); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadColumns — колонки таба из базы (для бутстрапа/сверки).
func (s *Store) LoadColumns(ctx context.Context, tabID string) ([]schema.Column, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, data_type, ord, required, identifier_domain, coalesce(entry_options, 'null'::jsonb)
		from fieldday.columns where tab_id = $1 order by ord`, tabID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schema.Column
	for rows.Next() {
		var col schema.Column
		var typ string
		var opts []byte
		if err := rows.Scan(&col.ID, &col.Name, &typ, &col.Order, &col.Required, &col.IdentifierDomain, &opts); err != nil {
			return nil, err
		}
		col.Type = schema.DataType(typ)
		if err := json.Unmarshal(opts, &col.EntryOptions); err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	return out, rows.Err()
}

// LoadEntries — все записи таба, включая soft-deleted.
func (s *Store) LoadEntries(ctx context.Context, tabID string) ([]schema.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, version, entry_date, updated_at, deleted, data
		from fieldday.entries where tab_id = $1`, tabID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schema.Entry
	for rows.Next() {
		var e schema.Entry
		var data []byte
		if err := rows.Scan(&e.ID, &e.Version, &e.EntryDate, &e.UpdatedAt, &e.Deleted, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &e.Data); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ProjectRecord — строка проекта для бутстрапа.
type ProjectRecord struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

func (s *Store) LoadProjects(ctx context.Context) ([]ProjectRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, created_at from fieldday.projects order by created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProjectRecord
	for rows.Next() {
		var p ProjectRecord
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) LoadTabs(ctx context.Context) ([]TabRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, project_id, name, schema_version, max_letter, max_number, coalesce(blocklist, ''), created_at
		from fieldday.tabs order by created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TabRecord
	for rows.Next() {
		var t TabRecord
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &t.SchemaVersion, &t.MaxLetter, &t.MaxNumber, &t.Blocklist, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteProject удаляет пустой проект. Проект с табами не удаляется —
// FK на tabs.project_id вернёт ошибку, вызывающий код обязан проверить сам.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `delete from fieldday.projects where id = $1`, id)
	return err
}

// DeleteTab удаляет таб вместе с колонками и записями одной транзакцией.
func (s *Store) DeleteTab(ctx context.Context, tabID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `delete from fieldday.entries where tab_id = $1`, tabID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from fieldday.columns where tab_id = $1`, tabID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from fieldday.tabs where id = $1`, tabID); err != nil {
		return err
	}
	return tx.Commit()
}
