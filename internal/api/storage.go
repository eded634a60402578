package api

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"fieldday/internal/codes"
	"fieldday/internal/pg"
	"fieldday/internal/reference"
	"fieldday/internal/schema"

	"github.com/oklog/ulid/v2"
)

type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Tab — таблица записей внутри проекта. Диапазоны букв/чисел задают кодовое
// пространство генератора идентификаторов; Blocklist — имя справочника
// нежелательных кодов из каталога.
type Tab struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	Name          string    `json:"name"`
	SchemaVersion int64     `json:"schema_version"`
	MaxLetter     string    `json:"max_letter"`
	MaxNumber     int       `json:"max_number"`
	Blocklist     string    `json:"blocklist,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Scope — явный контекст операции (проект/таб/кто). Передаётся параметром,
// никакого process-wide синглтона.
type Scope struct {
	ProjectID string
	TabID     string
	Email     string
}

type Storage struct {
	mu         sync.RWMutex
	Projects   map[string]*Project
	Tabs       map[string]*Tab
	Columns    map[string][]schema.Column             // tabID -> колонки (включая системные)
	Entries    map[string]map[string]*schema.Entry    // tabID -> id -> запись
	Blocklists map[string]reference.BlocklistDirectory

	store    *pg.Store // nil = только in-memory
	notifier Notifier
	entropy  io.Reader
}

func NewStorage(blocklists map[string]reference.BlocklistDirectory) *Storage {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	if blocklists == nil {
		blocklists = make(map[string]reference.BlocklistDirectory)
	}
	return &Storage{
		Projects:   make(map[string]*Project),
		Tabs:       make(map[string]*Tab),
		Columns:    make(map[string][]schema.Column),
		Entries:    make(map[string]map[string]*schema.Entry),
		Blocklists: blocklists,
		notifier:   LogNotifier{},
		entropy:    ulid.Monotonic(src, 0),
	}
}

// WithStore подключает персистентное зеркало (Postgres).
func (s *Storage) WithStore(store *pg.Store) *Storage {
	s.store = store
	return s
}

// Bootstrap поднимает состояние из базы при старте. Зовётся до RunServer,
// поэтому без локов на чтение не претендует никто.
func (s *Storage) Bootstrap(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	projects, err := s.store.LoadProjects(ctx)
	if err != nil {
		return fmt.Errorf("load projects: %w", err)
	}
	for _, p := range projects {
		s.Projects[p.ID] = &Project{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt}
	}
	tabs, err := s.store.LoadTabs(ctx)
	if err != nil {
		return fmt.Errorf("load tabs: %w", err)
	}
	for _, t := range tabs {
		s.Tabs[t.ID] = &Tab{
			ID:            t.ID,
			ProjectID:     t.ProjectID,
			Name:          t.Name,
			SchemaVersion: t.SchemaVersion,
			MaxLetter:     t.MaxLetter,
			MaxNumber:     t.MaxNumber,
			Blocklist:     t.Blocklist,
			CreatedAt:     t.CreatedAt,
		}
		cols, err := s.store.LoadColumns(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("load columns for tab %s: %w", t.ID, err)
		}
		s.Columns[t.ID] = cols
		entries, err := s.store.LoadEntries(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("load entries for tab %s: %w", t.ID, err)
		}
		s.Entries[t.ID] = make(map[string]*schema.Entry, len(entries))
		for i := range entries {
			e := entries[i]
			s.Entries[t.ID][e.ID] = &e
		}
	}
	return nil
}

// WithNotifier подменяет sink уведомлений (в тестах — no-op/captor).
func (s *Storage) WithNotifier(n Notifier) *Storage {
	s.notifier = n
	return s
}

func (s *Storage) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Storage) notify(kind, message string) {
	if s.notifier != nil {
		s.notifier.Notify(kind, message)
	}
}

// systemColumns — служебные колонки нового таба. Entry ID — autoId-колонка,
// которую заполняет аллокатор; она входит в identifier domain неявно.
func (s *Storage) systemColumns() []schema.Column {
	return []schema.Column{
		{ID: s.newID(), Name: schema.ColumnActions, Type: schema.TypeText, Order: schema.OrderActions},
		{ID: s.newID(), Name: schema.ColumnDateTime, Type: schema.TypeDate, Order: schema.OrderDateTime},
		{ID: s.newID(), Name: schema.ColumnEntryID, Type: schema.TypeAutoID, Order: 0, IdentifierDomain: true},
	}
}

// CreateTab заводит таб с системными колонками.
func (s *Storage) CreateTab(projectID, name, maxLetter string, maxNumber int, blocklist string) (*Tab, error) {
	if maxLetter == "" {
		maxLetter = "C"
	}
	if maxNumber == 0 {
		maxNumber = 10
	}
	if len(maxLetter) != 1 || maxLetter[0] < codes.MinLetter || maxLetter[0] > codes.MaxLetter {
		return nil, fmt.Errorf("max letter %q out of range A..J", maxLetter)
	}
	if maxNumber < codes.MinNumber || maxNumber > codes.MaxNumber {
		return nil, fmt.Errorf("max number %d out of range 1..10", maxNumber)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.Projects[projectID]; !ok {
		return nil, fmt.Errorf("project %s not found", projectID)
	}
	if blocklist != "" {
		if _, ok := s.Blocklists[blocklist]; !ok {
			return nil, fmt.Errorf("blocklist %q not found", blocklist)
		}
	}

	tab := &Tab{
		ID:        s.newID(),
		ProjectID: projectID,
		Name:      name,
		MaxLetter: strings.ToUpper(maxLetter),
		MaxNumber: maxNumber,
		Blocklist: blocklist,
		CreatedAt: time.Now().UTC(),
	}
	s.Tabs[tab.ID] = tab
	s.Columns[tab.ID] = s.systemColumns()
	s.Entries[tab.ID] = make(map[string]*schema.Entry)
	return tab, nil
}

// ColumnsOf — копия колонок таба (снапшот, безопасный для чтения без лока).
func (s *Storage) ColumnsOf(tabID string) ([]schema.Column, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cols, ok := s.Columns[tabID]
	if !ok {
		return nil, false
	}
	out := make([]schema.Column, len(cols))
	for i, c := range cols {
		c.EntryOptions = append([]string(nil), c.EntryOptions...)
		out[i] = c
	}
	return out, true
}

// EntriesOf — снапшот живых записей таба.
func (s *Storage) EntriesOf(tabID string) []schema.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recMap := s.Entries[tabID]
	out := make([]schema.Entry, 0, len(recMap))
	for _, e := range recMap {
		if e.Deleted {
			continue
		}
		cp := *e
		cp.Data = copyData(e.Data)
		out = append(out, cp)
	}
	return out
}

// UsedIdentifiers возвращает занятые Entry ID среди записей, у которых ВСЕ
// значения identifier-domain полей строково совпадают с domainValues.
// Пустой domainValues = скоуп на весь таб; exceptID исключает текущую запись
// при обновлении. Сравнение строгое — см. DESIGN.md.
func (s *Storage) UsedIdentifiers(scope Scope, domainValues map[string]string, exceptID string) map[string]struct{} {
	used := make(map[string]struct{})

	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, e := range s.Entries[scope.TabID] {
		if e.Deleted || id == exceptID {
			continue
		}
		match := true
		for field, want := range domainValues {
			if stringify(e.Data[field]) != want {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		if id := stringify(e.Data[schema.ColumnEntryID]); id != "" {
			used[id] = struct{}{}
		}
	}
	return used
}

// BlockSetOf — множество заблокированных токенов для таба.
func (s *Storage) BlockSetOf(tab *Tab) map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dir, ok := s.Blocklists[tab.Blocklist]
	if !ok {
		return nil
	}
	return dir.Set()
}

// ApplySchemaBatch атомарно применяет мутации колонок и патчи строк одного
// коммита. Порядок жёсткий: CAS по версии схемы → персист (если включён) →
// правка памяти. Персист зовётся под write-lock: до подтверждения коммита
// читатели не должны видеть новое состояние, частичное применение запрещено.
func (s *Storage) ApplySchemaBatch(ctx context.Context, tabID string, expectedVersion int64, batch *schema.ColumnBatch, patches []schema.EntryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tab, ok := s.Tabs[tabID]
	if !ok {
		return fmt.Errorf("tab %s not found", tabID)
	}
	if tab.SchemaVersion != expectedVersion {
		return &VersionConflictError{Expected: tab.SchemaVersion, Got: expectedVersion}
	}

	if s.store != nil {
		if err := s.store.ApplySchemaBatch(ctx, tabID, tab.SchemaVersion+1, batch, patches); err != nil {
			return fmt.Errorf("persist schema batch: %w", err)
		}
	}

	// колонки: обновления и удаления
	deleted := make(map[string]struct{}, len(batch.Deletions))
	for _, id := range batch.Deletions {
		deleted[id] = struct{}{}
	}
	updates := make(map[string]schema.Column, len(batch.Updates))
	for _, p := range batch.Updates {
		updates[p.ID] = p.Column
	}
	old := s.Columns[tabID]
	next := make([]schema.Column, 0, len(old))
	for _, c := range old {
		if _, del := deleted[c.ID]; del {
			continue
		}
		if upd, ok := updates[c.ID]; ok {
			upd.ID = c.ID
			next = append(next, upd)
			continue
		}
		next = append(next, c)
	}
	s.Columns[tabID] = next

	// строки: полная замена Data по патчам
	now := time.Now().UTC()
	for _, p := range patches {
		rec, ok := s.Entries[tabID][p.EntryID]
		if !ok || rec.Deleted {
			continue
		}
		rec.Data = copyData(p.Data)
		rec.Version++
		rec.UpdatedAt = now
	}

	tab.SchemaVersion++
	return nil
}

// VersionConflictError — гонка двух одновременных коммитов схемы.
type VersionConflictError struct {
	Expected int64
	Got      int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("schema version conflict: expected %d, got %d", e.Expected, e.Got)
}

// SortedColumns — колонки таба по возрастанию order (системные первыми).
func SortedColumns(cols []schema.Column) []schema.Column {
	out := append([]schema.Column(nil), cols...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func tabRecord(t *Tab) pg.TabRecord {
	return pg.TabRecord{
		ID:            t.ID,
		ProjectID:     t.ProjectID,
		Name:          t.Name,
		SchemaVersion: t.SchemaVersion,
		MaxLetter:     t.MaxLetter,
		MaxNumber:     t.MaxNumber,
		Blocklist:     t.Blocklist,
		CreatedAt:     t.CreatedAt,
	}
}

func copyData(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
