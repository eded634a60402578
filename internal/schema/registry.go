package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Change — застейдженная правка одной колонки. Nil-поля не трогаем.
type Change struct {
	Name             *string
	Type             *DataType
	Order            *int
	Required         *bool
	IdentifierDomain *bool
	EntryOptions     *[]string
	Delete           bool
}

// Registry копит правки колонок одного таба поверх снапшота и валидирует их
// разом при коммите. Propose всегда успешен — свободное редактирование
// посреди сессии не должно спотыкаться о недособранное состояние; все проверки
// происходят в ValidateAndCommit.
type Registry struct {
	snapshot []Column
	staged   map[string]*Change
}

// NewRegistry снимает копию колонок (включая слайсы опций) — снапшот
// до коммита, от которого считаются и мутации, и патчи строк.
func NewRegistry(cols []Column) *Registry {
	snap := make([]Column, len(cols))
	for i, c := range cols {
		c.EntryOptions = append([]string(nil), c.EntryOptions...)
		snap[i] = c
	}
	return &Registry{
		snapshot: snap,
		staged:   make(map[string]*Change),
	}
}

// Snapshot — копия пред-коммитного состояния колонок.
func (r *Registry) Snapshot() []Column {
	out := make([]Column, len(r.snapshot))
	for i, c := range r.snapshot {
		c.EntryOptions = append([]string(nil), c.EntryOptions...)
		out[i] = c
	}
	return out
}

// Propose стейджит правку. Повторный Propose той же колонки домердживает поля.
func (r *Registry) Propose(columnID string, ch Change) {
	cur, ok := r.staged[columnID]
	if !ok {
		cur = &Change{}
		r.staged[columnID] = cur
	}
	if ch.Name != nil {
		cur.Name = ch.Name
	}
	if ch.Type != nil {
		cur.Type = ch.Type
	}
	if ch.Order != nil {
		cur.Order = ch.Order
	}
	if ch.Required != nil {
		cur.Required = ch.Required
	}
	if ch.IdentifierDomain != nil {
		cur.IdentifierDomain = ch.IdentifierDomain
	}
	if ch.EntryOptions != nil {
		cur.EntryOptions = ch.EntryOptions
	}
	if ch.Delete {
		cur.Delete = true
	}
}

// ValidateAndCommit проверяет итоговое состояние и собирает батч мутаций.
// Любая ошибка блокирует коммит целиком — ноль мутаций, стейдж не сбрасывается.
func (r *Registry) ValidateAndCommit() (*ColumnBatch, []FieldError) {
	var errs []FieldError

	byID := make(map[string]*Column, len(r.snapshot))
	for i := range r.snapshot {
		byID[r.snapshot[i].ID] = &r.snapshot[i]
	}

	for id := range r.staged {
		col, ok := byID[id]
		if !ok {
			errs = append(errs, ferr(ErrUnknownColumn, id, "Column not found"))
			continue
		}
		if col.Reserved() {
			errs = append(errs, ferr(ErrReservedColumn, col.Name, "System column cannot be edited"))
		}
	}

	// итоговое состояние: снапшот + стейдж; удаляемые выбывают из всех проверок
	type finalCol struct {
		orig  Column
		next  Column
		del   bool
		stage bool
	}
	finals := make([]finalCol, 0, len(r.snapshot))
	for _, orig := range r.snapshot {
		fc := finalCol{orig: orig, next: orig}
		fc.next.EntryOptions = append([]string(nil), orig.EntryOptions...)
		if ch, ok := r.staged[orig.ID]; ok && !orig.Reserved() {
			fc.stage = true
			if ch.Delete {
				fc.del = true
			}
			if ch.Name != nil {
				fc.next.Name = strings.TrimSpace(*ch.Name)
			}
			if ch.Type != nil {
				fc.next.Type = *ch.Type
			}
			if ch.Order != nil {
				fc.next.Order = *ch.Order
			}
			if ch.Required != nil {
				fc.next.Required = *ch.Required
			}
			if ch.IdentifierDomain != nil {
				fc.next.IdentifierDomain = *ch.IdentifierDomain
			}
			if ch.EntryOptions != nil {
				fc.next.EntryOptions = append([]string(nil), (*ch.EntryOptions)...)
			}
		}
		finals = append(finals, fc)
	}

	seenName := make(map[string]string) // lower(name) -> имя первой колонки
	seenOrder := make(map[int]string)   // order -> имя колонки
	for _, fc := range finals {
		if fc.del || fc.orig.Reserved() {
			continue
		}
		col := fc.next

		if col.Name == "" {
			errs = append(errs, ferr(ErrEmptyName, fc.orig.Name, "Column name cannot be empty"))
		} else {
			low := strings.ToLower(col.Name)
			if prev, dup := seenName[low]; dup {
				errs = append(errs, ferr(ErrDuplicateName, col.Name,
					fmt.Sprintf("Column name %q duplicates %q", col.Name, prev)))
			} else {
				seenName[low] = col.Name
			}
		}

		if prev, dup := seenOrder[col.Order]; dup {
			errs = append(errs, ferr(ErrDuplicateOrder, col.Name,
				fmt.Sprintf("Order %d is already taken by %q", col.Order, prev)))
		} else {
			seenOrder[col.Order] = col.Name
		}

		if !col.Type.Valid() {
			errs = append(errs, ferr(ErrInvalidType, col.Name,
				fmt.Sprintf("Unknown data type %q", string(col.Type))))
			continue
		}

		switch col.Type {
		case TypeMultipleChoice:
			if len(col.EntryOptions) == 0 {
				errs = append(errs, ferr(ErrInvalidOptions, col.Name, "Dropdown needs at least one option"))
			}
			seen := make(map[string]struct{}, len(col.EntryOptions))
			for _, opt := range col.EntryOptions {
				if _, dup := seen[opt]; dup {
					errs = append(errs, ferr(ErrInvalidOptions, col.Name,
						fmt.Sprintf("Duplicate option %q", opt)))
					break
				}
				seen[opt] = struct{}{}
			}
		case TypeNumber, TypeWholeNumber, TypeDecimalNumber, TypeDate, TypeText, TypeAutoID:
			// опции есть только у dropdown'а
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	// нормализация порядка: выжившие редактируемые колонки получают 1..N
	// с сохранением взаимного порядка (дыры после удалений схлопываются)
	survivors := make([]*finalCol, 0, len(finals))
	for i := range finals {
		if finals[i].del || finals[i].orig.Reserved() {
			continue
		}
		survivors = append(survivors, &finals[i])
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].next.Order < survivors[j].next.Order
	})
	for i, fc := range survivors {
		fc.next.Order = i + 1
		// опции живут только у dropdown'а
		if fc.next.Type != TypeMultipleChoice {
			fc.next.EntryOptions = nil
		}
	}

	batch := &ColumnBatch{Renames: make(map[string]string)}
	for _, fc := range finals {
		if fc.orig.Reserved() {
			continue
		}
		if fc.del {
			batch.Deletions = append(batch.Deletions, fc.orig.ID)
			batch.DeletedNames = append(batch.DeletedNames, fc.orig.Name)
			continue
		}
		if !columnEqual(fc.orig, fc.next) {
			batch.Updates = append(batch.Updates, ColumnPatch{ID: fc.orig.ID, Column: fc.next})
		}
		if fc.next.Name != fc.orig.Name {
			batch.Renames[fc.orig.Name] = fc.next.Name
		}
	}
	return batch, nil
}

func columnEqual(a, b Column) bool {
	if a.Name != b.Name || a.Type != b.Type || a.Order != b.Order ||
		a.Required != b.Required || a.IdentifierDomain != b.IdentifierDomain {
		return false
	}
	if len(a.EntryOptions) != len(b.EntryOptions) {
		return false
	}
	for i := range a.EntryOptions {
		if a.EntryOptions[i] != b.EntryOptions[i] {
			return false
		}
	}
	return true
}
