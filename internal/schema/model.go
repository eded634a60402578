package schema

import "time"

// DataType — закрытый набор типов колонок. Диспетчеризация по типу везде через
// switch с полным перечислением: новый тип — это ошибка компиляции у потребителей,
// а не молча пропущенная ветка.
type DataType string

const (
	TypeNumber         DataType = "number"
	TypeWholeNumber    DataType = "wholeNumber"
	TypeDecimalNumber  DataType = "decimalNumber"
	TypeDate           DataType = "date"
	TypeText           DataType = "text"
	TypeMultipleChoice DataType = "multipleChoice"
	TypeAutoID         DataType = "autoId"
)

// ParseDataType разбирает строку из JSON в DataType.
func ParseDataType(s string) (DataType, bool) {
	switch DataType(s) {
	case TypeNumber, TypeWholeNumber, TypeDecimalNumber, TypeDate, TypeText, TypeMultipleChoice, TypeAutoID:
		return DataType(s), true
	default:
		return "", false
	}
}

func (t DataType) Valid() bool {
	_, ok := ParseDataType(string(t))
	return ok
}

// Системные колонки. Order < 0 зарезервирован под них; Entry ID — autoId-колонка,
// значение которой выдаёт аллокатор, а не пользователь.
const (
	ColumnActions  = "Actions"
	ColumnDateTime = "Date & Time"
	ColumnEntryID  = "Entry ID"

	OrderActions  = -2
	OrderDateTime = -1
)

// Column — определение колонки таба.
type Column struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Type             DataType `json:"dataType"`
	Order            int      `json:"order"`
	Required         bool     `json:"requiredField"`
	IdentifierDomain bool     `json:"identifierDomain"`
	EntryOptions     []string `json:"entryOptions,omitempty"` // только для multipleChoice
}

// Reserved: системные колонки и autoId-идентификатор никогда не попадают
// в редактируемые наборы мутаций.
func (c Column) Reserved() bool {
	if c.Order < 0 {
		return true
	}
	return c.Type == TypeAutoID && c.Name == ColumnEntryID
}

// Entry — строка таба. Data ключуется ИМЕНЕМ колонки (не id); после rename/delete
// колонок пропагатор переписывает ключи, чтобы инвариант сохранялся.
type Entry struct {
	ID        string         `json:"id"`
	Version   int64          `json:"version"`
	EntryDate time.Time      `json:"entryDate"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Deleted   bool           `json:"-"`
	Data      map[string]any `json:"data"`
}

// EntryPatch — полная замена Data одной записи.
type EntryPatch struct {
	EntryID string         `json:"entryId"`
	Data    map[string]any `json:"data"`
}

// ColumnPatch — новое определение колонки целиком.
type ColumnPatch struct {
	ID     string `json:"id"`
	Column Column `json:"column"`
}

// ColumnBatch — результат успешного ValidateAndCommit. Updates и Deletions
// дизъюнктны; применять их надо одним атомарным батчем вместе с патчами строк.
type ColumnBatch struct {
	Updates      []ColumnPatch     `json:"updates"`
	Deletions    []string          `json:"deletions"`    // id удаляемых колонок
	Renames      map[string]string `json:"renames"`      // старое имя -> новое
	DeletedNames []string          `json:"deletedNames"` // имена удаляемых (для пропагации)
}

// Empty — нет ни одного изменения.
func (b *ColumnBatch) Empty() bool {
	return len(b.Updates) == 0 && len(b.Deletions) == 0
}
