package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"fieldday/internal/reference"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

type nopNotifier struct{}

func (nopNotifier) Notify(kind, message string) {}

type env struct {
	t *testing.T
	s *Storage
	r *gin.Engine
}

func newEnv(t *testing.T) *env {
	catalog := map[string]reference.BlocklistDirectory{
		"unwanted": {Name: "unwanted", Codes: []reference.BlockedCode{
			{Code: "A2", Reason: "test"},
		}},
	}
	s := NewStorage(catalog).WithNotifier(nopNotifier{})
	return &env{t: t, s: s, r: NewRouter(s)}
}

func (e *env) do(method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (e *env) createProject(name string) string {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/projects", gin.H{"name": name}, nil)
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return decode(e.t, w)["id"].(string)
}

func (e *env) createTab(projectID string, body gin.H) map[string]any {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/projects/"+projectID+"/tabs", body, nil)
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return decode(e.t, w)
}

func (e *env) addColumn(tabID string, body gin.H) map[string]any {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/tabs/"+tabID+"/columns", body, nil)
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return decode(e.t, w)
}

// типовой таб: Site (text, required, identifier domain) + Year (wholeNumber)
func (e *env) fixtureTab(tabBody gin.H) (tabID string) {
	e.t.Helper()
	pid := e.createProject("Woodson Park")
	tab := e.createTab(pid, tabBody)
	tabID = tab["id"].(string)
	e.addColumn(tabID, gin.H{"name": "Site", "dataType": "text", "requiredField": true, "identifierDomain": true})
	e.addColumn(tabID, gin.H{"name": "Year", "dataType": "wholeNumber"})
	return tabID
}

func firstErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	errs, ok := decode(t, w)["errors"].([]any)
	require.True(t, ok, w.Body.String())
	require.NotEmpty(t, errs)
	return errs[0].(map[string]any)["code"].(string)
}

func TestTabStartsWithSystemColumns(t *testing.T) {
	e := newEnv(t)
	pid := e.createProject("Survey 2026")
	tab := e.createTab(pid, gin.H{"name": "Plots"})

	w := e.do(http.MethodGet, "/api/tabs/"+tab["id"].(string)+"/columns", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 0, body["schema_version"])

	cols := body["columns"].([]any)
	require.Len(t, cols, 3)
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.(map[string]any)["name"].(string)
	}
	assert.Equal(t, []string{"Actions", "Date & Time", "Entry ID"}, names)
}

func TestProjectAndTabDeletion(t *testing.T) {
	e := newEnv(t)
	pid := e.createProject("p")
	tab := e.createTab(pid, gin.H{"name": "t"})
	tabID := tab["id"].(string)

	// проект с табами не удаляется
	w := e.do(http.MethodDelete, "/api/projects/"+pid, nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(http.MethodDelete, "/api/tabs/"+tabID, nil, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(http.MethodGet, "/api/tabs/"+tabID, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(http.MethodGet, "/api/tabs/"+tabID+"/entries", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodDelete, "/api/projects/"+pid, nil, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(http.MethodGet, "/api/projects/"+pid, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateTabValidation(t *testing.T) {
	e := newEnv(t)
	pid := e.createProject("p")

	w := e.do(http.MethodPost, "/api/projects/"+pid+"/tabs", gin.H{"name": "t", "max_letter": "Z"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/projects/"+pid+"/tabs", gin.H{"name": "t", "max_number": 42}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/projects/"+pid+"/tabs", gin.H{"name": "t", "blocklist": "missing"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEntryLifecycle(t *testing.T) {
	e := newEnv(t)
	tabID := e.fixtureTab(gin.H{"name": "Plots"})
	base := "/api/tabs/" + tabID + "/entries"

	// required нарушено
	w := e.do(http.MethodPost, base, gin.H{"Year": 2026}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrRequired, firstErrorCode(t, w))

	// неизвестный ключ
	w = e.do(http.MethodPost, base, gin.H{"Site": "North", "Elevation": 12}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrUnknownField, firstErrorCode(t, w))

	// нормальное создание
	w = e.do(http.MethodPost, base, gin.H{"Site": "North", "Year": 2026, "Entry ID": "A1"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	id := created["id"].(string)
	assert.EqualValues(t, 1, created["version"])
	assert.EqualValues(t, 2026, created["Year"])

	// дубль Entry ID в том же скоупе (Site совпадает)
	w = e.do(http.MethodPost, base, gin.H{"Site": "North", "Entry ID": "A1"}, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ErrIdentifierTaken, firstErrorCode(t, w))

	// тот же Entry ID, но другой Site — другой скоуп, конфликта нет
	w = e.do(http.MethodPost, base, gin.H{"Site": "South", "Entry ID": "A1"}, nil)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// PATCH с If-Match
	w = e.do(http.MethodPatch, base+"/"+id, gin.H{"Year": 2027}, map[string]string{"If-Match": `"1"`})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 2, decode(t, w)["version"])

	// устаревшая версия
	w = e.do(http.MethodPatch, base+"/"+id, gin.H{"Year": 2028}, map[string]string{"If-Match": `"1"`})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ErrVersionConflict, firstErrorCode(t, w))

	// версия в теле вместо заголовка
	w = e.do(http.MethodPut, base+"/"+id, gin.H{"Site": "North", "Year": 2030, "Entry ID": "A1", "version": 2}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 3, decode(t, w)["version"])

	// soft delete → не виден → restore возвращает
	w = e.do(http.MethodDelete, base+"/"+id, nil, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(http.MethodGet, base+"/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodGet, base+"?deleted=true", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-Total-Count"))

	w = e.do(http.MethodPost, base+"/"+id+"/restore", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(http.MethodGet, base+"/"+id, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEntryTypeCoercion(t *testing.T) {
	e := newEnv(t)
	tabID := e.fixtureTab(gin.H{"name": "Plots"})
	e.addColumn(tabID, gin.H{"name": "Visited", "dataType": "date"})
	e.addColumn(tabID, gin.H{"name": "Habitat", "dataType": "multipleChoice", "entryOptions": []string{"Forest", "Desert"}})
	base := "/api/tabs/" + tabID + "/entries"

	w := e.do(http.MethodPost, base, gin.H{"Site": "N", "Year": 2026.5}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrTypeMismatch, firstErrorCode(t, w))

	w = e.do(http.MethodPost, base, gin.H{"Site": "N", "Visited": "26-08-2026"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrTypeMismatch, firstErrorCode(t, w))

	w = e.do(http.MethodPost, base, gin.H{"Site": "N", "Habitat": "Tundra"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrOptionInvalid, firstErrorCode(t, w))

	// "Select" — это невыбранное значение, не ошибка опции
	w = e.do(http.MethodPost, base, gin.H{"Site": "N", "Habitat": "Select", "Visited": "2026-08-26"}, nil)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestSaveColumnsBatch(t *testing.T) {
	e := newEnv(t)
	tabID := e.fixtureTab(gin.H{"name": "Plots"})
	base := "/api/tabs/" + tabID

	w := e.do(http.MethodGet, base+"/columns", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	meta := decode(t, w)
	version := meta["schema_version"].(float64)

	colID := make(map[string]string)
	for _, c := range meta["columns"].([]any) {
		col := c.(map[string]any)
		colID[col["name"].(string)] = col["id"].(string)
	}

	w = e.do(http.MethodPost, base+"/entries", gin.H{"Site": "North", "Year": 2025, "Entry ID": "A1"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	entryID := decode(t, w)["id"].(string)
	w = e.do(http.MethodPost, base+"/entries", gin.H{"Site": "South", "Year": 2026, "Entry ID": "A1"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	// переименование + удаление одним коммитом
	w = e.do(http.MethodPut, base+"/columns", gin.H{
		"schema_version": version,
		"changes": []gin.H{
			{"id": colID["Site"], "name": "Location"},
			{"id": colID["Year"], "delete": true},
		},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	assert.EqualValues(t, version+1, out["schema_version"])
	assert.EqualValues(t, 2, out["patched_rows"])

	// строки переписаны одним проходом: ключ переименован, удалённый исчез
	w = e.do(http.MethodGet, base+"/entries/"+entryID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	row := decode(t, w)
	assert.Equal(t, "North", row["Location"])
	assert.NotContains(t, row, "Site")
	assert.NotContains(t, row, "Year")
	assert.EqualValues(t, 2, row["version"]) // патч строки инкрементит версию

	// устаревшая версия схемы (id колонки при переименовании не меняется)
	w = e.do(http.MethodPut, base+"/columns", gin.H{
		"schema_version": version,
		"changes":        []gin.H{{"id": colID["Site"], "name": "Area"}},
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSaveColumnsRejectsBadBatches(t *testing.T) {
	e := newEnv(t)
	tabID := e.fixtureTab(gin.H{"name": "Plots"})
	base := "/api/tabs/" + tabID + "/columns"

	w := e.do(http.MethodGet, base, nil, nil)
	meta := decode(t, w)
	version := meta["schema_version"].(float64)
	colID := make(map[string]string)
	for _, c := range meta["columns"].([]any) {
		col := c.(map[string]any)
		colID[col["name"].(string)] = col["id"].(string)
	}

	// дубль имени блокирует ВЕСЬ батч
	w = e.do(http.MethodPut, base, gin.H{
		"schema_version": version,
		"changes":        []gin.H{{"id": colID["Site"], "name": "Year"}},
	}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "duplicate_name", firstErrorCode(t, w))

	// системные колонки не правятся
	w = e.do(http.MethodPut, base, gin.H{
		"schema_version": version,
		"changes":        []gin.H{{"id": colID["Entry ID"], "name": "Code"}},
	}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "reserved_column", firstErrorCode(t, w))

	// после отклонённых батчей ничего не изменилось
	w = e.do(http.MethodGet, base, nil, nil)
	assert.EqualValues(t, version, decode(t, w)["schema_version"])
}

func TestAddColumnRules(t *testing.T) {
	e := newEnv(t)
	pid := e.createProject("p")
	tab := e.createTab(pid, gin.H{"name": "t"})
	tabID := tab["id"].(string)

	col := e.addColumn(tabID, gin.H{"name": "Site", "dataType": "text"})
	assert.EqualValues(t, 1, col["order"])

	w := e.do(http.MethodPost, "/api/tabs/"+tabID+"/columns", gin.H{"name": "site", "dataType": "text"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "duplicate_name", firstErrorCode(t, w))

	w = e.do(http.MethodPost, "/api/tabs/"+tabID+"/columns", gin.H{"name": "Habitat", "dataType": "multipleChoice"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_options", firstErrorCode(t, w))

	w = e.do(http.MethodPost, "/api/tabs/"+tabID+"/columns", gin.H{"name": "X", "dataType": "boolean"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_type", firstErrorCode(t, w))
}

func TestGenerateIdentifier(t *testing.T) {
	e := newEnv(t)
	pid := e.createProject("p")
	tab := e.createTab(pid, gin.H{"name": "t", "max_letter": "B", "max_number": 2, "blocklist": "unwanted"})
	tabID := tab["id"].(string)
	e.addColumn(tabID, gin.H{"name": "Site", "dataType": "text", "requiredField": true, "identifierDomain": true})
	gen := "/api/tabs/" + tabID + "/identifier"

	// доменное поле пустое → подсказка вместо кода
	w := e.do(http.MethodPost, gen, gin.H{"fieldValues": gin.H{}}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, false, out["complete"])
	assert.Equal(t, "Fill out to generate an ID: Site", out["identifier"])

	// первый свободный код
	w = e.do(http.MethodPost, gen, gin.H{"fieldValues": gin.H{"Site": "North"}}, nil)
	out = decode(t, w)
	assert.Equal(t, "A1", out["identifier"])

	// повторный вызов без записи — тот же ответ (детерминизм)
	w = e.do(http.MethodPost, gen, gin.H{"fieldValues": gin.H{"Site": "North"}}, nil)
	assert.Equal(t, "A1", decode(t, w)["identifier"])

	// заняли A1 — следующий по порядку A1-B1 (A2 в блок-листе)
	w = e.do(http.MethodPost, "/api/tabs/"+tabID+"/entries",
		gin.H{"Site": "North", "Entry ID": "A1"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = e.do(http.MethodPost, gen, gin.H{"fieldValues": gin.H{"Site": "North"}}, nil)
	assert.Equal(t, "A1-B1", decode(t, w)["identifier"])

	// желаемый свободный код принимается как есть
	w = e.do(http.MethodPost, gen, gin.H{"desired": "B2", "fieldValues": gin.H{"Site": "North"}}, nil)
	assert.Equal(t, "B2", decode(t, w)["identifier"])

	// другой скоуп — снова A1
	w = e.do(http.MethodPost, gen, gin.H{"fieldValues": gin.H{"Site": "South"}}, nil)
	assert.Equal(t, "A1", decode(t, w)["identifier"])
}

func TestGenerateIdentifierExhaustion(t *testing.T) {
	e := newEnv(t)
	pid := e.createProject("p")
	tab := e.createTab(pid, gin.H{"name": "t", "max_letter": "A", "max_number": 1})
	tabID := tab["id"].(string)
	e.addColumn(tabID, gin.H{"name": "Site", "dataType": "text", "identifierDomain": true})

	w := e.do(http.MethodPost, "/api/tabs/"+tabID+"/entries",
		gin.H{"Site": "N", "Entry ID": "A1"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodPost, "/api/tabs/"+tabID+"/identifier",
		gin.H{"fieldValues": gin.H{"Site": "N"}}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "No codes available", out["identifier"])
	assert.Equal(t, true, out["exhausted"])
}

func TestGenerateIdentifierCapacity(t *testing.T) {
	e := newEnv(t)
	pid := e.createProject("p")
	tab := e.createTab(pid, gin.H{"name": "t", "max_letter": "J", "max_number": 10})
	tabID := tab["id"].(string)

	w := e.do(http.MethodPost, "/api/tabs/"+tabID+"/identifier", gin.H{"fieldValues": gin.H{}}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, ErrCapacityExceeded, firstErrorCode(t, w))
}

func TestAdminBlocklists(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/api/blocklists", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.EqualValues(t, 1, out["total"])
}
