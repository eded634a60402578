package schema

// Пропагация правок схемы в данные строк. Все патчи одного коммита считаются
// от одного пред-коммитного снапшота колонок; переименования применяются одним
// общим маппинг-проходом по строке, а не цепочкой — rename A→B, B→C не должен
// каскадно прокатить значение A до C.

// PropagateBatch переписывает Data строк под новые имена колонок и убирает
// ключи удалённых. Строки без затронутых ключей патч не получают.
func PropagateBatch(renames map[string]string, deletedNames []string, rows []Entry) []EntryPatch {
	if len(renames) == 0 && len(deletedNames) == 0 {
		return nil
	}
	deleted := make(map[string]struct{}, len(deletedNames))
	for _, name := range deletedNames {
		deleted[name] = struct{}{}
	}

	var patches []EntryPatch
	for _, row := range rows {
		touched := false
		for key := range row.Data {
			if _, del := deleted[key]; del {
				touched = true
				break
			}
			if _, ren := renames[key]; ren {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}

		next := make(map[string]any, len(row.Data))
		for key, val := range row.Data {
			if _, del := deleted[key]; del {
				continue
			}
			if newName, ren := renames[key]; ren {
				next[newName] = val
				continue
			}
			next[key] = val
		}
		patches = append(patches, EntryPatch{EntryID: row.ID, Data: next})
	}
	return patches
}

// PropagateRenames — только переименования.
func PropagateRenames(renames map[string]string, rows []Entry) []EntryPatch {
	return PropagateBatch(renames, nil, rows)
}

// PropagateDeletions — только удаления колонок.
func PropagateDeletions(names []string, rows []Entry) []EntryPatch {
	return PropagateBatch(nil, names, rows)
}
