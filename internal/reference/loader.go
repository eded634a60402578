package reference

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadBlocklistCatalog читает все yaml-справочники блок-листов из папки.
// Пустая/отсутствующая папка — не ошибка: блок-листы опциональны.
func LoadBlocklistCatalog(dir string) (map[string]BlocklistDirectory, error) {
	result := make(map[string]BlocklistDirectory)

	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, err
	}
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if !strings.HasSuffix(file.Name(), ".yaml") && !strings.HasSuffix(file.Name(), ".yml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, err
		}
		var blockDir BlocklistDirectory
		if err := yaml.Unmarshal(data, &blockDir); err != nil {
			return nil, err
		}
		// имя справочника — из поля name или из имени файла
		name := blockDir.Name
		if name == "" {
			name = strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
			blockDir.Name = name
		}
		result[name] = blockDir
	}
	return result, nil
}
