package config

import (
	"encoding/json"
	"flag"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port         string `json:"port"`
	BlocklistDir string `json:"blocklistDir"`
	DBURL        string `json:"dbUrl"`
	AutoMigrate  bool   `json:"autoMigrate"`
}

func def() Config {
	return Config{
		Port:         "8080",
		BlocklistDir: "reference/blocklist",
		DBURL:        "",
		AutoMigrate:  false,
	}
}

func loadJSON(path string) (Config, error) {
	c := def()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, err
	}
	return c, nil
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getenvBool(k string, fallback bool) bool {
	if v, ok := os.LookupEnv(k); ok {
		v = strings.TrimSpace(strings.ToLower(v))
		if v == "1" || v == "true" || v == "yes" {
			return true
		}
		if v == "0" || v == "false" || v == "no" {
			return false
		}
	}
	return fallback
}

// LoadWithPath читает JSON по указанному пути, потом применяет ENV и флаги.
func LoadWithPath(jsonPath string) Config {
	cfg := def()

	// JSON (если файл существует)
	if st, err := os.Stat(jsonPath); err == nil && !st.IsDir() {
		if c2, err := loadJSON(jsonPath); err == nil {
			cfg = c2
		}
	}

	// ENV overrides
	cfg.Port = getenv("FIELDDAY_PORT", cfg.Port)
	cfg.BlocklistDir = getenv("FIELDDAY_BLOCKLIST_DIR", cfg.BlocklistDir)
	cfg.DBURL = getenv("FIELDDAY_DB_URL", cfg.DBURL)
	cfg.AutoMigrate = getenvBool("FIELDDAY_AUTO_MIGRATE", cfg.AutoMigrate)

	// Flags overrides
	configPath := flag.String("config", jsonPath, "Path to config JSON")
	port := flag.String("port", cfg.Port, "HTTP port")
	blocklist := flag.String("blocklist", cfg.BlocklistDir, "Path to blocklist catalog directory")
	db := flag.String("db", cfg.DBURL, "Postgres URL (empty = in-memory only)")
	auto := flag.String("auto-migrate", strconv.FormatBool(cfg.AutoMigrate), "Apply DDL at startup (true/false)")

	flag.Parse()

	// Если через флаг передали другой конфиг — перечитаем файл заново
	// (флаги уже зарегистрированы, второй Parse не нужен)
	if *configPath != jsonPath {
		if st, err := os.Stat(*configPath); err == nil && !st.IsDir() {
			if c2, err := loadJSON(*configPath); err == nil {
				cfg = c2
			}
		}
	}

	// явно переданные флаги сильнее файла и ENV
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["port"] || *configPath == jsonPath {
		cfg.Port = strings.TrimSpace(*port)
	}
	if set["blocklist"] || *configPath == jsonPath {
		cfg.BlocklistDir = strings.TrimSpace(*blocklist)
	}
	if set["db"] || *configPath == jsonPath {
		cfg.DBURL = strings.TrimSpace(*db)
	}
	if set["auto-migrate"] || *configPath == jsonPath {
		cfg.AutoMigrate = strings.EqualFold(strings.TrimSpace(*auto), "true") ||
			strings.EqualFold(strings.TrimSpace(*auto), "1") ||
			strings.EqualFold(strings.TrimSpace(*auto), "yes")
	}

	return cfg
}
