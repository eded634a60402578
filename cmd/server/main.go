package main

import (
	"context"
	"fmt"
	"log"

	"fieldday/internal/api"
	"fieldday/internal/config"
	"fieldday/internal/pg"
	"fieldday/internal/reference"
)

func main() {
	cfg := config.LoadWithPath("fieldday.json")

	// 1. Каталог блок-листов кодов (yaml-справочники)
	blocklists, err := reference.LoadBlocklistCatalog(cfg.BlocklistDir)
	if err != nil {
		log.Fatalf("Ошибка загрузки блок-листов: %v", err)
	}
	fmt.Printf("Загружено блок-листов: %d\n", len(blocklists))

	// 2. In-memory хранилище
	storage := api.NewStorage(blocklists)

	// 3. Опциональное постоянное зеркало в Postgres
	if cfg.DBURL != "" {
		db, err := pg.Open(cfg.DBURL)
		if err != nil {
			log.Fatalf("Ошибка подключения к базе: %v", err)
		}
		if cfg.AutoMigrate {
			if err := pg.EnsureSchema(db); err != nil {
				log.Fatalf("Ошибка миграции схемы: %v", err)
			}
		}
		storage.WithStore(pg.NewStore(db))
		if err := storage.Bootstrap(context.Background()); err != nil {
			log.Fatalf("Ошибка загрузки состояния из базы: %v", err)
		}
		fmt.Println("Постоянное хранилище: Postgres")
	}

	// 4. REST API сервер
	fmt.Printf("Стартуем сервер Field Day на :%s...\n", cfg.Port)
	api.RunServer(":"+cfg.Port, storage)
}
