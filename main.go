package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"stronghold/pkg/db"
	"stronghold/pkg/game"
)

func setupLogging() (*log.Logger, *log.Logger) {
	logDir := "./logs"
	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		os.Mkdir(logDir, 0755)
	}
	fInfo, _ := os.OpenFile(filepath.Join(logDir, "server.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	fErr, _ := os.OpenFile(filepath.Join(logDir, "error.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	info := log.New(io.MultiWriter(os.Stdout, fInfo), "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	errlog := log.New(io.MultiWriter(os.Stderr, fErr), "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
	return info, errlog
}

func main() {
	info, errlog := setupLogging()

	cfg, err := loadConfig()
	if err != nil {
		errlog.Fatalf("config: %v", err)
	}

	os.MkdirAll(filepath.Dir(cfg.DatabaseURL), 0755)
	database, err := db.Open("sqlite3", cfg.DatabaseURL+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		errlog.Fatalf("open database: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		errlog.Fatalf("migrate: %v", err)
	}

	content, err := db.LoadContent(cfg.ContentFile)
	if err != nil {
		errlog.Fatalf("content: %v", err)
	}
	if err := db.Seed(database, content, time.Now()); err != nil {
		errlog.Fatalf("seed: %v", err)
	}

	identity, err := db.InitIdentity(database, time.Now())
	if err != nil {
		errlog.Fatalf("identity: %v", err)
	}

	engine := game.NewEngine(database, game.RealClock{}, info)
	server := newServer(cfg, database, engine, identity, info, errlog)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      server.routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	info.Printf("server %s listening on :%d (debug=%v)", identity.ServerID, cfg.Port, cfg.Debug)
	if err := httpServer.ListenAndServe(); err != nil {
		errlog.Fatal(err)
	}
}
