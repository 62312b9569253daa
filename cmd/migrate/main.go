// Command migrate applies or rolls back the SQL migrations.
//
//	migrate up | down | to <version> | version
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"ms-activity/internal/config"
	"ms-activity/internal/database"
	"ms-activity/internal/database/migrations"
	"ms-activity/internal/logger"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate up | down | to <version> | version")
	os.Exit(2)
}

func main() {
	_ = godotenv.Load()
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.NewLogger(cfg.LogDir, cfg.LogLevel)
	defer log.Close()

	bunDB, err := database.Connect(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.Options{Dir: cfg.Database.MigrationsDir}, log)
	defer runner.Close()

	switch os.Args[1] {
	case "up":
		err = runner.Up()
	case "down":
		err = runner.Down()
	case "to":
		if len(os.Args) < 3 {
			usage()
		}
		var v uint64
		v, err = strconv.ParseUint(os.Args[2], 10, 32)
		if err == nil {
			err = runner.To(uint(v))
		}
	case "version":
	default:
		usage()
	}
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}

	version, dirty, err := runner.Version()
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	log.Info("DATABASE", fmt.Sprintf("Schema at version %d (dirty: %t)", version, dirty))
}
