package main

import (
	"log"
	"os"

	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/account"
	"github.com/trezcool/minimoodle/services/logger"
	"github.com/trezcool/minimoodle/storage/database"
	"github.com/trezcool/minimoodle/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	appLogger, err := logsvc.New(logger, conf)
	errAndDie(err)

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)

	// start CLI
	cli := commandLine{
		db:     db.DB,
		accSvc: account.NewService(sqlxrepos.NewAccountRepository(db), appLogger),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	logsvc.Flush(appLogger)
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
