package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/minimoodle/apps/api/echo"
	"github.com/trezcool/minimoodle/core"
	"github.com/trezcool/minimoodle/core/account"
	"github.com/trezcool/minimoodle/core/course"
	"github.com/trezcool/minimoodle/core/enrollment"
	"github.com/trezcool/minimoodle/core/progress"
	"github.com/trezcool/minimoodle/core/submission"
	logsvc "github.com/trezcool/minimoodle/services/logger"
	"github.com/trezcool/minimoodle/storage/database"
	inmemdb "github.com/trezcool/minimoodle/storage/database/inmem"
	sqlxrepos "github.com/trezcool/minimoodle/storage/database/sqlx"
)

const engineInMem = "inmem"

type repositories struct {
	accounts    account.Repository
	courses     course.Repository
	enrollments enrollment.Repository
	submissions submission.Repository
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger, err := logsvc.New(log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	defer logsvc.Flush(logger)
	dbLogger, err := logsvc.New(log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	defer logsvc.Flush(dbLogger)

	// set up DB
	var repos repositories
	if conf.Database.Engine == engineInMem {
		logger.Warn("using the in-memory database: data is lost on shutdown")
		repos = inMemRepositories()
	} else {
		db, err := setUpDB(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		defer func() {
			if err = db.Close(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		repos = sqlRepositories(db)
	}

	// set up services
	accSvc := account.NewService(repos.accounts, logger)
	courseSvc := course.NewService(repos.courses, conf.Course, logger)
	enrSvc := enrollment.NewService(repos.enrollments, repos.courses, logger)
	subSvc := submission.NewService(repos.submissions, repos.courses, enrSvc, logger)
	progressSvc := progress.NewService(enrSvc, repos.courses, subSvc)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			AccountSvc:    accSvc,
			CourseSvc:     courseSvc,
			EnrollmentSvc: enrSvc,
			SubmissionSvc: subSvc,
			ProgressSvc:   progressSvc,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}

func sqlRepositories(db *sqlx.DB) repositories {
	return repositories{
		accounts:    sqlxrepos.NewAccountRepository(db),
		courses:     sqlxrepos.NewCourseRepository(db),
		enrollments: sqlxrepos.NewEnrollmentRepository(db),
		submissions: sqlxrepos.NewSubmissionRepository(db),
	}
}

func inMemRepositories() repositories {
	db := inmemdb.NewDB()
	return repositories{
		accounts:    inmemdb.NewAccountRepository(db),
		courses:     inmemdb.NewCourseRepository(db),
		enrollments: inmemdb.NewEnrollmentRepository(db),
		submissions: inmemdb.NewSubmissionRepository(db),
	}
}
