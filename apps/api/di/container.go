// Package di assembles the API dependencies in a dig.Container.
package di

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	echoapi "github.com/cadence-academy/backend/apps/api/echo"
	"github.com/cadence-academy/backend/core"
	"github.com/cadence-academy/backend/core/catalog"
	"github.com/cadence-academy/backend/core/result"
	"github.com/cadence-academy/backend/core/user"
	emailsvc "github.com/cadence-academy/backend/services/email"
	logsvc "github.com/cadence-academy/backend/services/logger"
	"github.com/cadence-academy/backend/storage/database"
	dummydb "github.com/cadence-academy/backend/storage/database/dummy"
	sqlxrepos "github.com/cadence-academy/backend/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Storage holds the repositories of the configured database engine.
	Storage struct {
		Users   user.Repository
		Catalog catalog.Repository
		Results result.Repository

		db *sqlx.DB // nil for the memory engine
	}

	repositories struct {
		dig.Out
		Users   user.Repository
		Catalog catalog.Repository
		Results result.Repository
	}

	serverParams struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		UserSvc    *user.Service
		CatalogSvc *catalog.Service
		ResultSvc  *result.Service
		Validate   *validator.Validate
		Translator ut.Translator
		Registry   *prometheus.Registry
	}
)

// Close releases the database connections, if any.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) (*Storage, error) {
	if conf.Database.InMemory() {
		loggerParam.Logger.Info("using the in-memory database; data is lost on exit")
		db := dummydb.Open()
		return &Storage{
			Users:   dummydb.NewUserRepository(db),
			Catalog: dummydb.NewCatalogRepository(db),
			Results: dummydb.NewResultRepository(db),
		}, nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, errors.Wrap(err, "creating database")
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = database.Migrate(context.Background(), db.DB); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrating database")
	}
	return &Storage{
		Users:   sqlxrepos.NewUserRepository(db),
		Catalog: sqlxrepos.NewCatalogRepository(db),
		Results: sqlxrepos.NewResultRepository(db),
		db:      db,
	}, nil
}

func provideRepositories(s *Storage) repositories {
	return repositories{Users: s.Users, Catalog: s.Catalog, Results: s.Results}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		UserSvc:    p.UserSvc,
		CatalogSvc: p.CatalogSvc,
		ResultSvc:  p.ResultSvc,
		Validate:   p.Validate,
		Translator: p.Translator,
		Registry:   p.Registry,
	})
}

// New returns a new dependency injection dig.Container.
// conf is provided as is when given, otherwise it is loaded with core.NewConfig.
func New(conf ...*core.Config) *dig.Container {
	c := dig.New()

	if len(conf) > 0 {
		must(c.Provide(func() *core.Config { return conf[0] }))
	} else {
		must(c.Provide(core.NewConfig))
	}
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(provideRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(newTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(prometheus.NewRegistry))

	// services
	must(c.Provide(catalog.NewService))
	must(c.Provide(func(svc *catalog.Service) user.ClassRoster { return svc }))
	must(c.Provide(user.NewService))
	must(c.Provide(func(svc *user.Service) result.UserFinder { return svc }))
	must(c.Provide(func(svc *catalog.Service) result.SubjectFinder { return svc }))
	must(c.Provide(result.NewService))

	must(c.Provide(newServer))
	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatalf("failed to provide dependency: %v", err)
	}
}
