// Package shared wires the services used by both the API server and the admin CLI.
package shared

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/core/catalog"
	"github.com/trezcool/coursereview/core/review"
	"github.com/trezcool/coursereview/core/user"
	"github.com/trezcool/coursereview/storage"
)

type (
	Deps struct {
		Conf     *core.Config
		Logger   core.Logger
		Backend  storage.Backend
		Mail     core.EmailService
		Recorder review.Recorder // optional
	}

	App struct {
		Conf       *core.Config
		Logger     core.Logger
		Catalog    *catalog.Catalog
		Validate   *validator.Validate
		Translator ut.Translator
		Reviews    *review.Service
		Users      *user.Service
	}
)

// NewApp loads the catalog, registers the validators and builds the services over deps.Backend.
func NewApp(deps Deps) (*App, error) {
	cat, err := LoadCatalog(deps.Conf)
	if err != nil {
		return nil, err
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	review.InitValidators(validate, translator, cat)

	core.ParseEmailTemplates(deps.Conf, deps.Logger)

	app := &App{
		Conf:       deps.Conf,
		Logger:     deps.Logger,
		Catalog:    cat,
		Validate:   validate,
		Translator: translator,
	}
	app.Reviews = review.NewService(review.ServiceDeps{
		Repo:       storage.Reviews(deps.Backend),
		Courses:    cat,
		Validate:   validate,
		Translator: translator,
		Logger:     deps.Logger,
		Recorder:   deps.Recorder,
		MaxRetries: deps.Conf.Store.MaxRetries,
	})
	app.Users = user.NewService(user.ServiceDeps{
		Conf:       deps.Conf,
		Repo:       storage.Users(deps.Backend),
		Mail:       deps.Mail,
		Validate:   validate,
		Translator: translator,
		Logger:     deps.Logger,
		MaxRetries: deps.Conf.Store.MaxRetries,
	})
	return app, nil
}

// LoadCatalog reads conf.CatalogFile, or the embedded catalog when it is not set.
func LoadCatalog(conf *core.Config) (*catalog.Catalog, error) {
	if conf.CatalogFile == "" {
		cat, err := catalog.LoadDefault()
		return cat, errors.Wrap(err, "loading embedded catalog")
	}
	cat, err := catalog.LoadFile(conf.CatalogFile)
	return cat, errors.Wrapf(err, "loading catalog %s", conf.CatalogFile)
}
