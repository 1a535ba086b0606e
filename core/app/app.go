// Package app ties the registries, the database driver and the configuration
// of a formkit application together. An App is the Lookup that forms resolve
// their data types, value lists and child forms through, and the component
// source of upload specs and services.
//
// Components are registered by name and built on first use:
//
//	a := app.New(config.WithDSN(dsn))
//	if err := a.Connect(ctx); err != nil {
//		return err
//	}
//	a.MustRegisterForm(invoiceSpec)
//	f, err := a.Form("invoice")
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/stokaro/formkit/config"
	"github.com/stokaro/formkit/core/datatype"
	"github.com/stokaro/formkit/core/fn"
	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/rdb"
	"github.com/stokaro/formkit/core/registry"
	"github.com/stokaro/formkit/core/valuelist"
	"github.com/stokaro/formkit/dbschema"
	"github.com/stokaro/formkit/service"
	"github.com/stokaro/formkit/upload"
)

// App holds the components of one application.
type App struct {
	Forms     *registry.Registry[*form.Form]
	Lists     *registry.Registry[valuelist.ValueList]
	DataTypes *registry.Registry[datatype.DataType]
	Functions *registry.Registry[fn.Function]

	Config *config.Config
	// Driver is nil until Connect succeeds or WithDriver is given.
	Driver *rdb.Driver
	Logger *slog.Logger

	specsMu sync.RWMutex
	specs   map[string]form.Spec
}

// Option configures an App built by New.
type Option func(*App)

// WithDriver uses an already opened database.
func WithDriver(d *rdb.Driver) Option {
	return func(a *App) { a.Driver = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.Logger = l }
}

// New creates an application with the built-in data types and functions
// registered. A nil cfg means config.DefaultConfig.
func New(cfg *config.Config, opts ...Option) *App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	a := &App{
		Forms:     registry.New[*form.Form]("form"),
		Lists:     registry.New[valuelist.ValueList]("value list"),
		DataTypes: registry.New[datatype.DataType]("data type"),
		Functions: registry.New[fn.Function]("function"),
		Config:    cfg,
		Logger:    slog.Default(),
		specs:     make(map[string]form.Spec),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.Driver != nil {
		a.Driver = a.Driver.WithLogger(a.Logger)
	}
	for name, dt := range datatype.Builtins() {
		if err := a.DataTypes.RegisterValue(name, dt); err != nil {
			panic(err)
		}
	}
	for name, f := range fn.Builtins() {
		if err := a.Functions.RegisterValue(name, f); err != nil {
			panic(err)
		}
	}
	return a
}

// Connect opens the configured database unless a driver is already set.
func (a *App) Connect(ctx context.Context) error {
	if a.Driver != nil {
		return nil
	}
	d, err := dbschema.Connect(ctx, a.Config.Database)
	if err != nil {
		return err
	}
	a.Driver = d.WithLogger(a.Logger)
	a.Logger.Info("Connected to database", "dialect", d.Dialect())
	return nil
}

// Close releases the database, if any.
func (a *App) Close() error {
	if a.Driver == nil {
		return nil
	}
	return a.Driver.Close()
}

func (a *App) DataType(name string) (datatype.DataType, error) {
	return a.DataTypes.Get(name)
}

func (a *App) ValueList(name string) (valuelist.ValueList, error) {
	return a.Lists.Get(name)
}

// Form returns the named form, building it on first use. Child forms and
// value lists are resolved through the App. A form that contains itself,
// directly or through its children, fails to build.
func (a *App) Form(name string) (*form.Form, error) {
	return a.Forms.Get(name)
}

func (a *App) Function(name string) (fn.Function, error) {
	return a.Functions.Get(name)
}

// RegisterForm registers spec under its id (name and version).
func (a *App) RegisterForm(spec form.Spec) error {
	id := spec.Name
	if spec.Version != "" {
		id += "_" + spec.Version
	}
	err := a.Forms.Register(id, func() (*form.Form, error) {
		if cycle := a.childCycle(id); cycle != nil {
			return nil, fmt.Errorf("failed to build form %s: child forms form a cycle %s", id, strings.Join(cycle, " -> "))
		}
		f, err := form.New(spec, a)
		if err != nil {
			return nil, fmt.Errorf("failed to build form %s: %w", id, err)
		}
		return f.WithLogger(a.Logger.With("form", id)), nil
	})
	if err != nil {
		return err
	}
	a.specsMu.Lock()
	a.specs[id] = spec
	a.specsMu.Unlock()
	return nil
}

// childCycle returns the path from id back to a form already on it, following
// the child forms of the registered specs, or nil when there is none.
func (a *App) childCycle(id string) []string {
	a.specsMu.RLock()
	defer a.specsMu.RUnlock()
	done := map[string]bool{}
	var walk func(path []string) []string
	walk = func(path []string) []string {
		name := path[len(path)-1]
		if done[name] {
			return nil
		}
		spec, ok := a.specs[name]
		if !ok {
			return nil
		}
		for _, child := range spec.Children {
			if slices.Contains(path, child.Form) {
				return append(slices.Clone(path), child.Form)
			}
			if cycle := walk(append(slices.Clone(path), child.Form)); cycle != nil {
				return cycle
			}
		}
		done[name] = true
		return nil
	}
	return walk([]string{id})
}

// MustRegisterForm is RegisterForm that panics on error.
func (a *App) MustRegisterForm(spec form.Spec) {
	if err := a.RegisterForm(spec); err != nil {
		panic(err)
	}
}

// RegisterList registers a value list that needs no database.
func (a *App) RegisterList(l valuelist.ValueList) error {
	return a.Lists.RegisterValue(l.Name(), l)
}

// RegisterRuntimeList registers a database backed list. The list is built on
// first use and needs the App to be connected by then.
func (a *App) RegisterRuntimeList(spec valuelist.RuntimeSpec) error {
	return a.Lists.Register(spec.Name, func() (valuelist.ValueList, error) {
		if a.Driver == nil {
			return nil, fmt.Errorf("runtime list %s: %w", spec.Name, rdb.ErrNoDriver)
		}
		return valuelist.NewRuntime(spec, a.Driver, a.Config.ListCache()).WithLogger(a.Logger), nil
	})
}

// AllForms builds every registered form, sorted by id.
func (a *App) AllForms() ([]*form.Form, error) {
	names := a.Forms.Names()
	forms := make([]*form.Form, 0, len(names))
	var errs []error
	for _, name := range names {
		f, err := a.Form(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		forms = append(forms, f)
	}
	return forms, errors.Join(errs...)
}

// Services returns the service dispatcher of the App.
func (a *App) Services() *service.Services {
	return service.New(a, a.Driver, a.Config.Filter.MaxRows).WithLogger(a.Logger)
}

// SpecProvider serves the upload specs found in the configured spec directory.
func (a *App) SpecProvider() (*upload.FSSpecProvider, error) {
	return upload.NewFSSpecProvider(os.DirFS(a.Config.Upload.SpecDir), a)
}

// Uploader parses the named upload spec and returns an uploader for it.
func (a *App) Uploader(ctx context.Context, specName string) (*upload.Uploader, error) {
	provider, err := a.SpecProvider()
	if err != nil {
		return nil, err
	}
	spec, err := provider.Spec(ctx, specName)
	if err != nil {
		return nil, err
	}
	return upload.NewUploader(spec, a.Driver).WithLogger(a.Logger), nil
}
