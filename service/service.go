// Package service exposes forms and value lists as named request handlers.
//
// A service reads a JSON payload, validates it against a form, runs the
// database operation and writes a JSON response. Everything a client can fix
// is reported as a message in the service context; a returned error is a
// fault. Form services are named "<operation>-<form id>", for example
// "get-customer" or "filter-invoice_2".
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/stokaro/formkit/core/filter"
	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/rdb"
	"github.com/stokaro/formkit/core/registry"
	"github.com/stokaro/formkit/core/valuelist"
)

// Separator joins the operation and the form of a form service name.
const Separator = "-"

var (
	// ErrUnknownService is returned for a name that resolves to no service.
	ErrUnknownService = errors.New("unknown service")
	// ErrNotAllowed is returned for an operation a form does not allow.
	ErrNotAllowed = errors.New("operation not allowed")
)

// Service handles one kind of request.
type Service interface {
	ID() string
	// Serve handles payload and writes the response body to w. Nothing is
	// written when sc holds errors afterwards.
	Serve(ctx context.Context, sc *form.ServiceContext, payload []byte, w io.Writer) error
}

// Components resolves the forms and lists services are built on.
type Components interface {
	Form(name string) (*form.Form, error)
	ValueList(name string) (valuelist.ValueList, error)
}

// Services resolves service names. Registered services take precedence over
// form services of the same name.
type Services struct {
	comps      Components
	driver     *rdb.Driver
	filter     *filter.Builder
	registered *registry.Registry[Service]
	logger     *slog.Logger
}

// New returns the services over comps. maxRows caps filters that give no
// limit of their own.
func New(comps Components, driver *rdb.Driver, maxRows int) *Services {
	s := &Services{
		comps:      comps,
		driver:     driver,
		registered: registry.New[Service]("service"),
		logger:     slog.Default(),
	}
	dialect := ""
	if driver != nil {
		dialect = driver.Dialect()
	}
	s.filter = filter.NewBuilder(dialect, maxRows)
	s.registered.MustRegister(ListServiceName, func() (Service, error) {
		return &listService{comps: comps, logger: s.logger}, nil
	})
	return s
}

// WithLogger sets the logger for the services
func (s *Services) WithLogger(l *slog.Logger) *Services {
	tmp := *s
	tmp.logger = l
	tmp.filter = s.filter.WithLogger(l)
	return &tmp
}

// Register adds a custom service under its ID.
func (s *Services) Register(svc Service) error {
	return s.registered.RegisterValue(svc.ID(), svc)
}

// Names returns the names of the registered services. Form services are not
// listed.
func (s *Services) Names() []string {
	return s.registered.Names()
}

// Get resolves name to a registered service or to an operation on a form.
func (s *Services) Get(name string) (Service, error) {
	if s.registered.Has(name) {
		return s.registered.Get(name)
	}
	opName, formName, ok := strings.Cut(name, Separator)
	if !ok || formName == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	op, ok := form.ParseIoType(opName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	f, err := s.comps.Form(formName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnknownService, name, err)
	}
	return s.ForForm(op, f)
}

// ForForm returns the service running op on f.
func (s *Services) ForForm(op form.IoType, f *form.Form) (Service, error) {
	if !f.IsOperationAllowed(op) {
		s.logger.Error("Operation requested on a form that does not allow it", "form", f.ID(), "operation", op)
		return nil, fmt.Errorf("%w: %s on form %s", ErrNotAllowed, op, f.ID())
	}
	if s.driver == nil {
		return nil, rdb.ErrNoDriver
	}
	return &formService{
		op:     op,
		form:   f,
		driver: s.driver,
		filter: s.filter,
		logger: s.logger.With("form", f.ID(), "operation", op.String()),
	}, nil
}

// Serve resolves name and serves the request.
func (s *Services) Serve(ctx context.Context, name string, sc *form.ServiceContext, payload []byte, w io.Writer) error {
	svc, err := s.Get(name)
	if err != nil {
		return err
	}
	return svc.Serve(ctx, sc, payload, w)
}
