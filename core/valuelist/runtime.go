package valuelist

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/stokaro/formkit/core/rdb"
	"github.com/stokaro/formkit/core/valuetype"
)

type tenantKey struct{}

// WithTenant returns a context carrying the tenant id used by tenant specific lists.
func WithTenant(ctx context.Context, tenant any) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenant)
}

// TenantFrom returns the tenant id stored by WithTenant.
func TenantFrom(ctx context.Context) (any, bool) {
	v := ctx.Value(tenantKey{})
	return v, v != nil
}

// RuntimeSpec describes a list whose values live in the database.
//
// ListSQL selects (value, text) rows; its parameters are the key (when HasKey)
// followed by the tenant (when IsTenantSpecific). CheckSQL selects any row when
// the value is valid; its parameters are the value followed by the key.
// AllSQL selects (value, text, key) rows of every key, with the tenant as its
// only parameter when IsTenantSpecific.
type RuntimeSpec struct {
	Name             string
	ListSQL          string
	CheckSQL         string
	AllSQL           string
	HasKey           bool
	KeyIsNumeric     bool
	ValueIsNumeric   bool
	IsTenantSpecific bool
}

// CacheOptions control caching of runtime list reads. A non-positive TTL
// disables caching.
type CacheOptions struct {
	Size int
	TTL  time.Duration
}

// Runtime is a database backed value list.
type Runtime struct {
	spec    RuntimeSpec
	driver  *rdb.Driver
	entries *expirable.LRU[string, []Entry]
	checks  *expirable.LRU[string, bool]
	logger  *slog.Logger
}

// NewRuntime creates a runtime list reading through driver.
func NewRuntime(spec RuntimeSpec, driver *rdb.Driver, cache CacheOptions) *Runtime {
	l := &Runtime{spec: spec, driver: driver, logger: slog.Default()}
	if cache.TTL > 0 {
		l.entries = expirable.NewLRU[string, []Entry](cache.Size, nil, cache.TTL)
		l.checks = expirable.NewLRU[string, bool](cache.Size, nil, cache.TTL)
	}
	return l
}

// WithLogger sets the logger for the list
func (l *Runtime) WithLogger(logger *slog.Logger) *Runtime {
	tmp := *l
	tmp.logger = logger
	return &tmp
}

func (l *Runtime) Name() string  { return l.spec.Name }
func (l *Runtime) IsKeyed() bool { return l.spec.HasKey }

func (l *Runtime) valueKind() valuetype.Kind {
	if l.spec.ValueIsNumeric {
		return valuetype.Integer
	}
	return valuetype.Text
}

func (l *Runtime) keyParam(key any) (rdb.Param, bool) {
	if l.spec.KeyIsNumeric {
		n, ok := valuetype.Integer.FromJSON(key)
		if !ok {
			return rdb.Param{}, false
		}
		return rdb.Param{Name: "key", Kind: valuetype.Integer, Value: n}, true
	}
	return rdb.Param{Name: "key", Kind: valuetype.Text, Value: fmt.Sprint(key)}, true
}

func (l *Runtime) IsValid(ctx context.Context, value, key any) (bool, error) {
	if value == nil {
		return false, nil
	}
	if l.spec.HasKey && key == nil {
		l.logger.Error("Key should have a value", "list", l.spec.Name)
		return false, nil
	}
	if l.driver == nil {
		return false, rdb.ErrNoDriver
	}
	v, ok := l.valueKind().FromJSON(value)
	if !ok {
		return false, nil
	}
	params := []rdb.Param{{Name: "value", Kind: l.valueKind(), Value: v}}
	if l.spec.HasKey {
		p, ok := l.keyParam(key)
		if !ok {
			return false, nil
		}
		params = append(params, p)
	}

	cacheKey := fmt.Sprint(v, "\x00", key)
	if l.checks != nil {
		if found, ok := l.checks.Get(cacheKey); ok {
			return found, nil
		}
	}

	var found bool
	err := l.driver.Read(ctx, func(h *rdb.Handle) error {
		_, ok, err := h.QueryRow(ctx, l.spec.CheckSQL, params, []valuetype.Kind{valuetype.Text})
		found = ok
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to check value of list %s: %w", l.spec.Name, err)
	}
	if l.checks != nil {
		l.checks.Add(cacheKey, found)
	}
	return found, nil
}

func (l *Runtime) List(ctx context.Context, key any) ([]Entry, error) {
	if l.spec.HasKey && key == nil {
		l.logger.Error("Key should have a value", "list", l.spec.Name)
		return nil, nil
	}
	if l.driver == nil {
		return nil, rdb.ErrNoDriver
	}
	var params []rdb.Param
	if l.spec.HasKey {
		p, ok := l.keyParam(key)
		if !ok {
			l.logger.Error("Key should be numeric", "list", l.spec.Name, "key", key)
			return nil, nil
		}
		params = append(params, p)
	}
	tenant, hasTenant := TenantFrom(ctx)
	if l.spec.IsTenantSpecific {
		if !hasTenant {
			return nil, fmt.Errorf("list %s is tenant specific but no tenant is set", l.spec.Name)
		}
		params = append(params, rdb.Param{Name: "tenant", Kind: valuetype.Integer, Value: tenant})
	}

	cacheKey := fmt.Sprint(key, "\x00", tenant)
	if l.entries != nil {
		if entries, ok := l.entries.Get(cacheKey); ok {
			return entries, nil
		}
	}

	var entries []Entry
	err := l.driver.Read(ctx, func(h *rdb.Handle) error {
		_, err := h.Query(ctx, l.spec.ListSQL, params, []valuetype.Kind{l.valueKind(), valuetype.Text},
			func(values []any) (bool, error) {
				text, _ := values[1].(string)
				entries = append(entries, Entry{Value: values[0], Text: text})
				return true, nil
			})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read list %s: %w", l.spec.Name, err)
	}
	if len(entries) == 0 {
		l.logger.Warn("No values found for list", "list", l.spec.Name, "key", key)
	}
	if l.entries != nil {
		l.entries.Add(cacheKey, entries)
	}
	return entries, nil
}

// All returns "key|text" to value for every row of a keyed list. It is used to
// resolve lookups by display text during uploads.
func (l *Runtime) All(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	if !l.spec.HasKey {
		l.logger.Error("List is not keyed, All is not applicable", "list", l.spec.Name)
		return out, nil
	}
	if l.driver == nil {
		return nil, rdb.ErrNoDriver
	}
	var params []rdb.Param
	if l.spec.IsTenantSpecific {
		tenant, ok := TenantFrom(ctx)
		if !ok {
			return nil, fmt.Errorf("list %s is tenant specific but no tenant is set", l.spec.Name)
		}
		params = append(params, rdb.Param{Name: "tenant", Kind: valuetype.Integer, Value: tenant})
	}
	kinds := []valuetype.Kind{valuetype.Text, valuetype.Text, valuetype.Text}
	err := l.driver.Read(ctx, func(h *rdb.Handle) error {
		_, err := h.Query(ctx, l.spec.AllSQL, params, kinds, func(values []any) (bool, error) {
			id, _ := values[0].(string)
			name, _ := values[1].(string)
			key, _ := values[2].(string)
			out[key+KeyTextSeparator+name] = id
			return true, nil
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read all values of list %s: %w", l.spec.Name, err)
	}
	return out, nil
}

// FormatKey renders a key for use in "key|text" lookup maps.
func FormatKey(key any) string {
	switch k := key.(type) {
	case int64:
		return strconv.FormatInt(k, 10)
	case string:
		return k
	}
	return fmt.Sprint(key)
}
