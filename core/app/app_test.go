package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/formkit/config"
	"github.com/stokaro/formkit/core/app"
	"github.com/stokaro/formkit/core/datatype"
	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/platform"
	"github.com/stokaro/formkit/core/rdb"
	"github.com/stokaro/formkit/core/registry"
	"github.com/stokaro/formkit/core/valuelist"
	"github.com/stokaro/formkit/internal/sqlfake"
	"github.com/stokaro/formkit/upload"
)

var lineSpec = form.Spec{
	Name:  "line",
	Table: "invoice_line",
	Fields: []form.FieldSpec{
		{Name: "invoiceId", DataType: datatype.IntegerName, Column: "invoice_id", Role: form.PrimaryAndParentKey},
		{Name: "status", DataType: datatype.TextName, ValueList: "statuses", Role: form.RequiredData},
	},
}

var invoiceSpec = form.Spec{
	Name:    "invoice",
	Version: "v2",
	Table:   "invoice",
	Fields: []form.FieldSpec{
		{Name: "id", DataType: datatype.IntegerName, Role: form.GeneratedPrimaryKey},
		{Name: "customer", DataType: datatype.TextName, Role: form.RequiredData},
	},
	Children: []form.ChildSpec{{Name: "lines", Form: "line"}},
}

func newApp(c *qt.C, cfg *config.Config) *app.App {
	c.Helper()
	db, _ := sqlfake.Open()
	c.Cleanup(func() { db.Close() })
	a := app.New(cfg, app.WithDriver(rdb.NewDriver(db, platform.MySQL)))
	c.Assert(a.RegisterList(valuelist.NewStatic("statuses", valuelist.Entry{Value: "open", Text: "Open"})), qt.IsNil)
	a.MustRegisterForm(invoiceSpec)
	a.MustRegisterForm(lineSpec)
	return a
}

func TestNew(t *testing.T) {
	c := qt.New(t)
	a := app.New(nil)
	c.Assert(a.Config, qt.DeepEquals, config.DefaultConfig())
	c.Assert(a.Driver, qt.IsNil)

	dt, err := a.DataType(datatype.EmailName)
	c.Assert(err, qt.IsNil)
	c.Assert(dt.Name(), qt.Equals, datatype.EmailName)

	f, err := a.Function("concat")
	c.Assert(err, qt.IsNil)
	c.Assert(f.Name(), qt.Equals, "concat")
	c.Assert(a.Close(), qt.IsNil)
}

func TestForm(t *testing.T) {
	c := qt.New(t)
	a := newApp(c, nil)

	f, err := a.Form("invoice_v2")
	c.Assert(err, qt.IsNil)
	c.Assert(f.ID(), qt.Equals, "invoice_v2")
	child, ok := f.Child("lines")
	c.Assert(ok, qt.IsTrue)

	line, err := a.Form("line")
	c.Assert(err, qt.IsNil)
	c.Assert(child.Form, qt.Equals, line)
	status, _ := line.Field("status")
	c.Assert(status.ValueList(), qt.Not(qt.IsNil))

	_, err = a.Form("nope")
	c.Assert(errors.Is(err, registry.ErrNotFound), qt.IsTrue)
	c.Assert(a.RegisterForm(lineSpec), qt.ErrorMatches, `form "line" is already registered`)
}

func TestAllForms(t *testing.T) {
	c := qt.New(t)
	a := newApp(c, nil)
	a.MustRegisterForm(form.Spec{Name: "broken", Fields: []form.FieldSpec{{Name: "x", DataType: "nope"}}})

	forms, err := a.AllForms()
	c.Assert(err, qt.ErrorMatches, `failed to build form "broken": failed to build form broken: .*`)
	c.Assert(forms, qt.HasLen, 2)
	c.Assert(forms[0].ID(), qt.Equals, "invoice_v2")
	c.Assert(forms[1].ID(), qt.Equals, "line")
}

func TestForm_ChildCycle(t *testing.T) {
	tests := []struct {
		name     string
		specs    []form.Spec
		get      string
		expected string
	}{
		{
			name: "two forms",
			specs: []form.Spec{
				{Name: "a", Fields: []form.FieldSpec{{Name: "x", DataType: datatype.TextName}}, Children: []form.ChildSpec{{Name: "bs", Form: "b"}}},
				{Name: "b", Fields: []form.FieldSpec{{Name: "y", DataType: datatype.TextName}}, Children: []form.ChildSpec{{Name: "as", Form: "a"}}},
			},
			get:      "a",
			expected: `.*child forms form a cycle a -> b -> a`,
		},
		{
			name: "itself",
			specs: []form.Spec{
				{Name: "tree", Fields: []form.FieldSpec{{Name: "x", DataType: datatype.TextName}}, Children: []form.ChildSpec{{Name: "nodes", Form: "tree"}}},
			},
			get:      "tree",
			expected: `.*child forms form a cycle tree -> tree`,
		},
		{
			name: "below the requested form",
			specs: []form.Spec{
				{Name: "root", Fields: []form.FieldSpec{{Name: "x", DataType: datatype.TextName}}, Children: []form.ChildSpec{{Name: "bs", Form: "b"}}},
				{Name: "b", Fields: []form.FieldSpec{{Name: "y", DataType: datatype.TextName}}, Children: []form.ChildSpec{{Name: "cs", Form: "c"}}},
				{Name: "c", Fields: []form.FieldSpec{{Name: "z", DataType: datatype.TextName}}, Children: []form.ChildSpec{{Name: "bs", Form: "b"}}},
			},
			get:      "root",
			expected: `.*child forms form a cycle root -> b -> c -> b`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			a := app.New(nil)
			for _, spec := range tt.specs {
				a.MustRegisterForm(spec)
			}
			_, err := a.Form(tt.get)
			c.Assert(err, qt.ErrorMatches, tt.expected)
		})
	}
}

func TestRegisterRuntimeList(t *testing.T) {
	c := qt.New(t)
	spec := valuelist.RuntimeSpec{Name: "customers", ListSQL: "SELECT id, name FROM customer"}

	a := app.New(nil)
	c.Assert(a.RegisterRuntimeList(spec), qt.IsNil)
	_, err := a.ValueList("customers")
	c.Assert(errors.Is(err, rdb.ErrNoDriver), qt.IsTrue)

	db, script := sqlfake.Open()
	c.Cleanup(func() { db.Close() })
	script.OnQuery("FROM customer", sqlfake.Rows{Values: [][]any{{"7", "Acme"}}})
	a = app.New(nil, app.WithDriver(rdb.NewDriver(db, platform.MySQL)))
	c.Assert(a.RegisterRuntimeList(spec), qt.IsNil)
	l, err := a.ValueList("customers")
	c.Assert(err, qt.IsNil)
	entries, err := l.List(context.Background(), nil)
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.DeepEquals, []valuelist.Entry{{Value: "7", Text: "Acme"}})
}

func TestConnect(t *testing.T) {
	c := qt.New(t)
	a := newApp(c, nil)
	d := a.Driver
	c.Assert(a.Connect(context.Background()), qt.IsNil)
	c.Assert(a.Driver, qt.Equals, d)

	a = app.New(config.WithDSN(""))
	c.Assert(a.Connect(context.Background()), qt.ErrorMatches, "no database dsn configured")
}

func TestServices(t *testing.T) {
	c := qt.New(t)
	a := newApp(c, nil)
	svc, err := a.Services().Get("get-invoice_v2")
	c.Assert(err, qt.IsNil)
	c.Assert(svc.ID(), qt.Equals, "get-invoice_v2")
}

func TestUploader(t *testing.T) {
	c := qt.New(t)
	dir := c.TempDir()
	spec := `{"inserts": [{"form": "line", "fields": {"invoiceId": "=invoice", "status": "=status"}}]}`
	c.Assert(os.WriteFile(filepath.Join(dir, "lines.json"), []byte(spec), 0o600), qt.IsNil)

	cfg := config.DefaultConfig()
	cfg.Upload.SpecDir = dir
	a := newApp(c, cfg)

	u, err := a.Uploader(context.Background(), "lines")
	c.Assert(err, qt.IsNil)
	src := upload.NewCSVSource(strings.NewReader("invoice,status\n1,open\n2,closed\n"))
	res, err := u.Upload(context.Background(), src, form.NewServiceContext("u1", nil), true)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Spec, qt.Equals, "lines")
	c.Assert(res.NbrRows, qt.Equals, 2)
	c.Assert(res.NbrErrors, qt.Equals, 1)
	c.Assert(res.Errors[0].Row, qt.Equals, 1)

	_, err = a.Uploader(context.Background(), "nope")
	c.Assert(err, qt.ErrorMatches, "unknown upload spec: nope")
}
