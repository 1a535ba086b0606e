package upload_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"

	"github.com/stokaro/formkit/batch"
	"github.com/stokaro/formkit/core/datatype"
	"github.com/stokaro/formkit/core/fn"
	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/message"
	"github.com/stokaro/formkit/core/platform"
	"github.com/stokaro/formkit/core/rdb"
	"github.com/stokaro/formkit/core/valuelist"
	"github.com/stokaro/formkit/internal/sqlfake"
	"github.com/stokaro/formkit/upload"
)

type components struct {
	forms map[string]*form.Form
	lists map[string]valuelist.ValueList
}

func (c *components) Form(name string) (*form.Form, error) {
	if f, ok := c.forms[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("no form named %s", name)
}

func (c *components) ValueList(name string) (valuelist.ValueList, error) {
	if l, ok := c.lists[name]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("no list named %s", name)
}

func (c *components) Function(name string) (fn.Function, error) {
	if f, ok := fn.Builtins()[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("no function named %s", name)
}

func newComponents() *components {
	lookup := &form.MapLookup{}
	return &components{
		forms: map[string]*form.Form{
			"note": form.MustNew(form.Spec{
				Name:  "note",
				Table: "note",
				Fields: []form.FieldSpec{
					{Name: "id", DataType: datatype.IntegerName, Role: form.GeneratedPrimaryKey},
					{Name: "text", DataType: datatype.TextName, Role: form.RequiredData},
				},
			}, lookup),
			"customer": form.MustNew(form.Spec{
				Name:  "customer",
				Table: "customer",
				Fields: []form.FieldSpec{
					{Name: "id", DataType: datatype.IntegerName, Role: form.GeneratedPrimaryKey},
					{Name: "name", DataType: datatype.TextName, Role: form.RequiredData},
				},
			}, lookup),
			"contact": form.MustNew(form.Spec{
				Name:  "contact",
				Table: "contact",
				Fields: []form.FieldSpec{
					{Name: "customerId", DataType: datatype.IntegerName, Column: "customer_id", Role: form.RequiredData},
					{Name: "email", DataType: datatype.EmailName, Role: form.RequiredData},
				},
			}, lookup),
		},
		lists: map[string]valuelist.ValueList{
			"countries": valuelist.NewStatic("countries", valuelist.Entry{Value: "BE", Text: "Belgium"}),
			"cities": valuelist.NewKeyed("cities", map[string][]valuelist.Entry{
				"BE": {{Value: "BRU", Text: "Brussels"}},
			}),
		},
	}
}

const declarations = `
	"params": {"source": "import", "batch": 7},
	"lookups": {
		"countries": {"Netherlands": "NL"},
		"cities": {"NL": {"Amsterdam": "AMS"}},
		"sysCountries": "countries",
		"sysCities": "cities"
	},
	"functions": {"join": "concat", "total": "sum"}`

// noteSpec maps the text field of a note onto expr.
func noteSpec(expr string) []byte {
	b, _ := json.Marshal(expr)
	return []byte(`{` + declarations + `, "inserts": [{"form": "note", "fields": {"text": ` + string(b) + `}}]}`)
}

const customerSpec = `{
	"inserts": [
		{"form": "customer", "generatedKey": "customerKey", "fields": {"name": "=name"}},
		{"form": "contact", "fields": {"customerId": "=customerKey", "email": "=email"}}
	]
}`

func parse(c *qt.C, data []byte) *upload.Spec {
	c.Helper()
	s, err := upload.Parse(context.Background(), "test", data, newComponents())
	c.Assert(err, qt.IsNil)
	return s
}

func newDriver(c *qt.C) (*rdb.Driver, *sqlfake.Script) {
	db, script := sqlfake.Open()
	c.Cleanup(func() { db.Close() })
	return rdb.NewDriver(db, platform.MySQL), script
}

func TestExpressions(t *testing.T) {
	row := batch.Row{"first": "Ada", "last": "Lovelace", "country": "Belgium", "code": "BE", "n": "4"}
	tests := []struct {
		expr     string
		expected string
	}{
		{expr: "=first", expected: "Ada"},
		{expr: "'=not a column", expected: "=not a column"},
		{expr: "plain text", expected: "plain text"},
		{expr: "$source", expected: "import"},
		{expr: "$batch", expected: "7"},
		{expr: "#countries(Netherlands)", expected: "NL"},
		{expr: "#cities(Amsterdam, 'NL)", expected: "AMS"},
		{expr: "#sysCountries(=country)", expected: "BE"},
		{expr: "#sysCities(Brussels, =code)", expected: "BRU"},
		{expr: "&join(=first, ' ', =last)", expected: "Ada Lovelace"},
		{expr: "&total(=n, 3)", expected: "7"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			c := qt.New(t)
			driver, script := newDriver(c)
			s := parse(c, noteSpec(tt.expr))

			res, err := upload.NewUploader(s, driver).Upload(context.Background(), batch.NewRows(row), form.NewServiceContext("u1", nil), false)
			c.Assert(err, qt.IsNil)
			c.Assert(res.NbrErrors, qt.Equals, 0, qt.Commentf("%v", res.Errors))
			execs := script.CallsOf(sqlfake.KindExec)
			c.Assert(execs, qt.HasLen, 1)
			c.Assert(execs[0].SQL, qt.Equals, "INSERT INTO note(text) values (?)")
			c.Assert(execs[0].Args, qt.DeepEquals, []any{tt.expected})
		})
	}
}

func TestExpressions_LookupMissIsMissingValue(t *testing.T) {
	c := qt.New(t)
	s := parse(c, noteSpec("#countries(=first)"))

	res, err := upload.NewUploader(s, nil).Upload(context.Background(),
		batch.NewRows(batch.Row{"first": "Atlantis"}), form.NewServiceContext("u1", nil), true)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Errors, qt.DeepEquals, []batch.RowError{{
		Row:      0,
		Messages: []message.Message{message.NewFieldError("text", message.FieldRequired)},
	}})
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "not json", data: []byte(`{`)},
		{name: "no inserts", data: []byte(`{"inserts": []}`)},
		{name: "unknown form", data: []byte(`{"inserts": [{"form": "nope", "fields": {}}]}`)},
		{name: "no fields", data: []byte(`{"inserts": [{"form": "note"}]}`)},
		{name: "unknown field", data: []byte(`{"inserts": [{"form": "note", "fields": {"nope": "'x"}}]}`)},
		{name: "unknown system list", data: []byte(`{"lookups": {"l": "nope"}, "inserts": [{"form": "note", "fields": {"text": "'x"}}]}`)},
		{name: "mixed lookup", data: []byte(`{"lookups": {"l": {"a": "x", "b": {"c": "d"}}}, "inserts": [{"form": "note", "fields": {"text": "'x"}}]}`)},
		{name: "unknown app function", data: []byte(`{"functions": {"f": "nope"}, "inserts": [{"form": "note", "fields": {"text": "'x"}}]}`)},
		{name: "object param", data: []byte(`{"params": {"p": {}}, "inserts": [{"form": "note", "fields": {"text": "'x"}}]}`)},
		{name: "empty expression", data: noteSpec("")},
		{name: "empty column", data: noteSpec("=")},
		{name: "undefined param", data: noteSpec("$nope")},
		{name: "undefined lookup", data: noteSpec("#nope(x)")},
		{name: "undefined function", data: noteSpec("&nope(x)")},
		{name: "nested lookup", data: noteSpec("#countries(#countries(x))")},
		{name: "nested function", data: noteSpec("&join(&join(x))")},
		{name: "unclosed call", data: noteSpec("&join(x")},
		{name: "no arguments", data: noteSpec("&join()")},
		{name: "keyed lookup with one argument", data: noteSpec("#cities(x)")},
		{name: "simple lookup with two arguments", data: noteSpec("#countries(x, y)")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			_, err := upload.Parse(context.Background(), "test", tt.data, newComponents())
			c.Assert(errors.Is(err, upload.ErrInvalidSpec), qt.IsTrue, qt.Commentf("%v", err))
		})
	}
}

func TestParse_NamedLookupErrors(t *testing.T) {
	c := qt.New(t)
	_, err := upload.Parse(context.Background(), "test", noteSpec("#cities(x)"), newComponents())
	c.Assert(err, qt.ErrorMatches, "insert 0: field text: invalid upload spec: keyed lookup cities takes a text and a key")
}

func TestUpload_PublishesGeneratedKey(t *testing.T) {
	c := qt.New(t)
	driver, script := newDriver(c)
	s := parse(c, []byte(customerSpec))

	src := batch.NewRows(
		batch.Row{"name": "Acme", "email": "a@acme.io"},
		batch.Row{"name": "Beta", "email": "not an email"},
	)
	res, err := upload.NewUploader(s, driver).Upload(context.Background(), src, form.NewServiceContext("u1", nil), false)
	c.Assert(err, qt.IsNil)
	c.Assert(res.NbrRows, qt.Equals, 2)
	c.Assert(res.NbrErrors, qt.Equals, 1)
	c.Assert(res.Errors[0].Row, qt.Equals, 1)

	execs := script.CallsOf(sqlfake.KindExec)
	c.Assert(execs, qt.HasLen, 3)
	c.Assert(execs[1].SQL, qt.Equals, "INSERT INTO contact(customer_id,email) values (?,?)")
	c.Assert(execs[1].Args, qt.DeepEquals, []any{int64(1), "a@acme.io"})
	c.Assert(script.Count(sqlfake.KindCommit), qt.Equals, 1)
	c.Assert(script.Count(sqlfake.KindRollback), qt.Equals, 1)
}

func TestUpload_DryRun(t *testing.T) {
	c := qt.New(t)
	s := parse(c, []byte(customerSpec))

	res, err := upload.NewUploader(s, nil).Upload(context.Background(),
		batch.NewRows(batch.Row{"name": "Acme", "email": "a@acme.io"}), form.NewServiceContext("u1", nil), true)
	c.Assert(err, qt.IsNil)
	c.Assert(res.DryRun, qt.IsTrue)
	c.Assert(res.Spec, qt.Equals, "test")
	c.Assert(res.NbrRows, qt.Equals, 1)
	c.Assert(res.NbrErrors, qt.Equals, 0)
	c.Assert(res.RunID, qt.Not(qt.Equals), uuid.Nil)
	c.Assert(res.DoneAt.Before(res.StartedAt), qt.IsFalse)
}

func TestUpload_Faults(t *testing.T) {
	c := qt.New(t)
	s := parse(c, []byte(customerSpec))

	_, err := upload.NewUploader(s, nil).Upload(context.Background(), batch.NewRows(), form.NewServiceContext("u1", nil), false)
	c.Assert(errors.Is(err, rdb.ErrNoDriver), qt.IsTrue)

	src := batch.RowSourceFunc(func([]message.Message) (batch.Row, bool, error) {
		return nil, false, errors.New("disk gone")
	})
	res, err := upload.NewUploader(s, nil).Upload(context.Background(), src, form.NewServiceContext("u1", nil), true)
	c.Assert(err, qt.ErrorMatches, "upload test failed: failed to read row 0: disk gone")
	c.Assert(res, qt.IsNotNil)
	c.Assert(res.NbrRows, qt.Equals, 0)
}
