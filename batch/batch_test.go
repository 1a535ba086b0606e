package batch_test

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/go-sql-driver/mysql"

	"github.com/stokaro/formkit/batch"
	"github.com/stokaro/formkit/core/datatype"
	"github.com/stokaro/formkit/core/fn"
	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/message"
	"github.com/stokaro/formkit/core/platform"
	"github.com/stokaro/formkit/core/rdb"
	"github.com/stokaro/formkit/internal/sqlfake"
)

type fixture struct {
	customer *form.Form
	contact  *form.Form
}

func newFixture(c *qt.C) *fixture {
	lookup := &form.MapLookup{}
	return &fixture{
		customer: form.MustNew(form.Spec{
			Name:  "customer",
			Table: "customer",
			Fields: []form.FieldSpec{
				{Name: "id", DataType: datatype.IntegerName, Role: form.GeneratedPrimaryKey},
				{Name: "name", DataType: datatype.TextName, Role: form.RequiredData},
			},
		}, lookup),
		contact: form.MustNew(form.Spec{
			Name:  "contact",
			Table: "contact",
			Fields: []form.FieldSpec{
				{Name: "customerId", DataType: datatype.IntegerName, Column: "customer_id", Role: form.RequiredData},
				{Name: "email", DataType: datatype.EmailName, Role: form.RequiredData},
			},
		}, lookup),
	}
}

func (fx *fixture) processor(c *qt.C) *batch.RowProcessor {
	customer, err := batch.NewFormMapper(fx.customer, "customerKey", map[string]batch.ValueProvider{
		"name": batch.Column{Name: "name"},
	})
	c.Assert(err, qt.IsNil)
	contact, err := batch.NewFormMapper(fx.contact, "", map[string]batch.ValueProvider{
		"customerId": batch.Column{Name: "customerKey"},
		"email":      batch.Column{Name: "email"},
	})
	c.Assert(err, qt.IsNil)
	return batch.NewRowProcessor(customer, contact)
}

func threeRows() *batch.Rows {
	return batch.NewRows(
		batch.Row{"name": "Acme", "email": "a@acme.io"},
		batch.Row{"name": "", "email": "b@beta.io"},
		batch.Row{"name": "Gamma", "email": "c@gamma.io"},
	)
}

func newDriver(c *qt.C) (*rdb.Driver, *sqlfake.Script) {
	db, script := sqlfake.Open()
	c.Cleanup(func() { db.Close() })
	return rdb.NewDriver(db, platform.MySQL), script
}

func TestValidate_RowIsolation(t *testing.T) {
	c := qt.New(t)
	fx := newFixture(c)
	src := threeRows()

	res, err := fx.processor(c).Validate(context.Background(), src, form.NewServiceContext("u1", nil))
	c.Assert(err, qt.IsNil)
	c.Assert(res.NbrRows, qt.Equals, 3)
	c.Assert(res.NbrErrors, qt.Equals, 1)
	c.Assert(res.Errors, qt.DeepEquals, []batch.RowError{{
		Row: 1,
		Messages: []message.Message{
			message.NewFieldError("name", message.FieldRequired),
			message.NewFieldError("customerId", message.FieldRequired),
		},
	}})

	acks := src.Acks()
	c.Assert(acks, qt.HasLen, 3)
	c.Assert(acks[0], qt.HasLen, 0)
	c.Assert(acks[1], qt.HasLen, 2)
	c.Assert(acks[2], qt.HasLen, 0)
}

func TestValidate_DoesNotChangeInput(t *testing.T) {
	c := qt.New(t)
	fx := newFixture(c)
	row := batch.Row{"name": "Acme", "email": "a@acme.io"}

	_, err := fx.processor(c).Validate(context.Background(), batch.NewRows(row), form.NewServiceContext("u1", nil))
	c.Assert(err, qt.IsNil)
	c.Assert(row, qt.DeepEquals, batch.Row{"name": "Acme", "email": "a@acme.io"})
}

func TestProcess_CommitsPerRow(t *testing.T) {
	c := qt.New(t)
	fx := newFixture(c)
	driver, script := newDriver(c)

	res, err := fx.processor(c).Process(context.Background(), driver, threeRows(), form.NewServiceContext("u1", nil))
	c.Assert(err, qt.IsNil)
	c.Assert(res.NbrRows, qt.Equals, 3)
	c.Assert(res.NbrErrors, qt.Equals, 1)
	c.Assert(res.Errors[0].Row, qt.Equals, 1)

	kinds := make([]string, 0)
	for _, call := range script.Calls() {
		kinds = append(kinds, call.Kind)
	}
	c.Assert(kinds, qt.DeepEquals, []string{
		sqlfake.KindBegin, sqlfake.KindExec, sqlfake.KindExec, sqlfake.KindCommit,
		sqlfake.KindBegin, sqlfake.KindRollback,
		sqlfake.KindBegin, sqlfake.KindExec, sqlfake.KindExec, sqlfake.KindCommit,
	})

	execs := script.CallsOf(sqlfake.KindExec)
	c.Assert(execs[0].SQL, qt.Equals, "INSERT INTO customer(name) values (?)")
	c.Assert(execs[1].Args, qt.DeepEquals, []any{int64(1), "a@acme.io"})
	// the contact insert of the first row consumed id 2
	c.Assert(execs[3].Args, qt.DeepEquals, []any{int64(3), "c@gamma.io"})
}

func TestProcess_SQLFaultFailsOnlyItsRow(t *testing.T) {
	c := qt.New(t)
	fx := newFixture(c)
	driver, script := newDriver(c)
	script.OnExec("INSERT INTO contact",
		sqlfake.Result{Err: errors.New("foreign key violation")},
		sqlfake.Result{RowsAffected: 1},
	)

	src := batch.NewRows(
		batch.Row{"name": "Acme", "email": "a@acme.io"},
		batch.Row{"name": "Beta", "email": "b@beta.io"},
	)
	res, err := fx.processor(c).Process(context.Background(), driver, src, form.NewServiceContext("u1", nil))
	c.Assert(err, qt.IsNil)
	c.Assert(res.Errors, qt.DeepEquals, []batch.RowError{{
		Row:      0,
		Messages: []message.Message{message.NewError(message.SQLFault)},
	}})
	c.Assert(script.Count(sqlfake.KindRollback), qt.Equals, 1)
	c.Assert(script.Count(sqlfake.KindCommit), qt.Equals, 1)
}

func TestProcess_DuplicateKeyIsRowNotInserted(t *testing.T) {
	c := qt.New(t)
	fx := newFixture(c)
	driver, script := newDriver(c)
	script.OnExec("INSERT INTO contact",
		sqlfake.Result{RowsAffected: 1},
		sqlfake.Result{Err: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a@acme.io'"}},
	)

	src := batch.NewRows(
		batch.Row{"name": "Acme", "email": "a@acme.io"},
		batch.Row{"name": "Acme again", "email": "a@acme.io"},
	)
	res, err := fx.processor(c).Process(context.Background(), driver, src, form.NewServiceContext("u1", nil))
	c.Assert(err, qt.IsNil)
	c.Assert(res.Errors, qt.DeepEquals, []batch.RowError{{
		Row:      1,
		Messages: []message.Message{message.NewError(message.RowNotInserted)},
	}})
	c.Assert(script.Count(sqlfake.KindCommit), qt.Equals, 1)
	c.Assert(script.Count(sqlfake.KindRollback), qt.Equals, 1)
}

func TestProcess_RowNotInserted(t *testing.T) {
	c := qt.New(t)
	fx := newFixture(c)
	driver, script := newDriver(c)
	script.OnExec("INSERT INTO customer", sqlfake.Result{RowsAffected: 0})

	res, err := fx.processor(c).Process(context.Background(), driver,
		batch.NewRows(batch.Row{"name": "Acme", "email": "a@acme.io"}), form.NewServiceContext("u1", nil))
	c.Assert(err, qt.IsNil)
	c.Assert(res.Errors[0].Messages, qt.DeepEquals, []message.Message{message.NewError(message.RowNotInserted)})
	c.Assert(script.Count(sqlfake.KindExec), qt.Equals, 1)
	c.Assert(script.Count(sqlfake.KindRollback), qt.Equals, 1)
}

func TestProcess_Faults(t *testing.T) {
	c := qt.New(t)
	fx := newFixture(c)

	c.Run("begin", func(c *qt.C) {
		driver, script := newDriver(c)
		script.FailBegin(errors.New("no connection"))
		_, err := fx.processor(c).Process(context.Background(), driver, threeRows(), form.NewServiceContext("u1", nil))
		c.Assert(err, qt.ErrorMatches, "failed to process row 0: failed to begin transaction: no connection")
	})

	c.Run("source", func(c *qt.C) {
		driver, _ := newDriver(c)
		src := batch.RowSourceFunc(func([]message.Message) (batch.Row, bool, error) {
			return nil, false, errors.New("bad csv")
		})
		res, err := fx.processor(c).Process(context.Background(), driver, src, form.NewServiceContext("u1", nil))
		c.Assert(err, qt.ErrorMatches, "failed to read row 0: bad csv")
		c.Assert(res.NbrRows, qt.Equals, 0)
	})
}

func TestNewFormMapper(t *testing.T) {
	c := qt.New(t)
	fx := newFixture(c)

	_, err := batch.NewFormMapper(fx.customer, "", map[string]batch.ValueProvider{"nope": batch.Constant("x")})
	c.Assert(err, qt.ErrorMatches, "nope is not a field of form customer")

	_, err = batch.NewFormMapper(fx.customer, "", map[string]batch.ValueProvider{"name": nil})
	c.Assert(err, qt.ErrorMatches, "field name of form customer has no value provider")

	_, err = batch.NewFormMapper(fx.contact, "contactKey", nil)
	c.Assert(err, qt.ErrorMatches, "form contact has no key to publish as contactKey")

	m, err := batch.NewFormMapper(fx.customer, "k", nil)
	c.Assert(err, qt.IsNil)
	c.Assert(m.Form(), qt.Equals, fx.customer)
	c.Assert(m.GeneratedKey(), qt.Equals, "k")
}

func TestValueProviders(t *testing.T) {
	row := batch.Row{"city": "Mysore", "state": "KA", "a": "2", "b": "40", "bad": "x"}
	cities := map[string]string{"KA|Mysore": "17", "Delhi": "1"}

	tests := []struct {
		name     string
		provider batch.ValueProvider
		value    string
		ok       bool
		err      string
	}{
		{name: "constant", provider: batch.Constant("x"), value: "x", ok: true},
		{name: "column", provider: batch.Column{Name: "city"}, value: "Mysore", ok: true},
		{name: "missing column", provider: batch.Column{Name: "zip"}},
		{name: "column fallback", provider: batch.Column{Name: "zip", Fallback: "000"}, value: "000", ok: true},
		{
			name:     "keyed lookup",
			provider: batch.Lookup{Table: cities, Text: batch.Column{Name: "city"}, Key: batch.Column{Name: "state"}},
			value:    "17",
			ok:       true,
		},
		{
			name:     "lookup miss",
			provider: batch.Lookup{Table: cities, Text: batch.Column{Name: "city"}},
		},
		{
			name:     "lookup without key value",
			provider: batch.Lookup{Table: cities, Text: batch.Column{Name: "city"}, Key: batch.Column{Name: "zip"}},
		},
		{
			name:     "simple lookup",
			provider: batch.Lookup{Table: cities, Text: batch.Constant("Delhi")},
			value:    "1",
			ok:       true,
		},
		{
			name:     "function",
			provider: batch.Function{Fn: fn.Sum(), Args: []batch.ValueProvider{batch.Column{Name: "a"}, batch.Column{Name: "b"}}},
			value:    "42",
			ok:       true,
		},
		{
			name:     "function over missing input",
			provider: batch.Function{Fn: fn.Concat(), Args: []batch.ValueProvider{batch.Column{Name: "state"}, batch.Column{Name: "zip"}}},
			value:    "KA",
			ok:       true,
		},
		{
			name:     "function rejects input",
			provider: batch.Function{Fn: fn.Sum(), Args: []batch.ValueProvider{batch.Column{Name: "bad"}}},
			err:      ".+",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			value, ok, err := tt.provider.Value(row)
			if tt.err != "" {
				c.Assert(err, qt.ErrorMatches, tt.err)
				return
			}
			c.Assert(err, qt.IsNil)
			c.Assert(value, qt.Equals, tt.value)
			c.Assert(ok, qt.Equals, tt.ok)
		})
	}
}

func TestFormMapper_ProviderErrorIsFieldMessage(t *testing.T) {
	c := qt.New(t)
	fx := newFixture(c)
	m, err := batch.NewFormMapper(fx.customer, "", map[string]batch.ValueProvider{
		"name": batch.Function{Fn: fn.Sum(), Args: []batch.ValueProvider{batch.Constant("x")}},
	})
	c.Assert(err, qt.IsNil)

	res, err := batch.NewRowProcessor(m).Validate(context.Background(), batch.NewRows(batch.Row{}), form.NewServiceContext("u1", nil))
	c.Assert(err, qt.IsNil)
	c.Assert(res.Errors[0].Messages, qt.DeepEquals, []message.Message{message.NewFieldError("name", datatype.DefaultMessageID)})
}
