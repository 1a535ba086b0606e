package form_test

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/formkit/core/datatype"
	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/message"
	"github.com/stokaro/formkit/core/platform"
	"github.com/stokaro/formkit/core/rdb"
	"github.com/stokaro/formkit/core/valuelist"
	"github.com/stokaro/formkit/internal/sqlfake"
)

const invalidLines = "invalidLines"

var lineSpec = form.Spec{
	Name:  "line",
	Table: "invoice_line",
	Fields: []form.FieldSpec{
		{Name: "invoiceId", DataType: datatype.IntegerName, Column: "invoice_id", Role: form.PrimaryAndParentKey},
		{Name: "lineNbr", DataType: datatype.IntegerName, Column: "line_nbr", Role: form.PrimaryKey},
		{Name: "description", DataType: datatype.TextName, Role: form.RequiredData},
		{Name: "amount", DataType: "amount", Role: form.OptionalData},
	},
}

var invoiceSpec = form.Spec{
	Name:  "invoice",
	Table: "invoice",
	Fields: []form.FieldSpec{
		{Name: "invoiceId", DataType: datatype.IntegerName, Column: "invoice_id", Role: form.GeneratedPrimaryKey},
		{Name: "tenantId", DataType: datatype.IntegerName, Column: "tenant_id", Role: form.TenantKey},
		{Name: "customer", DataType: datatype.TextName, Role: form.RequiredData},
		{Name: "amount", DataType: "amount", Role: form.RequiredData},
		{Name: "status", DataType: datatype.TextName, Default: "draft", ValueList: "statuses", Role: form.OptionalData},
		{Name: "invoiceDate", DataType: datatype.DateName, Column: "invoice_date", Role: form.OptionalData},
		{Name: "dueDate", DataType: datatype.DateName, Column: "due_date", Role: form.OptionalData},
		{Name: "createdBy", DataType: datatype.TextName, Column: "created_by", Role: form.CreatedBy},
		{Name: "createdAt", DataType: datatype.TimestampName, Column: "created_at", Role: form.CreatedAt},
		{Name: "modifiedAt", DataType: datatype.TimestampName, Column: "modified_at", Role: form.ModifiedAt},
	},
	Children: []form.ChildSpec{{
		Name:             "lines",
		Form:             "line",
		Tabular:          true,
		MinRows:          1,
		ErrorMessageID:   invalidLines,
		LinkParentFields: []string{"invoiceId"},
		LinkChildFields:  []string{"invoiceId"},
	}},
	Validations: []form.ValidationSpec{
		form.FromTo{From: "invoiceDate", To: "dueDate", EqualOK: true},
	},
}

var customerSpec = form.Spec{
	Name:           "customer",
	Version:        "2",
	Table:          "customer",
	TimestampCheck: true,
	UserIDField:    "owner",
	Fields: []form.FieldSpec{
		{Name: "id", DataType: datatype.IntegerName, Role: form.GeneratedPrimaryKey},
		{Name: "code", DataType: datatype.IdentifierName, Role: form.UniqueKey},
		{Name: "name", DataType: datatype.TextName, Role: form.RequiredData},
		{Name: "owner", DataType: datatype.TextName, Role: form.OptionalData},
		{Name: "modifiedAt", DataType: datatype.TimestampName, Column: "modified_at", Role: form.ModifiedAt},
	},
	Operations: []form.IoType{form.Get, form.Filter},
}

// fixture holds the forms shared by the tests of this package.
type fixture struct {
	lookup   *form.MapLookup
	line     *form.Form
	invoice  *form.Form
	customer *form.Form
}

func newFixture(c *qt.C) *fixture {
	lookup := &form.MapLookup{
		DataTypes: map[string]datatype.DataType{
			"amount": datatype.NewDecimal("amount", "invalidAmount", 0, 1_000_000, 2),
		},
		Lists: map[string]valuelist.ValueList{
			"statuses": valuelist.NewStatic("statuses",
				valuelist.Entry{Value: "draft", Text: "Draft"},
				valuelist.Entry{Value: "sent", Text: "Sent"},
				valuelist.Entry{Value: "paid", Text: "Paid"},
			),
		},
	}
	fx := &fixture{lookup: lookup}

	var err error
	fx.line, err = form.New(lineSpec, lookup)
	c.Assert(err, qt.IsNil)
	lookup.Add(fx.line)
	fx.invoice, err = form.New(invoiceSpec, lookup)
	c.Assert(err, qt.IsNil)
	lookup.Add(fx.invoice)
	fx.customer, err = form.New(customerSpec, lookup)
	c.Assert(err, qt.IsNil)
	return fx
}

func newDriver(c *qt.C, dialect string) (*rdb.Driver, *sqlfake.Script) {
	db, script := sqlfake.Open()
	c.Cleanup(func() { db.Close() })
	return rdb.NewDriver(db, dialect), script
}

func mysqlDriver(c *qt.C) (*rdb.Driver, *sqlfake.Script) {
	return newDriver(c, platform.MySQL)
}

func load(c *qt.C, f *form.Form, payload string, opts form.LoadOptions) (*form.FormData, *form.ServiceContext) {
	c.Helper()
	m, err := form.DecodePayloadBytes([]byte(payload))
	c.Assert(err, qt.IsNil)
	sc := form.NewServiceContext("u1", int64(3))
	fd := f.NewFormData()
	c.Assert(fd.Load(context.Background(), m, opts, sc), qt.IsNil)
	return fd, sc
}

func messageIDs(msgs []message.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestFixture(t *testing.T) {
	c := qt.New(t)
	fx := newFixture(c)
	c.Assert(fx.invoice.NbrFields(), qt.Equals, len(invoiceSpec.Fields))
	c.Assert(fx.customer.ID(), qt.Equals, "customer_2")
}
