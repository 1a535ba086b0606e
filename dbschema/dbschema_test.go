package dbschema_test

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/formkit/config"
	"github.com/stokaro/formkit/core/datatype"
	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/platform"
	"github.com/stokaro/formkit/core/rdb"
	"github.com/stokaro/formkit/core/valuetype"
	"github.com/stokaro/formkit/dbschema"
	"github.com/stokaro/formkit/dbschema/types"
	"github.com/stokaro/formkit/internal/sqlfake"
)

func TestReader(t *testing.T) {
	tests := []struct {
		dialect string
		table   string
		schema  string
		arg     string
	}{
		{dialect: platform.Postgres, table: "Invoice", schema: "current_schema()", arg: "invoice"},
		{dialect: platform.MySQL, table: "Invoice", schema: "DATABASE()", arg: "Invoice"},
	}

	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			c := qt.New(t)
			db, script := sqlfake.Open()
			c.Cleanup(func() { db.Close() })
			script.OnQuery("information_schema.columns", sqlfake.Rows{Values: [][]any{
				{"id", "INTEGER", "NO", int64(1)},
				{"note", "text", "YES", int64(2)},
			}})

			table, ok, err := dbschema.NewReader(rdb.NewDriver(db, tt.dialect)).ReadTable(context.Background(), tt.table)
			c.Assert(err, qt.IsNil)
			c.Assert(ok, qt.IsTrue)
			c.Assert(table.Columns, qt.DeepEquals, []types.DBColumn{
				{Name: "id", DataType: "integer", IsNullable: "NO", OrdinalPosition: 1},
				{Name: "note", DataType: "text", IsNullable: "YES", OrdinalPosition: 2},
			})
			c.Assert(table.Columns[1].Nullable(), qt.IsTrue)

			queries := script.CallsOf(sqlfake.KindQuery)
			c.Assert(queries, qt.HasLen, 1)
			c.Assert(queries[0].SQL, qt.Contains, "table_schema = "+tt.schema)
			c.Assert(queries[0].Args, qt.DeepEquals, []any{tt.arg})
		})
	}
}

func TestReader_MissingTable(t *testing.T) {
	c := qt.New(t)
	db, _ := sqlfake.Open()
	c.Cleanup(func() { db.Close() })

	table, ok, err := dbschema.NewReader(rdb.NewDriver(db, platform.MySQL)).ReadTable(context.Background(), "nope")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
	c.Assert(table, qt.IsNil)
}

func TestReader_Error(t *testing.T) {
	c := qt.New(t)
	db, script := sqlfake.Open()
	c.Cleanup(func() { db.Close() })
	script.OnQuery("information_schema", sqlfake.Rows{Err: errors.New("denied")})

	_, _, err := dbschema.NewReader(rdb.NewDriver(db, platform.MySQL)).ReadTable(context.Background(), "invoice")
	c.Assert(err, qt.ErrorMatches, "failed to read columns of table invoice: .*denied")
}

type fakeReader map[string]*types.DBTable

func (r fakeReader) ReadTable(_ context.Context, name string) (*types.DBTable, bool, error) {
	t, ok := r[name]
	return t, ok, nil
}

func newForms(c *qt.C) []*form.Form {
	lookup := &form.MapLookup{}
	line := form.MustNew(form.Spec{
		Name:  "invoiceLine",
		Table: "invoice_line",
		Fields: []form.FieldSpec{
			{Name: "invoiceId", DataType: datatype.IntegerName, Column: "invoice_id", Role: form.PrimaryAndParentKey},
			{Name: "amount", DataType: datatype.DecimalName, Role: form.RequiredData},
		},
	}, lookup)
	lookup.Add(line)
	invoice, err := form.New(form.Spec{
		Name:  "invoice",
		Table: "invoice",
		Fields: []form.FieldSpec{
			{Name: "id", DataType: datatype.IntegerName, Role: form.GeneratedPrimaryKey},
			{Name: "paid", DataType: datatype.BooleanName, Role: form.OptionalData},
			{Name: "issuedOn", DataType: datatype.DateName, Column: "issued_on", Role: form.RequiredData},
			{Name: "total", DataType: datatype.DecimalName},
		},
		Children: []form.ChildSpec{{Name: "lines", Form: "invoiceLine", LinkParentFields: []string{"id"}, LinkChildFields: []string{"invoiceId"}}},
	}, lookup)
	c.Assert(err, qt.IsNil)
	search := form.MustNew(form.Spec{Name: "search", Fields: []form.FieldSpec{{Name: "q", DataType: datatype.TextName}}}, lookup)
	return []*form.Form{invoice, search, line}
}

func TestVerify(t *testing.T) {
	c := qt.New(t)
	reader := fakeReader{
		"invoice": {Name: "invoice", Columns: []types.DBColumn{
			{Name: "id", DataType: "bigint"},
			{Name: "paid", DataType: "tinyint"},
			{Name: "issued_on", DataType: "timestamp"},
		}},
	}

	problems, err := dbschema.Verify(context.Background(), reader, newForms(c))
	c.Assert(err, qt.IsNil)
	c.Assert(problems, qt.DeepEquals, []dbschema.Problem{
		{Form: "invoice", Table: "invoice", Column: "issued_on", Issue: "is timestamp, field issuedOn needs date"},
		{Form: "invoiceLine", Table: "invoice_line", Issue: "does not exist"},
	})
	c.Assert(problems[0].String(), qt.Equals, "invoice: column invoice.issued_on is timestamp, field issuedOn needs date")
	c.Assert(problems[1].String(), qt.Equals, "invoiceLine: table invoice_line does not exist")
}

func TestVerify_MissingColumn(t *testing.T) {
	c := qt.New(t)
	reader := fakeReader{
		"invoice": {Name: "invoice", Columns: []types.DBColumn{
			{Name: "ID", DataType: "integer"},
			{Name: "issued_on", DataType: "date"},
		}},
		"invoice_line": {Name: "invoice_line", Columns: []types.DBColumn{
			{Name: "invoice_id", DataType: "integer"},
			{Name: "amount", DataType: "numeric"},
		}},
	}

	problems, err := dbschema.Verify(context.Background(), reader, newForms(c))
	c.Assert(err, qt.IsNil)
	c.Assert(problems, qt.DeepEquals, []dbschema.Problem{
		{Form: "invoice", Table: "invoice", Column: "paid", Issue: "does not exist"},
	})
}

func TestCompatible(t *testing.T) {
	c := qt.New(t)
	c.Assert(dbschema.Compatible(valuetype.Text, "character varying"), qt.IsTrue)
	c.Assert(dbschema.Compatible(valuetype.Integer, "BIGINT"), qt.IsTrue)
	c.Assert(dbschema.Compatible(valuetype.Boolean, "tinyint"), qt.IsTrue)
	c.Assert(dbschema.Compatible(valuetype.Integer, "varchar"), qt.IsFalse)
	c.Assert(dbschema.Compatible(valuetype.Timestamp, "datetime"), qt.IsTrue)
	c.Assert(dbschema.Compatible(valuetype.Text, "tsvector"), qt.IsTrue)
}

func TestDialectOf(t *testing.T) {
	c := qt.New(t)
	c.Assert(dbschema.DialectOf(config.DatabaseConfig{}), qt.Equals, "")
	c.Assert(dbschema.DialectOf(config.DatabaseConfig{DSN: "postgresql://localhost/app"}), qt.Equals, platform.Postgres)
	c.Assert(dbschema.DialectOf(config.DatabaseConfig{DSN: "root@tcp(localhost)/app"}), qt.Equals, platform.MySQL)
	c.Assert(dbschema.DialectOf(config.DatabaseConfig{DSN: "root@tcp(localhost)/app", Dialect: "mariadb"}), qt.Equals, platform.MariaDB)
}

func TestConnect_Errors(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.DatabaseConfig
		expected string
	}{
		{name: "no dsn", expected: "no database dsn configured"},
		{name: "unknown dialect", cfg: config.DatabaseConfig{DSN: "x", Dialect: "sqlite"}, expected: `unsupported database dialect "sqlite"`},
		{name: "bad mysql dsn", cfg: config.DatabaseConfig{DSN: "mysql://nope"}, expected: "failed to parse mysql dsn: .*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			_, err := dbschema.Connect(context.Background(), tt.cfg)
			c.Assert(err, qt.ErrorMatches, tt.expected)
		})
	}
}
