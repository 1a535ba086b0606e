//go:build integration

package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/formkit/config"
	"github.com/stokaro/formkit/core/app"
	"github.com/stokaro/formkit/core/datatype"
	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/message"
	"github.com/stokaro/formkit/core/platform"
	"github.com/stokaro/formkit/dbschema"
	"github.com/stokaro/formkit/upload"
)

var contactSpec = form.Spec{
	Name:           "contact",
	Table:          "fk_contact",
	TimestampCheck: true,
	Fields: []form.FieldSpec{
		{Name: "id", DataType: datatype.IntegerName, Role: form.GeneratedPrimaryKey},
		{Name: "tenantId", DataType: datatype.IntegerName, Column: "tenant_id", Role: form.TenantKey},
		{Name: "email", DataType: datatype.EmailName, Role: form.UniqueKey},
		{Name: "name", DataType: datatype.TextName, Role: form.RequiredData},
		{Name: "modifiedAt", DataType: datatype.TimestampName, Column: "modified_at", Role: form.ModifiedAt},
	},
}

var schemas = map[string][]string{
	platform.Postgres: {
		`DROP TABLE IF EXISTS fk_contact`,
		`CREATE TABLE fk_contact (
			id BIGSERIAL PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			email VARCHAR(200) NOT NULL,
			name VARCHAR(200) NOT NULL,
			modified_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (tenant_id, email)
		)`,
	},
	platform.MySQL: {
		`DROP TABLE IF EXISTS fk_contact`,
		`CREATE TABLE fk_contact (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			email VARCHAR(200) NOT NULL,
			name VARCHAR(200) NOT NULL,
			modified_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			UNIQUE (tenant_id, email)
		)`,
	},
}

func databases(t *testing.T) map[string]string {
	dsns := map[string]string{}
	if dsn := os.Getenv("POSTGRES_TEST_DSN"); dsn != "" {
		dsns[platform.Postgres] = dsn
	}
	if dsn := os.Getenv("MYSQL_TEST_DSN"); dsn != "" {
		dsns[platform.MySQL] = dsn
	}
	if len(dsns) == 0 {
		t.Skip("Skipping integration tests: POSTGRES_TEST_DSN and MYSQL_TEST_DSN are not set")
	}
	return dsns
}

func newApp(c *qt.C, dialect, dsn string) *app.App {
	c.Helper()
	cfg := config.WithDSN(dsn)
	cfg.Database.Dialect = dialect
	a := app.New(cfg)
	c.Assert(a.Connect(context.Background()), qt.IsNil)
	c.Cleanup(func() { a.Close() })
	for _, stmt := range schemas[dialect] {
		_, err := a.Driver.DB().Exec(stmt)
		c.Assert(err, qt.IsNil, qt.Commentf("statement: %s", stmt))
	}
	a.MustRegisterForm(contactSpec)
	return a
}

func serve(c *qt.C, a *app.App, name, payload string) (*form.ServiceContext, string) {
	c.Helper()
	sc := form.NewServiceContext("tester", int64(3))
	var out bytes.Buffer
	err := a.Services().Serve(context.Background(), name, sc, []byte(payload), &out)
	c.Assert(err, qt.IsNil)
	return sc, out.String()
}

func TestRoundTrip(t *testing.T) {
	for dialect, dsn := range databases(t) {
		t.Run(dialect, func(t *testing.T) {
			c := qt.New(t)
			a := newApp(c, dialect, dsn)

			sc, out := serve(c, a, "create-contact", `{"email": "ada@x.io", "name": "Ada"}`)
			c.Assert(sc.Messages(), qt.HasLen, 0)
			var created map[string]any
			c.Assert(json.Unmarshal([]byte(out), &created), qt.IsNil)
			c.Assert(created["id"], qt.Not(qt.IsNil))

			sc, _ = serve(c, a, "create-contact", `{"email": "ada@x.io", "name": "Ada again"}`)
			c.Assert(sc.AllOK(), qt.IsFalse)

			sc, out = serve(c, a, "get-contact", `{"email": "ada@x.io"}`)
			c.Assert(sc.Messages(), qt.HasLen, 0)
			var fetched map[string]any
			c.Assert(json.Unmarshal([]byte(out), &fetched), qt.IsNil)
			c.Assert(fetched["name"], qt.Equals, "Ada")

			update, err := json.Marshal(map[string]any{
				"id":         fetched["id"],
				"email":      "ada@x.io",
				"name":       "Ada Lovelace",
				"modifiedAt": fetched["modifiedAt"],
			})
			c.Assert(err, qt.IsNil)
			sc, _ = serve(c, a, "update-contact", string(update))
			c.Assert(sc.Messages(), qt.HasLen, 0)

			sc, _ = serve(c, a, "update-contact", string(update))
			c.Assert(sc.Messages(), qt.DeepEquals, []message.Message{message.NewError(message.ConcurrentUpdate)})

			sc, out = serve(c, a, "filter-contact", `{"conditions": {"name": {"comp": "^", "value": "Ada"}}}`)
			c.Assert(sc.Messages(), qt.HasLen, 0)
			c.Assert(out, qt.Contains, "Ada Lovelace")

			id, err := json.Marshal(fetched["id"])
			c.Assert(err, qt.IsNil)
			sc, _ = serve(c, a, "delete-contact", `{"id": `+string(id)+`}`)
			c.Assert(sc.Messages(), qt.HasLen, 0)
			sc, _ = serve(c, a, "get-contact", `{"email": "ada@x.io"}`)
			c.Assert(sc.Messages(), qt.DeepEquals, []message.Message{message.NewError(message.NoRowsFound)})
		})
	}
}

func TestUploadAndVerify(t *testing.T) {
	for dialect, dsn := range databases(t) {
		t.Run(dialect, func(t *testing.T) {
			c := qt.New(t)
			a := newApp(c, dialect, dsn)
			ctx := context.Background()

			spec, err := upload.Parse(ctx, "contacts", []byte(`{"inserts": [{"form": "contact", "fields": {"email": "=email", "name": "=name"}}]}`), a)
			c.Assert(err, qt.IsNil)
			src := upload.NewCSVSource(strings.NewReader("email,name\nb@x.io,Bob\nbad,Eve\nc@x.io,Carol\n"))
			res, err := upload.NewUploader(spec, a.Driver).Upload(ctx, src, form.NewServiceContext("tester", int64(3)), false)
			c.Assert(err, qt.IsNil)
			c.Assert(res.NbrRows, qt.Equals, 3)
			c.Assert(res.NbrErrors, qt.Equals, 1)

			var count int
			c.Assert(a.Driver.DB().QueryRow("SELECT COUNT(*) FROM fk_contact").Scan(&count), qt.IsNil)
			c.Assert(count, qt.Equals, 2)

			forms, err := a.AllForms()
			c.Assert(err, qt.IsNil)
			problems, err := dbschema.Verify(ctx, dbschema.NewReader(a.Driver), forms)
			c.Assert(err, qt.IsNil)
			c.Assert(problems, qt.HasLen, 0)
		})
	}
}
