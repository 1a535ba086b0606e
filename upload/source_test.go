package upload_test

import (
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/formkit/batch"
	"github.com/stokaro/formkit/upload"
)

func drain(c *qt.C, src batch.RowSource) ([]batch.Row, error) {
	c.Helper()
	var rows []batch.Row
	for {
		row, more, err := src.NextRow(nil)
		if err != nil || !more {
			return rows, err
		}
		rows = append(rows, row)
	}
}

func TestCSVSource(t *testing.T) {
	c := qt.New(t)
	data := "name, email\nAcme,a@acme.io\n\"Beta, Inc\",\nGamma\n"

	rows, err := drain(c, upload.NewCSVSource(strings.NewReader(data)))
	c.Assert(err, qt.IsNil)
	c.Assert(rows, qt.DeepEquals, []batch.Row{
		{"name": "Acme", "email": "a@acme.io"},
		{"name": "Beta, Inc", "email": ""},
		{"name": "Gamma"},
	})
}

func TestCSVSource_Errors(t *testing.T) {
	c := qt.New(t)

	rows, err := drain(c, upload.NewCSVSource(strings.NewReader("")))
	c.Assert(err, qt.IsNil)
	c.Assert(rows, qt.HasLen, 0)

	_, err = drain(c, upload.NewCSVSource(strings.NewReader("a\n1\n1,2\n")))
	c.Assert(err, qt.ErrorMatches, "csv line 3 has 2 values for 1 columns")

	_, err = drain(c, upload.NewCSVSource(strings.NewReader("a\n\"open\n")))
	c.Assert(err, qt.ErrorMatches, "failed to read csv record: .*")
}

func TestJSONSource(t *testing.T) {
	c := qt.New(t)
	data := `[{"name": "Acme", "size": 12.5, "vip": true, "notes": null}, {"name": "Beta"}]`

	rows, err := drain(c, upload.NewJSONSource(strings.NewReader(data)))
	c.Assert(err, qt.IsNil)
	c.Assert(rows, qt.DeepEquals, []batch.Row{
		{"name": "Acme", "size": "12.5", "vip": "true"},
		{"name": "Beta"},
	})
}

func TestJSONSource_Errors(t *testing.T) {
	tests := []struct {
		data     string
		expected string
	}{
		{data: `{"name": "x"}`, expected: "json rows must be an array, got \\{"},
		{data: `[1]`, expected: "failed to read json row 0: .*"},
		{data: `[null]`, expected: "json row 0 is not an object"},
		{data: `[{"a": "x"}, {"a": {"b": 1}}]`, expected: "json row 1: a must be a primitive value"},
		{data: ``, expected: "failed to read json rows: EOF"},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			c := qt.New(t)
			_, err := drain(c, upload.NewJSONSource(strings.NewReader(tt.data)))
			c.Assert(err, qt.ErrorMatches, tt.expected)
		})
	}
}
