// Package upload implements the upload command.
package upload

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/formkit/batch"
	"github.com/stokaro/formkit/core/app"
	"github.com/stokaro/formkit/core/form"
	fkupload "github.com/stokaro/formkit/upload"
)

const (
	specFlag   = "spec"
	inputFlag  = "input"
	formatFlag = "format"
	userFlag   = "user"
	tenantFlag = "tenant"
	dryRunFlag = "dry-run"
)

var uploadFlags = map[string]cobraflags.Flag{
	specFlag: &cobraflags.StringFlag{
		Name:  specFlag,
		Value: "",
		Usage: "Name of the upload spec (required)",
	},
	inputFlag: &cobraflags.StringFlag{
		Name:  inputFlag,
		Value: "",
		Usage: "CSV or JSON file with the rows to upload (required)",
	},
	formatFlag: &cobraflags.StringFlag{
		Name:  formatFlag,
		Value: "",
		Usage: "Input format (csv, json). If empty, taken from the file extension",
	},
	userFlag: &cobraflags.StringFlag{
		Name:  userFlag,
		Value: "",
		Usage: "User id the rows are uploaded as",
	},
	tenantFlag: &cobraflags.StringFlag{
		Name:  tenantFlag,
		Value: "",
		Usage: "Tenant id the rows are uploaded for",
	},
}

// NewUploadCommand creates the upload command.
func NewUploadCommand(a *app.App) *cobra.Command {
	var dryRun bool
	uploadCmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload rows through an upload spec",
		Long: `Upload the rows of a CSV or JSON file through an upload spec.

Every row is validated and written in its own transaction. With --dry-run the
rows are validated only and nothing is written. The result, with the messages
of every rejected row, is printed as JSON.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return uploadCommand(cmd, a, dryRun)
		},
	}
	cobraflags.RegisterMap(uploadCmd, uploadFlags)
	uploadCmd.Flags().BoolVar(&dryRun, dryRunFlag, false, "Validate the rows without writing them")
	return uploadCmd
}

func uploadCommand(cmd *cobra.Command, a *app.App, dryRun bool) error {
	specName := uploadFlags[specFlag].GetString()
	input := uploadFlags[inputFlag].GetString()
	if specName == "" || input == "" {
		return fmt.Errorf("--%s and --%s are required", specFlag, inputFlag)
	}

	ctx := cmd.Context()
	if !dryRun || a.Config.Database.DSN != "" {
		if err := a.Connect(ctx); err != nil {
			return err
		}
	}
	u, err := a.Uploader(ctx, specName)
	if err != nil {
		return err
	}

	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()
	src, err := rowSource(f, input, uploadFlags[formatFlag].GetString(), a.Logger)
	if err != nil {
		return err
	}

	sc := form.NewServiceContext(uploadFlags[userFlag].GetString(), tenantID(uploadFlags[tenantFlag].GetString()))
	res, err := u.Upload(ctx, src, sc, dryRun)
	if res != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(res); encErr != nil && err == nil {
			err = fmt.Errorf("failed to print result: %w", encErr)
		}
	}
	return err
}

func rowSource(f *os.File, path, format string, logger *slog.Logger) (batch.RowSource, error) {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch format {
	case "csv":
		return fkupload.NewCSVSource(f).WithLogger(logger), nil
	case "json":
		return fkupload.NewJSONSource(f), nil
	default:
		return nil, fmt.Errorf("unsupported input format %q, use csv or json", format)
	}
}

// tenantID passes numeric tenants as integers, matching integer tenant columns.
func tenantID(s string) any {
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}
