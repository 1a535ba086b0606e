package upload

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stokaro/formkit/batch"
	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/rdb"
)

// Result describes one upload run.
type Result struct {
	RunID     uuid.UUID `json:"runId"`
	Spec      string    `json:"spec"`
	DryRun    bool      `json:"dryRun"`
	StartedAt time.Time `json:"startedAt"`
	DoneAt    time.Time `json:"doneAt"`
	batch.Result
}

// Uploader runs the rows of a source through a specification.
type Uploader struct {
	spec   *Spec
	driver *rdb.Driver
	logger *slog.Logger
	now    func() time.Time
}

// NewUploader returns an uploader for spec. driver may be nil for dry runs.
func NewUploader(spec *Spec, driver *rdb.Driver) *Uploader {
	return &Uploader{
		spec:   spec,
		driver: driver,
		logger: slog.Default(),
		now:    time.Now,
	}
}

// WithLogger sets the logger for the uploader
func (u *Uploader) WithLogger(l *slog.Logger) *Uploader {
	tmp := *u
	tmp.logger = l
	return &tmp
}

// Upload reads every row of src. A dry run only validates; otherwise each
// row is inserted in its own transaction. The returned result is partial
// when an error ends the run early.
func (u *Uploader) Upload(ctx context.Context, src batch.RowSource, sc *form.ServiceContext, dryRun bool) (*Result, error) {
	if !dryRun && u.driver == nil {
		return nil, rdb.ErrNoDriver
	}
	res := &Result{
		RunID:     uuid.New(),
		Spec:      u.spec.Name,
		DryRun:    dryRun,
		StartedAt: u.now(),
	}
	logger := u.logger.With("run", res.RunID.String(), "spec", u.spec.Name)
	logger.Info("Upload started", "dryRun", dryRun)

	p := u.spec.Processor().WithLogger(logger)
	var (
		br  *batch.Result
		err error
	)
	if dryRun {
		br, err = p.Validate(ctx, src, sc)
	} else {
		br, err = p.Process(ctx, u.driver, src, sc)
	}
	if br != nil {
		res.Result = *br
	}
	res.DoneAt = u.now()
	if err != nil {
		logger.Error("Upload failed", "rows", res.NbrRows, "error", err)
		return res, fmt.Errorf("upload %s failed: %w", u.spec.Name, err)
	}
	logger.Info("Upload done", "rows", res.NbrRows, "errors", res.NbrErrors, "elapsed", res.DoneAt.Sub(res.StartedAt))
	return res, nil
}
