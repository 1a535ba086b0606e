package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/stokaro/formkit/core/form"
	"github.com/stokaro/formkit/core/message"
	"github.com/stokaro/formkit/core/valuelist"
)

// ListServiceName is the name of the service returning the entries of a value
// list. Its payload is {"list": "<name>", "key": "<key>"}, the key being
// required for keyed lists only.
const ListServiceName = "listService"

type listService struct {
	comps  Components
	logger *slog.Logger
}

type listRequest struct {
	List string `json:"list"`
	Key  any    `json:"key"`
}

func (s *listService) ID() string { return ListServiceName }

func (s *listService) Serve(ctx context.Context, sc *form.ServiceContext, payload []byte, w io.Writer) error {
	var req listRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		sc.Add(message.NewError(message.InvalidData))
		return nil
	}
	if req.List == "" {
		sc.Add(message.NewFieldError("list", message.FieldRequired))
		return nil
	}
	list, err := s.comps.ValueList(req.List)
	if err != nil {
		s.logger.Warn("Unknown value list requested", "list", req.List, "error", err)
		sc.Add(message.NewFieldError("list", message.InvalidValue))
		return nil
	}
	if list.IsKeyed() && form.IsEmpty(req.Key) {
		sc.Add(message.NewFieldError("key", message.FieldRequired))
		return nil
	}

	entries, err := list.List(valuelist.WithTenant(ctx, sc.TenantID), req.Key)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", req.List, err)
	}
	if len(entries) == 0 {
		sc.Add(message.NewError(message.NoRowsFound))
		return nil
	}
	data, err := json.Marshal(struct {
		List []valuelist.Entry `json:"list"`
	}{entries})
	if err != nil {
		return fmt.Errorf("failed to marshal list %s: %w", req.List, err)
	}
	_, err = w.Write(data)
	return err
}
