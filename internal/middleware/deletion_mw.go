package middleware

import (
	"github.com/keanuklestil/groups-relay/internal/deletion"
	"github.com/keanuklestil/groups-relay/internal/relayerr"
	"github.com/keanuklestil/groups-relay/internal/wire"
)

// NIP09Deletion processes inbound kind-5 deletion requests before the
// event reaches group authorization and storage. The deletion side effects
// run here; the deletion request event itself still flows on down the
// chain to be persisted like any other event.
type NIP09Deletion struct {
	Base
	Store deletion.Store
}

func (NIP09Deletion) Name() string { return "NIP09Deletion" }

func (m NIP09Deletion) ProcessInbound(ctx *Context) error {
	if ctx.Inbound.Kind != wire.EventMsg || !deletion.IsDeletionRequest(ctx.Inbound.Event) {
		return ctx.Next()
	}

	event := ctx.Inbound.Event
	if err := deletion.Process(ctx.Ctx, m.Store, event, ctx.Scope); err != nil {
		return replyEventError(ctx, event.ID, relayerr.InternalErr("%s", err.Error()))
	}

	return ctx.Next()
}
