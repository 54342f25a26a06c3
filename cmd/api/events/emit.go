package events

import (
	"context"
	"encoding/json"

	apppkg "github.com/mark3748/hwtrack-go/cmd/api/app"
)

// Emit records an asset event row. Best effort; errors are ignored so a feed
// hiccup never fails the lifecycle operation that triggered it.
func Emit(ctx context.Context, db apppkg.DB, assetID, typ string, data interface{}) {
	if db == nil {
		return
	}
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	const q = `insert into asset_events (asset_id, event_type, payload) values ($1, $2, $3)`
	_, _ = db.Exec(ctx, q, assetID, typ, b)
}
