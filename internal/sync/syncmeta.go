package sync

import (
	"context"
	"fmt"
	"strconv"
)

const syncKeyPrefix = "sync.last/"

// syncKey is the settings key holding the last sync time of one scope.
func syncKey(collection, scope string) string {
	return syncKeyPrefix + collection + "/" + scope
}

// LastSync returns when (collection, scope) was last reconciled, in ms.
// 0 means never.
func LastSync(ctx context.Context, local LocalStore, collection, scope string) (int64, error) {
	v, ok, err := local.GetSetting(ctx, syncKey(collection, scope))
	if err != nil {
		return 0, fmt.Errorf("reading last sync of %s/%s: %w", collection, scope, err)
	}
	if !ok || v == "" {
		return 0, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing last sync of %s/%s: %w", collection, scope, err)
	}
	return ms, nil
}

// RecordSync stores ms as the last sync time of (collection, scope).
func RecordSync(ctx context.Context, local LocalStore, collection, scope string, ms int64) error {
	if err := local.SaveSetting(ctx, syncKey(collection, scope), strconv.FormatInt(ms, 10)); err != nil {
		return fmt.Errorf("recording last sync of %s/%s: %w", collection, scope, err)
	}
	return nil
}
