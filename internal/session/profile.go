package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docsight/docsight/internal/domain"
	"github.com/docsight/docsight/internal/port"
)

// UpsertProfile creates the user's profile document on first sign-in and
// refreshes the identity fields on subsequent sign-ins. The refresh is a
// merge, not a replace: repositories, preferences and stats are owned by
// other parts of the system and are never touched here. Transient
// store-unavailable errors are swallowed because authentication must not be
// blocked by a secondary write; everything else propagates.
func UpsertProfile(ctx context.Context, store port.DocumentStore, identity *domain.Identity) error {
	_, err := store.Get(ctx, port.CollectionUsers, identity.UID)

	switch {
	case err == nil:
		patch := map[string]any{
			"email":       identity.Email,
			"displayName": identity.DisplayName,
			"photoURL":    identity.PhotoURL,
			"lastLoginAt": time.Now().UTC().Format(time.RFC3339),
		}
		if err := store.Update(ctx, port.CollectionUsers, identity.UID, patch); err != nil {
			return swallowUnavailable("update profile", identity.UID, err)
		}
		return nil

	case port.IsNotFound(err):
		prefs := domain.DefaultPreferences()
		fields := map[string]any{
			"uid":          identity.UID,
			"email":        identity.Email,
			"displayName":  identity.DisplayName,
			"photoURL":     identity.PhotoURL,
			"lastLoginAt":  time.Now().UTC().Format(time.RFC3339),
			"repositories": []string{},
			"preferences": map[string]any{
				"theme":         prefs.Theme,
				"notifications": prefs.Notifications,
				"emailUpdates":  prefs.EmailUpdates,
			},
			"stats": map[string]any{
				"totalRepos":   0,
				"totalDocs":    0,
				"lastActiveAt": time.Now().UTC().Format(time.RFC3339),
			},
		}
		if err := store.Put(ctx, port.CollectionUsers, identity.UID, fields); err != nil {
			return swallowUnavailable("create profile", identity.UID, err)
		}
		slog.Info("created profile", "uid", identity.UID)
		return nil

	default:
		return swallowUnavailable("read profile", identity.UID, err)
	}
}

func swallowUnavailable(op, uid string, err error) error {
	if port.IsUnavailable(err) {
		slog.Warn("store unavailable, continuing without profile write", "op", op, "uid", uid, "error", err)
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
