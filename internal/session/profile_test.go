package session

import (
	"context"
	"errors"
	"testing"

	"github.com/docsight/docsight/internal/adapter/store"
	"github.com/docsight/docsight/internal/domain"
	"github.com/docsight/docsight/internal/port"
)

func TestUpsertProfileCreatesWithDefaults(t *testing.T) {
	mem := store.NewMemoryStore()
	identity := &domain.Identity{UID: "user-1", Email: "dev@acme.test", DisplayName: "Dev"}

	if err := UpsertProfile(context.Background(), mem, identity); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}

	doc, err := mem.Get(context.Background(), port.CollectionUsers, "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	profile, err := store.DecodeProfile(doc)
	if err != nil {
		t.Fatalf("DecodeProfile: %v", err)
	}
	if profile.Email != "dev@acme.test" || profile.DisplayName != "Dev" {
		t.Fatalf("profile = %+v", profile)
	}
	if profile.Preferences != domain.DefaultPreferences() {
		t.Fatalf("preferences = %+v, want defaults", profile.Preferences)
	}
	if profile.LastLoginAt.IsZero() {
		t.Fatal("lastLoginAt must be set on first sign-in")
	}
}

func TestUpsertProfileMergesNotReplaces(t *testing.T) {
	mem := store.NewMemoryStore()
	identity := &domain.Identity{UID: "user-1", Email: "dev@acme.test", DisplayName: "Dev"}

	if err := UpsertProfile(context.Background(), mem, identity); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// The user flips a preference and accumulates repositories between
	// sign-ins; a later sign-in must not reset either.
	err := mem.Update(context.Background(), port.CollectionUsers, "user-1", map[string]any{
		"preferences":  map[string]any{"theme": "dark", "notifications": false, "emailUpdates": true},
		"repositories": []any{"repo-doc-1"},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	identity.DisplayName = "Dev Renamed"
	if err := UpsertProfile(context.Background(), mem, identity); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	doc, err := mem.Get(context.Background(), port.CollectionUsers, "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	profile, err := store.DecodeProfile(doc)
	if err != nil {
		t.Fatalf("DecodeProfile: %v", err)
	}
	if profile.DisplayName != "Dev Renamed" {
		t.Fatalf("displayName = %s, want refreshed value", profile.DisplayName)
	}
	if profile.Preferences.Theme != "dark" {
		t.Fatalf("theme = %s, want dark preserved across sign-ins", profile.Preferences.Theme)
	}
	if len(profile.Repositories) != 1 || profile.Repositories[0] != "repo-doc-1" {
		t.Fatalf("repositories = %v, want preserved", profile.Repositories)
	}
}

func TestUpsertProfileSwallowsUnavailable(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.FailWith = port.NewStoreError(port.StoreCodeUnavailable, errors.New("connection refused"))

	identity := &domain.Identity{UID: "user-1"}
	if err := UpsertProfile(context.Background(), mem, identity); err != nil {
		t.Fatalf("UpsertProfile = %v, want transient outage swallowed", err)
	}
}

func TestUpsertProfilePropagatesPermissionDenied(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.FailWith = port.NewStoreError(port.StoreCodePermissionDenied, errors.New("rules rejected write"))

	identity := &domain.Identity{UID: "user-1"}
	err := UpsertProfile(context.Background(), mem, identity)
	if !port.IsPermissionDenied(err) {
		t.Fatalf("UpsertProfile = %v, want permission-denied to propagate", err)
	}
}
