// Package directory maintains the user roster: profile sync keyed by an
// external identity, lookups and name search.
package directory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"pairdb/pkg/logger"
	"pairdb/pkg/models"
	"pairdb/pkg/store"
	"pairdb/pkg/utils"
	"pairdb/pkg/validation"
)

// SyncProfile upserts a user by external identity and returns the
// internal user ID. An existing user gets name and avatar updated in
// place; email and external ID never change after creation. Safe to call
// on every session start.
func SyncProfile(externalID, name, email, avatarRef string) (string, error) {
	if strings.TrimSpace(externalID) == "" {
		return "", fmt.Errorf("%w: external id must not be blank", models.ErrValidation)
	}
	if err := validation.ValidateName(name); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	// The external-id lock serializes duplicate concurrent syncs so the
	// unique index never points at two users.
	release := store.LockKey(store.UserExtKey(externalID))
	defer release()

	if id, err := store.LookupUserByExternal(externalID); err == nil {
		// Presence writes serialize on the user key, so the update must
		// hold that lock too or it can write back a stale LastSeenTS or
		// typing pointer over a concurrent heartbeat flush.
		releaseUser := store.LockKey(store.UserKey(id))
		u, gerr := store.GetUser(id)
		if gerr != nil {
			releaseUser()
			return "", gerr
		}
		u.Name = name
		u.AvatarRef = avatarRef
		serr := store.SaveUser(u)
		releaseUser()
		if serr != nil {
			return "", serr
		}
		logger.Debug("profile_synced", "user", id, "external", externalID)
		return id, nil
	} else if !store.IsNotFound(err) {
		return "", err
	}

	u := models.User{
		ID:         utils.GenUserID(),
		ExternalID: externalID,
		Name:       name,
		Email:      email,
		AvatarRef:  avatarRef,
		CreatedTS:  time.Now().UTC().UnixNano(),
	}
	if err := store.SaveUser(u); err != nil {
		return "", err
	}
	if err := store.IndexUserExternal(externalID, u.ID); err != nil {
		return "", err
	}
	logger.Info("user_created", "user", u.ID, "external", externalID)
	return u.ID, nil
}

// Lookup returns the user for an internal ID.
func Lookup(userID string) (models.User, error) {
	u, err := store.GetUser(userID)
	if err != nil {
		if store.IsNotFound(err) {
			return u, models.ErrNotFound
		}
		return u, err
	}
	return u, nil
}

// Search returns users whose name contains the query, case-insensitive,
// excluding the caller. Results come back in ascending name order.
func Search(query, excludeUserID string) ([]models.User, error) {
	users, err := store.ScanUsers()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	var out []models.User
	for _, u := range users {
		if u.ID == excludeUserID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(u.Name), q) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
