package app

import (
	"fmt"

	"sensetech/pkg/domain"
)

// GetPreferences returns the user's preferences, creating the default
// row on first access.
func (a *App) GetPreferences(userID string) (domain.Preferences, error) {
	prefs, ok, err := a.store.GetPreferences(userID)
	if err != nil {
		return domain.Preferences{}, fmt.Errorf("fetch preferences: %w", err)
	}
	if ok {
		return prefs, nil
	}
	prefs = domain.DefaultPreferences(userID)
	if err := a.store.SavePreferences(prefs); err != nil {
		return domain.Preferences{}, fmt.Errorf("save default preferences: %w", err)
	}
	return prefs, nil
}

// UpdatePreferences applies a partial update. Fields absent from the
// patch keep their prior values.
func (a *App) UpdatePreferences(userID string, patch domain.PreferencesPatch) (domain.Preferences, error) {
	prefs, err := a.GetPreferences(userID)
	if err != nil {
		return domain.Preferences{}, err
	}
	prefs = patch.Apply(prefs)
	prefs.UserID = userID
	if err := a.store.SavePreferences(prefs); err != nil {
		return domain.Preferences{}, fmt.Errorf("save preferences: %w", err)
	}
	return prefs, nil
}
