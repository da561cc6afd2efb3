package persistence

import (
	"database/sql"
	"errors"
	"time"
)

const (
	flagKeyHalted       = "killswitch_halted"
	legacyErrorKindHalt = "killswitch_halted_legacy"
)

// KillSwitchFlag implements killswitch.PersistedFlag against a Store: the
// current indicator lives in config_flags, the legacy indicator is a
// sentinel row in errors, kept only because older deployments checked
// that table for the halt flag before config_flags existed.
type KillSwitchFlag struct {
	Store *Store
}

// NewKillSwitchFlag wraps s.
func NewKillSwitchFlag(s *Store) *KillSwitchFlag { return &KillSwitchFlag{Store: s} }

// SetHalted writes the current (config_flags) indicator.
func (f *KillSwitchFlag) SetHalted(halted bool) error {
	return f.Store.SetFlag(flagKeyHalted, boolString(halted), time.Now())
}

// IsHalted reads the current indicator; unset counts as not halted.
func (f *KillSwitchFlag) IsHalted() (bool, error) {
	v, ok, err := f.Store.Flag(flagKeyHalted)
	if err != nil || !ok {
		return false, err
	}
	return v == "true", nil
}

// SetLegacyHalted appends a sentinel row to errors. The legacy indicator
// has no delete path by design — "cleared" means the most recent
// sentinel row says halted=false.
func (f *KillSwitchFlag) SetLegacyHalted(halted bool) error {
	return f.Store.RecordError("", legacyErrorKindHalt, boolString(halted), time.Now())
}

// IsLegacyHalted reads the most recent legacy sentinel row.
func (f *KillSwitchFlag) IsLegacyHalted() (bool, error) {
	f.Store.mu.Lock()
	defer f.Store.mu.Unlock()

	var message string
	err := f.Store.db.QueryRow(`SELECT message FROM errors WHERE kind = ? ORDER BY id DESC LIMIT 1`, legacyErrorKindHalt).Scan(&message)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return message == "true", nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
