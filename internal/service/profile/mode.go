package profile

// Mode is the service preferences mode.
type Mode string

// Modes. Profiles start in ModeLegacy and can never return to it.
const (
	ModeLegacy Mode = "LEGACY"
	ModeManual Mode = "MANUAL"
	ModeAuto   Mode = "AUTO"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeLegacy, ModeManual, ModeAuto:
		return true
	}
	return false
}

// CanTransition reports whether a profile in mode from may move to mode to.
// Staying in the same mode is always allowed.
func CanTransition(from, to Mode) bool {
	if from == to {
		return true
	}
	return to != ModeLegacy
}

// NextSettings computes the settings that result from requesting mode.
// A nil request means LEGACY, so omitting the preference block on a MANUAL
// or AUTO profile is a forbidden transition. The settings version is bumped
// by one only when the mode actually changes.
func NextSettings(current Settings, requested *Mode) (Settings, error) {
	target := ModeLegacy
	if requested != nil {
		target = *requested
	}
	if !target.Valid() {
		return current, ErrInvalidMode
	}
	if target == current.Mode {
		return current, nil
	}
	if !CanTransition(current.Mode, target) {
		return current, &ModeConflictError{From: current.Mode, To: target}
	}
	return Settings{Mode: target, Version: current.Version + 1}, nil
}

// IsMigrationTrigger reports whether moving from old to new requires legacy
// preferences to be migrated. Only LEGACY to AUTO qualifies.
func IsMigrationTrigger(from, to Mode) bool {
	return from == ModeLegacy && to == ModeAuto
}
