package warden

import (
	"database/sql/driver"
	"fmt"
)

// ModerationAction is the outcome of the escalation policy for a matched
// rule.
type ModerationAction string

const (
	// ActionWarn warns the user and leaves the message in place.
	ActionWarn ModerationAction = "warn"
	// ActionWarnDelete warns the user and deletes the message.
	ActionWarnDelete ModerationAction = "warn_delete"
	// ActionWarnDeleteAlert warns the user, deletes the message and
	// posts an alert to the guild's moderation log channel.
	ActionWarnDeleteAlert ModerationAction = "warn_delete_alert"
)

func (m ModerationAction) String() string {
	return string(m)
}

// Scan implements the sql.Scanner interface.
func (m *ModerationAction) Scan(value any) error {
	switch v := value.(type) {
	case []byte:
		*m = ModerationAction(v)
	case string:
		*m = ModerationAction(v)
	default:
		return fmt.Errorf("unexpected type for ModerationAction: %T", value)
	}
	return nil
}

// Value implements the driver.Valuer interface.
func (m ModerationAction) Value() (driver.Value, error) {
	return string(m), nil
}

// GormDataType is used by GORM to determine the default data type for a field.
func (ModerationAction) GormDataType() string {
	return "string"
}

// Deletes reports whether the action includes deleting the message.
func (m ModerationAction) Deletes() bool {
	return m == ActionWarnDelete || m == ActionWarnDeleteAlert
}

// Alerts reports whether the action includes a moderator alert.
func (m ModerationAction) Alerts() bool {
	return m == ActionWarnDeleteAlert
}

// decideAction maps a matched rule and the user's violation count (the
// count AFTER recording the current violation, all-time) to an action.
//
// Severity 1 always warns. Severity 2 warns on a first offense and
// escalates to deletion on repeats, unless deleteFirstOffense removes the
// leniency. Severity 3 deletes and alerts moderators unconditionally,
// whatever the count.
func decideAction(
	rule Rule,
	violationCount int64,
	deleteFirstOffense bool,
) ModerationAction {
	switch rule.Severity {
	case 3:
		return ActionWarnDeleteAlert
	case 2:
		if violationCount > 1 || deleteFirstOffense {
			return ActionWarnDelete
		}
		return ActionWarn
	default:
		return ActionWarn
	}
}
