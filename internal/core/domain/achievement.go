package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConditionType discriminates achievement condition evaluation.
// Only COUNT is currently defined; an unknown type must fail loudly rather
// than silently under-count.
type ConditionType string

const ConditionCount ConditionType = "count"

// Condition is one requirement of an achievement.
type Condition struct {
	Type   ConditionType `json:"type"`
	Unit   string        `json:"unit"`
	Target int64         `json:"target"`
}

// Reward is what an achievement pays out once satisfied.
type Reward struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Achievement is an admin-managed gamification rule. Read-only to the core.
type Achievement struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Badge       string      `json:"badge"`
	Type        EventType   `json:"type"` // event type the achievement listens to
	Order       int         `json:"order"`
	Conditions  []Condition `json:"conditions"`
	Reward      Reward      `json:"reward"`
}

// Progress is the per-user, per-achievement accumulation state.
// Achieved is a one-way latch: once true it never reverts and CurrentCount
// never decreases. The counted-keys dedup set lives in its own table and is
// consulted through the repository, not carried on this struct.
type Progress struct {
	UserID        uuid.UUID  `json:"user_id"`
	AchievementID uuid.UUID  `json:"achievement_id"`
	CurrentCount  int64      `json:"current_count"`
	Achieved      bool       `json:"achieved"`
	AchievedAt    *time.Time `json:"achieved_at,omitempty"`
}
