package models

import (
	"time"

	"github.com/google/uuid"
)

// CreditReason - код причины движения по счету.
type CreditReason string

const (
	ReasonStoryCreation CreditReason = "story_creation"
	ReasonStoryRefund   CreditReason = "story_refund"
	ReasonAssetRequest  CreditReason = "asset_request"
	ReasonPurchase      CreditReason = "purchase"
	ReasonAdminGrant    CreditReason = "admin_grant"
	ReasonSignupBonus   CreditReason = "signup_bonus"
)

// IsEarn - причины, по которым кредиты начисляются, а не списываются.
func (r CreditReason) IsEarn() bool {
	switch r {
	case ReasonStoryRefund, ReasonPurchase, ReasonAdminGrant, ReasonSignupBonus:
		return true
	}
	return false
}

// CreditAccount - счет пользователя. Balance всегда равен сумме транзакций.
type CreditAccount struct {
	UserID         string    `db:"user_id" json:"user_id"`
	Balance        int64     `db:"balance" json:"balance"`
	LifetimeEarned int64     `db:"lifetime_earned" json:"lifetime_earned"`
	LifetimeSpent  int64     `db:"lifetime_spent" json:"lifetime_spent"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// CreditTransaction - неизменяемая запись журнала. Amount со знаком.
type CreditTransaction struct {
	ID        uuid.UUID    `db:"id" json:"id"`
	UserID    string       `db:"user_id" json:"user_id"`
	Amount    int64        `db:"amount" json:"amount"`
	Reason    CreditReason `db:"reason" json:"reason"`
	Reference *string      `db:"reference" json:"reference,omitempty"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// CostQuote - расчет стоимости истории.
type CostQuote struct {
	StoryType     StoryLength `json:"story_type"`
	Chapters      int         `json:"chapters"`
	IncludeImages bool        `json:"include_images"`
	IncludeAudio  bool        `json:"include_audio"`
	StoryCost     int64       `json:"story_cost"`
	AudioCost     int64       `json:"audio_cost"`
	TotalCost     int64       `json:"total_cost"`
}
