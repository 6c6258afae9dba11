package rpc

import (
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/triage"
)

type Empty struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type Credentials struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	UserID string `json:"userId"`
}

type TokenPair struct {
	UserID       string `json:"userId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type TriageRequest struct {
	ItemID common.ID     `json:"itemId"`
	Target triage.Target `json:"target"`
}

type TriageResponse struct {
	TargetID common.ID `json:"targetId"`
}

type QuestRequest struct {
	QuestID common.ID `json:"questId"`
}

type BudgetRequest struct {
	Date   string `json:"date"`
	Budget int    `json:"budget"`
}

type PresignRequest struct {
	InboxItemID common.ID `json:"inboxItemId"`
	ContentType string    `json:"contentType"`
}

type PresignResponse struct {
	AttachmentID common.ID `json:"attachmentId"`
	URL          string    `json:"url"`
	ExpiresAt    time.Time `json:"expiresAt"`
}
