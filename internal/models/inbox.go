package models

import (
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/altair/internal/common"
)

// CaptureSource records how an inbox item was captured.
type CaptureSource string

const (
	SourceKeyboard CaptureSource = "keyboard"
	SourceVoice    CaptureSource = "voice"
	SourceCamera   CaptureSource = "camera"
	SourceShare    CaptureSource = "share"
	SourceWidget   CaptureSource = "widget"
	SourceWatch    CaptureSource = "watch"
)

func (s CaptureSource) Valid() bool {
	switch s {
	case SourceKeyboard, SourceVoice, SourceCamera, SourceShare, SourceWidget, SourceWatch:
		return true
	}
	return false
}

// InboxItem is an untyped captured thought waiting for triage.
type InboxItem struct {
	Base
	Content       string        `json:"content"`
	Source        CaptureSource `json:"source"`
	AttachmentIDs []common.ID   `json:"attachmentIds"`
}

func (*InboxItem) EntityType() EntityType { return EntityInboxItem }

func (i *InboxItem) Validate() error {
	if err := i.validate(); err != nil {
		return err
	}
	if !i.Source.Valid() {
		return common.Validation("source", "unknown capture source")
	}
	if strings.TrimSpace(i.Content) == "" && len(i.AttachmentIDs) == 0 {
		return common.Validation("content", "required without attachments")
	}
	if utf8.RuneCountInString(i.Content) > common.MaxInboxContentLength {
		return common.Validation("content", "too long")
	}
	for _, a := range i.AttachmentIDs {
		if _, err := common.ParseID(a.String()); err != nil {
			return common.Validation("attachmentIds", "malformed identifier")
		}
	}
	return nil
}

// AddAttachment adds id to the attachment set. It reports false when the
// id was already present.
func (i *InboxItem) AddAttachment(id common.ID) bool {
	for _, a := range i.AttachmentIDs {
		if a == id {
			return false
		}
	}
	i.AttachmentIDs = append(i.AttachmentIDs, id)
	return true
}
