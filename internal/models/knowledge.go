package models

import (
	"strings"

	"github.com/dmitrijs2005/altair/internal/common"
)

// Note is a free-form knowledge entry.
type Note struct {
	Base
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	FolderID     *common.ID `json:"folderId,omitempty"`
	InitiativeID *common.ID `json:"initiativeId,omitempty"`
}

func (*Note) EntityType() EntityType { return EntityNote }

func (n *Note) Validate() error {
	if err := n.validate(); err != nil {
		return err
	}
	if err := requireText("title", n.Title, 500); err != nil {
		return err
	}
	if err := validateOptionalID("folderId", n.FolderID); err != nil {
		return err
	}
	return validateOptionalID("initiativeId", n.InitiativeID)
}

type SourceType string

const (
	SourceTypeURL  SourceType = "url"
	SourceTypeFile SourceType = "file"
	SourceTypeText SourceType = "text"
)

// SourceDocument references external material: a link, a file or pasted text.
type SourceDocument struct {
	Base
	Title        string     `json:"title"`
	SourceType   SourceType `json:"sourceType"`
	URI          string     `json:"uri,omitempty"`
	Excerpt      string     `json:"excerpt,omitempty"`
	FolderID     *common.ID `json:"folderId,omitempty"`
	InitiativeID *common.ID `json:"initiativeId,omitempty"`
}

func (*SourceDocument) EntityType() EntityType { return EntitySourceDocument }

func (s *SourceDocument) Validate() error {
	if err := s.validate(); err != nil {
		return err
	}
	if err := requireText("title", s.Title, 500); err != nil {
		return err
	}
	switch s.SourceType {
	case SourceTypeURL, SourceTypeFile:
		if strings.TrimSpace(s.URI) == "" {
			return common.Validation("uri", "required for "+string(s.SourceType))
		}
	case SourceTypeText:
	default:
		return common.Validation("sourceType", "unknown source type")
	}
	if err := validateOptionalID("folderId", s.FolderID); err != nil {
		return err
	}
	return validateOptionalID("initiativeId", s.InitiativeID)
}
