package models

import (
	"net/url"
	"strings"
	"time"
)

// Service is a monitored URL owned by exactly one user.
type Service struct {
	ID        int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	OwnerID   int64     `json:"owner_id" gorm:"column:owner_id"`
	Name      string    `json:"name" gorm:"column:name"`
	URL       string    `json:"url" gorm:"column:url"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// TableName specifies the table name for Service
func (Service) TableName() string {
	return "services"
}

// Validate checks the mutable fields. Reachability and SSRF checks happen elsewhere.
func (s *Service) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	s.URL = strings.TrimSpace(s.URL)

	if s.Name == "" {
		return &ValidationError{Field: "name", Msg: "is required"}
	}
	if hasControl(s.Name) {
		return &ValidationError{Field: "name", Msg: "must not contain control characters"}
	}
	if s.URL == "" {
		return &ValidationError{Field: "url", Msg: "is required"}
	}
	u, err := url.Parse(s.URL)
	if err != nil || u.Host == "" {
		return &ValidationError{Field: "url", Msg: "must be an absolute URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Msg: "must start with http:// or https://"}
	}
	return nil
}

func hasControl(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r < 0x20 || r == 0x7f }) >= 0
}
