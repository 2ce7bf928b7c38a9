package model

import "time"

// Store groups codes and alternatives for one retailer.
type Store struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Category    string    `json:"category" yaml:"category"`
	Logo        string    `json:"logo,omitempty" yaml:"logo,omitempty"`
	LastUpdated time.Time `json:"last_updated" yaml:"-"`
}

// AlternativeType enumerates the kinds of non-code savings suggestions.
type AlternativeType string

const (
	AltCheaperStore AlternativeType = "cheaper-store"
	AltNewsletter   AlternativeType = "newsletter"
	AltStudent      AlternativeType = "student"
	AltWaitForSale  AlternativeType = "wait-for-sale"
	AltCashback     AlternativeType = "cashback"
)

// Valid reports whether t is one of the known alternative types.
func (t AlternativeType) Valid() bool {
	switch t {
	case AltCheaperStore, AltNewsletter, AltStudent, AltWaitForSale, AltCashback:
		return true
	}
	return false
}

// Alternative is a static savings suggestion attached to a store.
type Alternative struct {
	ID          string          `json:"id" yaml:"id"`
	StoreID     string          `json:"store_id" yaml:"-"`
	Type        AlternativeType `json:"type" yaml:"type"`
	Title       string          `json:"title" yaml:"title"`
	Description string          `json:"description" yaml:"description"`
	ActionLabel string          `json:"action_label,omitempty" yaml:"action_label,omitempty"`
	ActionURL   string          `json:"action_url,omitempty" yaml:"action_url,omitempty"`
}
