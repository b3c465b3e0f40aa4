package models

import (
	"time"
)

// Verification request statuses. A request is decided exactly once; a
// rejected request permits resubmission as a new row.
const (
	VerificationStatusPending  = "pending"
	VerificationStatusApproved = "approved"
	VerificationStatusRejected = "rejected"
)

// Accepted document types for identity verification.
const (
	DocumentTypeIDCard   = "id-card"
	DocumentTypePassport = "passport"
	DocumentTypeOther    = "other"
)

type VerificationRequest struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	UserID uint `json:"userID" gorm:"not null;index"`
	User   User `json:"user" gorm:"foreignKey:UserID"`

	// Contact snapshot taken at submission time.
	ContactName  string `json:"contactName" gorm:"size:128"`
	ContactPhone string `json:"contactPhone" gorm:"size:32"`
	ContactEmail string `json:"contactEmail" gorm:"size:256"`
	AddressLine  string `json:"addressLine" gorm:"size:256"`
	City         string `json:"city" gorm:"size:128"`
	Country      string `json:"country" gorm:"size:128"`

	DocumentType   string `json:"documentType" gorm:"size:20;not null"` // id-card, passport, other
	DocumentNumber string `json:"documentNumber" gorm:"size:64;not null"`
	DocumentURL    string `json:"documentURL" gorm:"size:512;not null"`

	// Recurring-payment agreement backing this request.
	SubscriptionID string `json:"subscriptionID" gorm:"size:64;index"`

	Status     string     `json:"status" gorm:"size:20;default:'pending';index"`
	AdminNote  string     `json:"adminNote" gorm:"type:text"`
	ReviewedBy *uint      `json:"reviewedBy" gorm:"index"`
	ReviewedAt *time.Time `json:"reviewedAt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
