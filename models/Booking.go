package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Booking statuses. Transitions go through BookingService compare-and-swap
// updates only.
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusCompleted = "completed"
)

// Payment statuses, tracked independently from the booking status.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

type Booking struct {
	gorm.Model
	UserID   uint `json:"userID" gorm:"not null;index"`
	AgencyID uint `json:"agencyID" gorm:"not null;index"` // resolved from the tour, never client-supplied
	TourID   uint `json:"tourID" gorm:"not null;index"`

	User User `json:"user" gorm:"foreignKey:UserID"`
	Tour Tour `json:"tour" gorm:"foreignKey:TourID"`

	// Trip snapshot, captured at creation time so later edits to the tour
	// or user do not retroactively alter a confirmed booking.
	TourName     string         `json:"tourName"`
	TripDate     time.Time      `json:"tripDate" gorm:"not null;index"`
	GuestSize    int            `json:"guestSize" gorm:"not null"`
	Guests       datatypes.JSON `json:"guests"`
	ContactName  string         `json:"contactName"`
	ContactPhone string         `json:"contactPhone"`
	ContactEmail string         `json:"contactEmail"`

	TotalAmount float64 `json:"totalAmount" gorm:"not null"`
	Currency    string  `json:"currency" gorm:"size:3;default:usd"`

	// External payment references. CheckoutSessionID is persisted when the
	// checkout session is created; PaymentID only once the session is paid.
	CheckoutSessionID string `json:"checkoutSessionID" gorm:"size:128;index"`
	PaymentID         string `json:"paymentID" gorm:"size:128"`

	Status        string `json:"status" gorm:"size:20;default:'pending';index"`
	PaymentStatus string `json:"paymentStatus" gorm:"size:20;default:'pending';index"`
}
