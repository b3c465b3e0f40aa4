package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	FirstName           string         `json:"firstName"`
	LastName            string         `json:"lastName"`
	Email               string         `json:"email" gorm:"uniqueIndex"`
	PhoneNumber         string         `json:"phoneNumber"`
	Password            string         `json:"-"`
	AvatarURL           string         `json:"avatarURL"`
	Bio                 string         `json:"bio"`
	PushTokens          datatypes.JSON `json:"pushTokens"`
	AllowsNotifications *bool          `json:"allowsNotifications"`
	Role                string         `json:"role" gorm:"type:varchar(20);default:user;index"` // user, agency, admin

	// Entitlement fields. Written only by services.VerificationService;
	// profile-edit handlers must never touch them.
	IsVerified            *bool      `json:"isVerified"`
	VerificationStatus    string     `json:"verificationStatus" gorm:"size:20"` // pending, approved, rejected
	DocumentType          string     `json:"documentType" gorm:"size:20"`
	DocumentNumber        string     `json:"documentNumber" gorm:"size:64"`
	DocumentURL           string     `json:"documentURL" gorm:"size:512"`
	StripeCustomerID      string     `json:"-" gorm:"size:64;index"`
	StripeSubscriptionID  string     `json:"-" gorm:"size:64"`
	StripeInvoiceID       string     `json:"-" gorm:"size:64"`
	SubscriptionExpiresAt *time.Time `json:"subscriptionExpiresAt"`
}

// Custom JSON marshaling so PushTokens comes out as a plain string array
func (u *User) MarshalJSON() ([]byte, error) {
	type Alias User
	aux := &struct {
		PushTokens []string `json:"pushTokens,omitempty"`
		*Alias
	}{
		PushTokens: []string{},
		Alias:      (*Alias)(u),
	}

	if u.PushTokens != nil {
		var tokens []string
		if err := json.Unmarshal(u.PushTokens, &tokens); err == nil {
			aux.PushTokens = tokens
		}
	}

	return json.Marshal(aux)
}
