package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Tour struct {
	gorm.Model
	AgencyID uint `json:"agencyID" gorm:"not null;index"`
	Agency   User `json:"agency" gorm:"foreignKey:AgencyID"`

	Title       string `json:"title" gorm:"not null"`
	City        string `json:"city" gorm:"index"`
	Description string `json:"description" gorm:"type:text"`

	PricePerPerson float64        `json:"pricePerPerson"`
	MaxGroupSize   int            `json:"maxGroupSize"`
	Photos         datatypes.JSON `json:"photos" gorm:"type:jsonb"`

	Active *bool `json:"active" gorm:"default:true;index"`

	// Derived rating aggregate. Written only by services.RatingService,
	// never client-settable.
	RatingsAverage  float64 `json:"ratingsAverage"`
	RatingsQuantity int     `json:"ratingsQuantity"`
}
