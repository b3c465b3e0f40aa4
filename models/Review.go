package models

import "gorm.io/gorm"

type Review struct {
	gorm.Model
	UserID    uint     `json:"userID" gorm:"not null;index;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	TourID    uint     `json:"tourID" gorm:"not null;index;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	BookingID *uint    `json:"bookingID" gorm:"index;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"` // Link to the completed trip
	Booking   *Booking `json:"booking,omitempty" gorm:"foreignKey:BookingID"`
	User      User     `json:"user" gorm:"foreignKey:UserID"`
	Tour      Tour     `json:"tour" gorm:"foreignKey:TourID"`
	Title     string   `json:"title"`
	Body      string   `json:"body" gorm:"type:text"`
	Stars     int      `json:"stars" gorm:"not null;check:stars >= 1 AND stars <= 5"`
}
