package services

import (
	"encoding/json"
	"fmt"
	"log"

	"tour-marketplace-server/models"
	"tour-marketplace-server/utils"

	"gorm.io/gorm"
)

// NotificationService persists in-app notification rows and pushes them
// to the user's devices best-effort.
type NotificationService struct {
	DB *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{DB: db}
}

// CreateNotification stores an in-app notification row. Failures are
// logged, never propagated; notifications must not fail the operation
// that triggered them.
func (ns *NotificationService) CreateNotification(userID uint, ntype, title, message, refType string, refID uint) {
	notification := models.Notification{
		UserID:  userID,
		Type:    ntype,
		Title:   title,
		Message: message,
		RefType: refType,
		RefID:   refID,
	}
	if err := ns.DB.Create(&notification).Error; err != nil {
		log.Printf("failed to create notification for user %d: %v", userID, err)
	}
}

// PushBookingConfirmed sends a push notification for a confirmed booking.
func (ns *NotificationService) PushBookingConfirmed(userID, bookingID uint, tourName string) {
	ns.pushToUser(userID, "Booking confirmed",
		fmt.Sprintf("Your booking for %s is confirmed.", tourName),
		map[string]string{"type": "booking_confirmed", "id": fmt.Sprintf("%d", bookingID)})
}

func (ns *NotificationService) pushToUser(userID uint, title, body string, data map[string]string) {
	tokens, err := ns.getUserPushTokens(userID)
	if err != nil {
		return
	}
	for _, token := range tokens {
		if err := utils.SendPushNotification(token, title, body, data); err != nil {
			log.Printf("failed to push to token %s: %v", token, err)
		}
	}
}

func (ns *NotificationService) getUserPushTokens(userID uint) ([]string, error) {
	var user models.User
	if err := ns.DB.First(&user, userID).Error; err != nil {
		return nil, fmt.Errorf("user not found: %v", err)
	}

	if user.AllowsNotifications == nil || !*user.AllowsNotifications || user.PushTokens == nil {
		return nil, fmt.Errorf("user has notifications disabled or no tokens")
	}

	var tokens []string
	if err := json.Unmarshal(user.PushTokens, &tokens); err != nil {
		return nil, fmt.Errorf("failed to unmarshal push tokens: %v", err)
	}
	return tokens, nil
}
