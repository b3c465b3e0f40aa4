package routes

import (
	"time"

	"tour-marketplace-server/models"
	"tour-marketplace-server/storage"

	"github.com/kataras/iris/v12"
)

// GetMe returns the authenticated user's profile, including verification
// status so the UI can reflect a pending or decided request immediately.
func GetMe(ctx iris.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	var user models.User
	if err := storage.DB.First(&user, userID).Error; err != nil {
		ctx.StatusCode(iris.StatusNotFound)
		ctx.JSON(iris.Map{"message": "User not found"})
		return
	}

	ctx.JSON(iris.Map{"success": true, "data": &user})
}

// GetMyNotifications - GET /notifications
func GetMyNotifications(ctx iris.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	var notifications []models.Notification
	if err := storage.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(100).
		Find(&notifications).Error; err != nil {
		ctx.StatusCode(iris.StatusInternalServerError)
		ctx.JSON(iris.Map{"message": "Failed to load notifications"})
		return
	}

	ctx.JSON(iris.Map{"success": true, "data": notifications})
}

// MarkNotificationRead - PUT /notifications/:id/read
func MarkNotificationRead(ctx iris.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	notificationID := ctx.Params().GetUintDefault("id", 0)
	if notificationID == 0 {
		ctx.StatusCode(iris.StatusBadRequest)
		ctx.JSON(iris.Map{"message": "Invalid notification ID"})
		return
	}

	now := time.Now().UTC()
	res := storage.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if res.Error != nil {
		ctx.StatusCode(iris.StatusInternalServerError)
		ctx.JSON(iris.Map{"message": "Failed to mark notification as read"})
		return
	}
	if res.RowsAffected == 0 {
		ctx.StatusCode(iris.StatusNotFound)
		ctx.JSON(iris.Map{"message": "Notification not found"})
		return
	}

	ctx.JSON(iris.Map{"success": true})
}
