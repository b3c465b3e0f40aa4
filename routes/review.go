package routes

import (
	"errors"
	"log"

	"tour-marketplace-server/models"
	"tour-marketplace-server/services"
	"tour-marketplace-server/storage"
	"tour-marketplace-server/utils"

	"github.com/kataras/iris/v12"
	"gorm.io/gorm"
)

type CreateReviewRequest struct {
	Stars     int    `json:"stars" validate:"required,min=1,max=5"`
	Title     string `json:"title" validate:"max=100"`
	Body      string `json:"body" validate:"max=1000"`
	BookingID uint   `json:"bookingID"` // links the review to a completed trip
}

// CreateTourReview creates a review if the user has a confirmed booking
// for the tour and hasn't reviewed it yet, then recomputes the tour's
// rating aggregate.
func CreateTourReview(ctx iris.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	tourID := ctx.Params().GetUintDefault("tourId", 0)
	if tourID == 0 {
		ctx.StatusCode(iris.StatusBadRequest)
		ctx.JSON(iris.Map{"message": "Invalid tour ID"})
		return
	}

	var req CreateReviewRequest
	if err := ctx.ReadJSON(&req); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	// Reviewer must hold a confirmed booking for this tour.
	var booking models.Booking
	if err := storage.DB.Where("id = ? AND tour_id = ? AND user_id = ? AND status = ?",
		req.BookingID, tourID, userID, models.BookingStatusConfirmed).
		First(&booking).Error; err != nil {
		mapServiceError(ctx, services.ErrReviewNotEligible)
		return
	}

	var existing models.Review
	if err := storage.DB.Where("tour_id = ? AND user_id = ?", tourID, userID).
		First(&existing).Error; err == nil {
		mapServiceError(ctx, services.ErrAlreadyReviewed)
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		ctx.StatusCode(iris.StatusInternalServerError)
		ctx.JSON(iris.Map{"message": "Failed to check existing review"})
		return
	}

	review := models.Review{
		UserID:    userID,
		TourID:    tourID,
		BookingID: &req.BookingID,
		Title:     req.Title,
		Body:      req.Body,
		Stars:     req.Stars,
	}

	if err := storage.DB.Create(&review).Error; err != nil {
		ctx.StatusCode(iris.StatusInternalServerError)
		ctx.JSON(iris.Map{"message": "Failed to create review"})
		return
	}

	if err := services.NewRatingService(storage.DB).Recompute(tourID); err != nil {
		log.Printf("failed to recompute rating for tour %d: %v", tourID, err)
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"success": true, "data": review})
}

// DeleteReview removes a review (owner or admin) and recomputes the
// tour's aggregate from the remaining review set.
func DeleteReview(ctx iris.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	reviewID := ctx.Params().GetUintDefault("id", 0)
	if reviewID == 0 {
		ctx.StatusCode(iris.StatusBadRequest)
		ctx.JSON(iris.Map{"message": "Invalid review ID"})
		return
	}

	var review models.Review
	if err := storage.DB.First(&review, reviewID).Error; err != nil {
		ctx.StatusCode(iris.StatusNotFound)
		ctx.JSON(iris.Map{"message": "Review not found"})
		return
	}

	if review.UserID != userID && currentRole(ctx) != "admin" {
		ctx.StatusCode(iris.StatusForbidden)
		ctx.JSON(iris.Map{"message": "You can only delete your own reviews"})
		return
	}

	if err := storage.DB.Delete(&review).Error; err != nil {
		ctx.StatusCode(iris.StatusInternalServerError)
		ctx.JSON(iris.Map{"message": "Failed to delete review"})
		return
	}

	if err := services.NewRatingService(storage.DB).Recompute(review.TourID); err != nil {
		log.Printf("failed to recompute rating for tour %d: %v", review.TourID, err)
	}

	ctx.JSON(iris.Map{"success": true, "message": "Review deleted"})
}

// ListTourReviews returns a tour's reviews with reviewer info.
func ListTourReviews(ctx iris.Context) {
	tourID := ctx.Params().GetUintDefault("tourId", 0)
	if tourID == 0 {
		ctx.StatusCode(iris.StatusBadRequest)
		ctx.JSON(iris.Map{"message": "Invalid tour ID"})
		return
	}

	var reviews []models.Review
	if err := storage.DB.Preload("User").
		Where("tour_id = ?", tourID).
		Order("created_at DESC").
		Find(&reviews).Error; err != nil {
		ctx.StatusCode(iris.StatusInternalServerError)
		ctx.JSON(iris.Map{"message": "Failed to load reviews"})
		return
	}

	ctx.JSON(iris.Map{"success": true, "data": reviews})
}
