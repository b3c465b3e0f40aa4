package services

import (
	"fmt"
	"math"

	"tour-marketplace-server/models"

	"gorm.io/gorm"
)

// RatingService keeps a tour's rating aggregate consistent with the set
// of reviews currently persisted for it. The aggregate is always derived
// fresh from the full review set, never updated incrementally, which
// makes it self-correcting when reviews race each other.
type RatingService struct {
	DB *gorm.DB
}

func NewRatingService(db *gorm.DB) *RatingService {
	return &RatingService{DB: db}
}

// Recompute scans the tour's reviews and writes {count, rounded mean}.
// Zero reviews resets the aggregate to {0, 0}.
func (s *RatingService) Recompute(tourID uint) error {
	var stars []int
	if err := s.DB.Model(&models.Review{}).
		Where("tour_id = ?", tourID).
		Pluck("stars", &stars).Error; err != nil {
		return fmt.Errorf("failed to load reviews: %w", err)
	}

	average := 0.0
	if len(stars) > 0 {
		total := 0
		for _, v := range stars {
			total += v
		}
		average = math.Round(float64(total)/float64(len(stars))*10) / 10
	}

	if err := s.DB.Model(&models.Tour{}).
		Where("id = ?", tourID).
		Updates(map[string]interface{}{
			"ratings_average":  average,
			"ratings_quantity": len(stars),
		}).Error; err != nil {
		return fmt.Errorf("failed to update rating aggregate: %w", err)
	}
	return nil
}
