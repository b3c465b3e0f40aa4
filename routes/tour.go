package routes

import (
	"encoding/json"
	"strings"

	"tour-marketplace-server/models"
	"tour-marketplace-server/storage"
	"tour-marketplace-server/utils"

	"github.com/kataras/iris/v12"
	"gorm.io/datatypes"
)

type CreateTourRequest struct {
	Title          string   `json:"title" validate:"required,max=256"`
	City           string   `json:"city" validate:"required,max=128"`
	Description    string   `json:"description" validate:"max=5000"`
	PricePerPerson float64  `json:"pricePerPerson" validate:"required,gt=0"`
	MaxGroupSize   int      `json:"maxGroupSize" validate:"required,min=1"`
	Photos         []string `json:"photos"`
}

// CreateTour - POST /tours (agency or admin)
func CreateTour(ctx iris.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	var req CreateTourRequest
	if err := ctx.ReadJSON(&req); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	photosJSON, _ := json.Marshal(req.Photos)
	active := true
	tour := models.Tour{
		AgencyID:       userID,
		Title:          req.Title,
		City:           req.City,
		Description:    req.Description,
		PricePerPerson: req.PricePerPerson,
		MaxGroupSize:   req.MaxGroupSize,
		Photos:         datatypes.JSON(photosJSON),
		Active:         &active,
	}

	if err := storage.DB.Create(&tour).Error; err != nil {
		ctx.StatusCode(iris.StatusInternalServerError)
		ctx.JSON(iris.Map{"message": "Failed to create tour"})
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"success": true, "data": tour})
}

// ListTours - GET /tours?city=&page=&per_page=
func ListTours(ctx iris.Context) {
	page, perPage := pageParams(ctx)

	query := storage.DB.Model(&models.Tour{}).Where("active = ?", true)
	if city := strings.TrimSpace(ctx.URLParamDefault("city", "")); city != "" {
		query = query.Where("lower(city) = ?", strings.ToLower(city))
	}

	var total int64
	query.Count(&total)

	var tours []models.Tour
	if err := query.
		Order("ratings_average DESC, created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&tours).Error; err != nil {
		ctx.StatusCode(iris.StatusInternalServerError)
		ctx.JSON(iris.Map{"message": "Failed to load tours"})
		return
	}

	utils.JSONPage(ctx, tours, page, perPage, total)
}

func GetTour(ctx iris.Context) {
	tourID := ctx.Params().GetUintDefault("id", 0)
	if tourID == 0 {
		ctx.StatusCode(iris.StatusBadRequest)
		ctx.JSON(iris.Map{"message": "Invalid tour ID"})
		return
	}

	var tour models.Tour
	if err := storage.DB.Preload("Agency").First(&tour, tourID).Error; err != nil {
		ctx.StatusCode(iris.StatusNotFound)
		ctx.JSON(iris.Map{"message": "Tour not found"})
		return
	}

	ctx.JSON(iris.Map{"success": true, "data": tour})
}
