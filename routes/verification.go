package routes

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tour-marketplace-server/models"
	"tour-marketplace-server/services"
	"tour-marketplace-server/storage"
	"tour-marketplace-server/utils"

	"github.com/google/uuid"
	"github.com/kataras/iris/v12"
)

func verificationService() *services.VerificationService {
	return services.NewVerificationService(storage.DB, services.Gateway(), storage.Redis)
}

// StartSubscription sets up the recurring payment that gates agency
// verification and returns the client secret for client-side confirmation.
// clientSecret is null when nothing is due on the first invoice.
func StartSubscription(ctx iris.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	result, err := verificationService().StartSubscription(ctx.Request().Context(), userID)
	if err != nil {
		mapServiceError(ctx, err)
		return
	}

	var secret interface{}
	if result.ClientSecret != "" {
		secret = result.ClientSecret
	}
	ctx.JSON(iris.Map{
		"success": true,
		"data": iris.Map{
			"subscriptionId": result.SubscriptionID,
			"clientSecret":   secret,
		},
	})
}

// SubmitVerificationRequest accepts a multipart packet with exactly one
// document image, uploads the image, and files the request for admin review.
func SubmitVerificationRequest(ctx iris.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	documentType := strings.TrimSpace(ctx.FormValue("documentType"))
	if documentType != models.DocumentTypeIDCard &&
		documentType != models.DocumentTypePassport &&
		documentType != models.DocumentTypeOther {
		utils.JSONError(ctx, http.StatusUnprocessableEntity, "validation_error", "documentType must be id-card, passport or other")
		return
	}

	documentNumber := strings.TrimSpace(ctx.FormValue("documentNumber"))
	if documentNumber == "" {
		utils.JSONError(ctx, http.StatusUnprocessableEntity, "validation_error", "documentNumber is required")
		return
	}

	contactName := strings.TrimSpace(ctx.FormValue("contactName"))
	contactPhone := strings.TrimSpace(ctx.FormValue("contactPhone"))
	contactEmail := strings.TrimSpace(ctx.FormValue("contactEmail"))
	addressLine := strings.TrimSpace(ctx.FormValue("addressLine"))
	city := strings.TrimSpace(ctx.FormValue("city"))
	country := strings.TrimSpace(ctx.FormValue("country"))
	if contactName == "" || contactPhone == "" || contactEmail == "" || addressLine == "" || city == "" || country == "" {
		utils.JSONError(ctx, http.StatusUnprocessableEntity, "validation_error", "contact and address fields are required")
		return
	}

	// Exactly one document image.
	file, _, err := ctx.FormFile("document")
	if err != nil {
		utils.JSONError(ctx, http.StatusUnprocessableEntity, "validation_error", "exactly one document image is required")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil || len(raw) == 0 {
		utils.JSONError(ctx, http.StatusUnprocessableEntity, "validation_error", "document image could not be read")
		return
	}

	documentURL := storage.UploadBase64Image(
		base64.StdEncoding.EncodeToString(raw),
		fmt.Sprintf("verification/%d/document-%s", userID, uuid.NewString()),
	)
	if documentURL == "" {
		utils.JSONError(ctx, http.StatusBadGateway, "upload_failed", "document image upload failed")
		return
	}

	request, err := verificationService().SubmitRequest(ctx.Request().Context(), userID, services.SubmitVerificationInput{
		ContactName:    contactName,
		ContactPhone:   contactPhone,
		ContactEmail:   contactEmail,
		AddressLine:    addressLine,
		City:           city,
		Country:        country,
		DocumentType:   documentType,
		DocumentNumber: documentNumber,
		DocumentURL:    documentURL,
	})
	if err != nil {
		mapServiceError(ctx, err)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"success": true, "data": request})
}
