package routes

import (
	"time"

	"tour-marketplace-server/services"
	"tour-marketplace-server/storage"
	"tour-marketplace-server/utils"

	"github.com/kataras/iris/v12"
)

type CreateBookingRequest struct {
	TourID       uint                   `json:"tourId" validate:"required"`
	TripDate     string                 `json:"tripDate" validate:"required"`
	GuestSize    int                    `json:"guestSize" validate:"required,min=1"`
	Guests       []services.GuestDetail `json:"guests"`
	ContactName  string                 `json:"contactName" validate:"required,max=128"`
	ContactPhone string                 `json:"contactPhone" validate:"required,max=32"`
	ContactEmail string                 `json:"contactEmail" validate:"required,email"`
	TotalAmount  float64                `json:"totalAmount" validate:"required,gt=0"`
	Currency     string                 `json:"currency" validate:"omitempty,len=3"`
}

type CheckoutSessionRequest struct {
	BookingID uint `json:"bookingId" validate:"required"`
}

type VerifyPaymentRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

func bookingService() *services.BookingService {
	return services.NewBookingService(storage.DB, services.Gateway(), storage.Redis)
}

// CreateBooking persists a booking in pending/pending; payment comes later
// through the checkout flow.
func CreateBooking(ctx iris.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	var req CreateBookingRequest
	if err := ctx.ReadJSON(&req); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	tripDate, err := time.Parse("2006-01-02", req.TripDate)
	if err != nil {
		if tripDate, err = time.Parse(time.RFC3339, req.TripDate); err != nil {
			ctx.StatusCode(iris.StatusBadRequest)
			ctx.JSON(iris.Map{"message": "Invalid trip date format"})
			return
		}
	}

	if tripDate.Before(time.Now().Truncate(24 * time.Hour)) {
		ctx.StatusCode(iris.StatusBadRequest)
		ctx.JSON(iris.Map{"message": "Cannot book tours in the past"})
		return
	}

	booking, err := bookingService().CreateBooking(userID, services.CreateBookingInput{
		TourID:       req.TourID,
		TripDate:     tripDate,
		GuestSize:    req.GuestSize,
		Guests:       req.Guests,
		ContactName:  req.ContactName,
		ContactPhone: req.ContactPhone,
		ContactEmail: req.ContactEmail,
		TotalAmount:  req.TotalAmount,
		Currency:     req.Currency,
	})
	if err != nil {
		mapServiceError(ctx, err)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"success": true, "data": booking})
}

// CreateCheckoutSession returns the gateway-hosted payment URL for a booking.
func CreateCheckoutSession(ctx iris.Context) {
	if _, ok := currentUserID(ctx); !ok {
		return
	}

	var req CheckoutSessionRequest
	if err := ctx.ReadJSON(&req); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	url, err := bookingService().InitiateCheckout(ctx.Request().Context(), req.BookingID)
	if err != nil {
		mapServiceError(ctx, err)
		return
	}

	ctx.JSON(iris.Map{"success": true, "data": iris.Map{"url": url}})
}

// VerifyPayment polls the gateway for the session's payment state and
// promotes the booking when it is paid. Safe to call repeatedly.
func VerifyPayment(ctx iris.Context) {
	if _, ok := currentUserID(ctx); !ok {
		return
	}

	var req VerifyPaymentRequest
	if err := ctx.ReadJSON(&req); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	status, err := bookingService().VerifyPayment(ctx.Request().Context(), req.SessionID)
	if err != nil {
		mapServiceError(ctx, err)
		return
	}

	ctx.JSON(iris.Map{"success": true, "data": iris.Map{"status": status}})
}

// CancelBooking cancels a booking, subject to the 24-hour rule for
// non-admin actors.
func CancelBooking(ctx iris.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	bookingID := ctx.Params().GetUintDefault("id", 0)
	if bookingID == 0 {
		ctx.StatusCode(iris.StatusBadRequest)
		ctx.JSON(iris.Map{"message": "Invalid booking ID"})
		return
	}

	booking, err := bookingService().CancelBooking(bookingID, userID, currentRole(ctx))
	if err != nil {
		mapServiceError(ctx, err)
		return
	}

	if currentRole(ctx) == "admin" {
		utils.Audit(ctx, "booking.cancel", "booking", booking.ID, nil, booking)
	}

	ctx.JSON(iris.Map{"success": true, "data": booking})
}

func GetBooking(ctx iris.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	bookingID := ctx.Params().GetUintDefault("id", 0)
	if bookingID == 0 {
		ctx.StatusCode(iris.StatusBadRequest)
		ctx.JSON(iris.Map{"message": "Invalid booking ID"})
		return
	}

	booking, err := bookingService().GetBooking(bookingID, userID, currentRole(ctx))
	if err != nil {
		mapServiceError(ctx, err)
		return
	}

	ctx.JSON(iris.Map{"success": true, "data": booking})
}

func GetMyBookings(ctx iris.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	bookings, err := bookingService().GetMyBookings(userID)
	if err != nil {
		mapServiceError(ctx, err)
		return
	}

	ctx.JSON(iris.Map{"success": true, "data": bookings})
}

// ListBookings - GET /bookings?page=&per_page= (admin sees all, agency its own)
func ListBookings(ctx iris.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	page, perPage := pageParams(ctx)
	bookings, total, err := bookingService().ListBookings(userID, currentRole(ctx), page, perPage)
	if err != nil {
		mapServiceError(ctx, err)
		return
	}

	utils.JSONPage(ctx, bookings, page, perPage, total)
}
