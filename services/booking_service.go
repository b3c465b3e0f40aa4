package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"tour-marketplace-server/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var bookingLog = logrus.WithField("component", "booking_ledger")

// BookingService owns the booking state machine and the checkout/verify
// protocol against the payment gateway.
type BookingService struct {
	DB      *gorm.DB
	Gateway PaymentGateway
	Cache   *redis.Client // optional; CAS writes remain correct without it
}

func NewBookingService(db *gorm.DB, gateway PaymentGateway, cache *redis.Client) *BookingService {
	return &BookingService{DB: db, Gateway: gateway, Cache: cache}
}

type GuestDetail struct {
	FullName string `json:"fullName"`
	Type     string `json:"type"` // Adult, Child
}

type CreateBookingInput struct {
	TourID       uint
	TripDate     time.Time
	GuestSize    int
	Guests       []GuestDetail
	ContactName  string
	ContactPhone string
	ContactEmail string
	TotalAmount  float64 // computed by the caller from the tour price
	Currency     string
}

// CreateBooking persists a booking in {pending, pending}. The fulfilling
// agency is resolved from the tour record, never trusted from the client,
// and the trip details are snapshotted so later tour edits do not alter
// the booking.
func (s *BookingService) CreateBooking(requesterID uint, in CreateBookingInput) (*models.Booking, error) {
	var tour models.Tour
	if err := s.DB.First(&tour, in.TourID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTourNotFound
		}
		return nil, fmt.Errorf("failed to load tour: %w", err)
	}
	if tour.Active != nil && !*tour.Active {
		return nil, ErrTourInactive
	}

	guestsJSON, _ := json.Marshal(in.Guests)

	currency := strings.ToLower(in.Currency)
	if currency == "" {
		currency = "usd"
	}

	booking := models.Booking{
		UserID:        requesterID,
		AgencyID:      tour.AgencyID,
		TourID:        tour.ID,
		TourName:      tour.Title,
		TripDate:      in.TripDate,
		GuestSize:     in.GuestSize,
		Guests:        datatypes.JSON(guestsJSON),
		ContactName:   in.ContactName,
		ContactPhone:  in.ContactPhone,
		ContactEmail:  in.ContactEmail,
		TotalAmount:   in.TotalAmount,
		Currency:      currency,
		Status:        models.BookingStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}

	if err := s.DB.Create(&booking).Error; err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}
	return &booking, nil
}

// InitiateCheckout creates a gateway checkout session for the booking's
// snapshotted amount and persists the session reference on the booking so
// VerifyPayment is a real lookup rather than relying on the echoed
// client reference alone.
func (s *BookingService) InitiateCheckout(ctx context.Context, bookingID uint) (string, error) {
	var booking models.Booking
	if err := s.DB.First(&booking, bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrBookingNotFound
		}
		return "", fmt.Errorf("failed to load booking: %w", err)
	}

	clientURL := os.Getenv("CLIENT_URL")
	if clientURL == "" {
		clientURL = "http://localhost:3000"
	}
	clientURL = strings.TrimRight(clientURL, "/")

	session, err := s.Gateway.CreateCheckoutSession(ctx, CheckoutSessionCreate{
		BookingID:      booking.ID,
		TourID:         booking.TourID,
		ProductName:    booking.TourName,
		Amount:         booking.TotalAmount,
		Currency:       booking.Currency,
		SuccessURL:     fmt.Sprintf("%s/booking/%d/success?tour=%d&session_id={CHECKOUT_SESSION_ID}", clientURL, booking.ID, booking.TourID),
		CancelURL:      fmt.Sprintf("%s/tours/%d?booking=%d&cancelled=1", clientURL, booking.TourID, booking.ID),
		IdempotencyKey: s.checkoutIdempotencyKey(ctx, booking.ID),
	})
	if err != nil {
		return "", gatewayError("create checkout session", err)
	}

	if err := s.DB.Model(&models.Booking{}).
		Where("id = ?", booking.ID).
		Update("checkout_session_id", session.ID).Error; err != nil {
		bookingLog.WithError(err).WithField("booking", booking.ID).
			Warn("failed to persist checkout session reference")
	}

	bookingLog.WithFields(logrus.Fields{"booking": booking.ID, "session": session.ID}).
		Info("checkout session created")
	return session.URL, nil
}

// checkoutIdempotencyKey returns a key that is stable across client
// retries of the same logical checkout attempt. The attempt id lives in
// redis with a TTL; without redis every call is a fresh attempt.
func (s *BookingService) checkoutIdempotencyKey(ctx context.Context, bookingID uint) string {
	attempt := uuid.NewString()
	if s.Cache != nil {
		key := fmt.Sprintf("booking:%d:checkout-attempt", bookingID)
		if stored, err := s.Cache.Get(ctx, key).Result(); err == nil && stored != "" {
			attempt = stored
		} else if err := s.Cache.Set(ctx, key, attempt, time.Hour).Err(); err != nil {
			bookingLog.WithError(err).Warn("failed to store checkout attempt id")
		}
	}
	return fmt.Sprintf("booking:%d:checkout:%s", bookingID, attempt)
}

// VerifyPayment reconciles a booking with the gateway's session state.
// Returns "success" once the session is paid and the booking confirmed,
// "pending" otherwise. Idempotent: re-verifying an already-confirmed
// booking is a state-wise no-op. A failed call never guesses success.
func (s *BookingService) VerifyPayment(ctx context.Context, sessionID string) (string, error) {
	session, err := s.Gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		return "", gatewayError("retrieve session", err)
	}

	if session.PaymentStatus != SessionPaid {
		return "pending", nil
	}

	booking, err := s.findBookingForSession(session)
	if err != nil {
		return "", err
	}

	// Short-lived lock so concurrent verifies of the same booking do not
	// race each other to the gateway. The CAS below is the actual guard.
	if unlock := s.acquireVerifyLock(ctx, booking.ID); unlock != nil {
		defer unlock()
	}

	if booking.Status == models.BookingStatusConfirmed {
		return "success", nil
	}

	res := s.DB.Model(&models.Booking{}).
		Where("id = ? AND status = ?", booking.ID, models.BookingStatusPending).
		Updates(map[string]interface{}{
			"status":         models.BookingStatusConfirmed,
			"payment_status": models.PaymentStatusPaid,
			"payment_id":     session.PaymentIntentID,
		})
	if res.Error != nil {
		return "", fmt.Errorf("failed to confirm booking: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Someone else transitioned the booking first. Re-read to tell a
		// concurrent confirm from an illegal state.
		var current models.Booking
		if err := s.DB.First(&current, booking.ID).Error; err != nil {
			return "", ErrBookingNotFound
		}
		if current.Status == models.BookingStatusConfirmed {
			return "success", nil
		}
		return "", ErrInvalidStateTransition
	}

	bookingLog.WithFields(logrus.Fields{"booking": booking.ID, "payment": session.PaymentIntentID}).
		Info("booking confirmed")

	notifier := NewNotificationService(s.DB)
	notifier.CreateNotification(booking.UserID, "booking_confirmed", "Booking confirmed",
		fmt.Sprintf("Your booking for %s is confirmed.", booking.TourName), "booking", booking.ID)
	go notifier.PushBookingConfirmed(booking.UserID, booking.ID, booking.TourName)

	return "success", nil
}

func (s *BookingService) findBookingForSession(session *CheckoutSession) (*models.Booking, error) {
	var booking models.Booking

	// Preferred path: the session reference persisted at checkout time.
	err := s.DB.Where("checkout_session_id = ?", session.ID).First(&booking).Error
	if err == nil {
		return &booking, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up booking by session: %w", err)
	}

	// Fallback: the booking id echoed through the checkout flow.
	id, convErr := strconv.ParseUint(session.ClientReferenceID, 10, 64)
	if convErr != nil {
		return nil, ErrBookingNotFound
	}
	if err := s.DB.First(&booking, uint(id)).Error; err != nil {
		return nil, ErrBookingNotFound
	}
	return &booking, nil
}

func (s *BookingService) acquireVerifyLock(ctx context.Context, bookingID uint) func() {
	if s.Cache == nil {
		return nil
	}
	key := fmt.Sprintf("booking:%d:verify-lock", bookingID)
	ok, err := s.Cache.SetNX(ctx, key, "1", 10*time.Second).Result()
	if err != nil || !ok {
		return nil
	}
	return func() { s.Cache.Del(context.Background(), key) }
}

// CancelBooking sets the booking cancelled. The payment status is left
// untouched; refunds are a collaborator concern.
func (s *BookingService) CancelBooking(bookingID, actorID uint, actorRole string) (*models.Booking, error) {
	var booking models.Booking
	if err := s.DB.First(&booking, bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}

	isAdmin := actorRole == "admin"
	if booking.UserID != actorID && !isAdmin {
		return nil, ErrNotOwner
	}

	if !isAdmin {
		daysUntilTrip := int(math.Ceil(time.Until(booking.TripDate).Hours() / 24))
		if daysUntilTrip < 1 {
			return nil, ErrCancellationWindow
		}
	}

	res := s.DB.Model(&models.Booking{}).
		Where("id = ? AND status IN ?", booking.ID,
			[]string{models.BookingStatusPending, models.BookingStatusConfirmed}).
		Update("status", models.BookingStatusCancelled)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInvalidStateTransition
	}

	booking.Status = models.BookingStatusCancelled
	return &booking, nil
}

// GetBooking refuses non-owner, non-agency, non-admin requesters outright;
// authorization precedes projection.
func (s *BookingService) GetBooking(bookingID, actorID uint, actorRole string) (*models.Booking, error) {
	var booking models.Booking
	if err := s.DB.Preload("Tour").First(&booking, bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}

	switch {
	case booking.UserID == actorID:
	case actorRole == "admin":
	case actorRole == "agency" && booking.AgencyID == actorID:
	default:
		return nil, ErrNotOwner
	}
	return &booking, nil
}

func (s *BookingService) GetMyBookings(userID uint) ([]models.Booking, error) {
	var bookings []models.Booking
	if err := s.DB.Where("user_id = ?", userID).
		Preload("Tour").
		Order("created_at DESC").
		Find(&bookings).Error; err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}
	return bookings, nil
}

// ListBookings returns all bookings for admins, or the agency's own
// bookings for agency users.
func (s *BookingService) ListBookings(actorID uint, actorRole string, page, perPage int) ([]models.Booking, int64, error) {
	query := s.DB.Model(&models.Booking{})
	if actorRole != "admin" {
		query = query.Where("agency_id = ?", actorID)
	}

	var total int64
	query.Count(&total)

	var bookings []models.Booking
	if err := query.
		Preload("Tour").
		Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&bookings).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, total, nil
}
