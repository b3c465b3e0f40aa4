package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"tour-marketplace-server/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var verificationLog = logrus.WithField("component", "verification_ledger")

// subscriptionValidity stamps how long an approval is good for, measured
// from the moment of approval rather than payment time.
const subscriptionValidity = 30 * 24 * time.Hour

// VerificationService owns the per-user subscription handshake, the
// verification request review workflow, and the resulting entitlement
// mutation on the user. It is the only write path for the entitlement
// fields (role, isVerified, verification data).
type VerificationService struct {
	DB      *gorm.DB
	Gateway PaymentGateway
	Cache   *redis.Client
}

func NewVerificationService(db *gorm.DB, gateway PaymentGateway, cache *redis.Client) *VerificationService {
	return &VerificationService{DB: db, Gateway: gateway, Cache: cache}
}

type SubscriptionStart struct {
	SubscriptionID string
	ClientSecret   string // empty when the first invoice has nothing due
}

// StartSubscription sets up the recurring payment that gates agency
// verification. The gateway customer is created once and persisted
// immediately, so a retry after a timeout reuses it instead of creating a
// duplicate. Returns an empty client secret when the first invoice has a
// zero amount due (trial), in which case the caller proceeds straight to
// submission.
func (s *VerificationService) StartSubscription(ctx context.Context, userID uint) (*SubscriptionStart, error) {
	var user models.User
	if err := s.DB.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	customerID := user.StripeCustomerID
	if customerID == "" {
		customer, err := s.Gateway.CreateCustomer(ctx, user.Email,
			strings.TrimSpace(user.FirstName+" "+user.LastName),
			fmt.Sprintf("user:%d:customer", userID))
		if err != nil {
			return nil, gatewayError("create customer", err)
		}
		customerID = customer.ID

		// Persist before going further: this is the idempotency anchor.
		if err := s.DB.Model(&models.User{}).Where("id = ?", userID).
			Update("stripe_customer_id", customerID).Error; err != nil {
			return nil, fmt.Errorf("failed to persist customer reference: %w", err)
		}
	}

	sub, err := s.Gateway.CreateSubscription(ctx, customerID,
		os.Getenv("VERIFICATION_PRICE_ID"),
		s.subscriptionIdempotencyKey(ctx, userID))
	if err != nil {
		return nil, gatewayError("create subscription", err)
	}

	invoice := sub.LatestInvoice
	if invoice == nil && sub.LatestInvoiceID != "" {
		// Bare reference: fetch the expanded invoice.
		invoice, err = s.Gateway.RetrieveInvoice(ctx, sub.LatestInvoiceID)
		if err != nil {
			return nil, gatewayError("retrieve invoice", err)
		}
	}

	updates := map[string]interface{}{"stripe_subscription_id": sub.ID}
	if invoice != nil {
		updates["stripe_invoice_id"] = invoice.ID
	}
	if err := s.DB.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to persist subscription reference: %w", err)
	}

	if invoice == nil {
		return nil, fmt.Errorf("%w: subscription %s has no invoice", ErrPaymentSetup, sub.ID)
	}

	if invoice.AmountDue == 0 {
		verificationLog.WithFields(logrus.Fields{"user": userID, "subscription": sub.ID}).
			Info("zero amount due, no payment confirmation needed")
		return &SubscriptionStart{SubscriptionID: sub.ID}, nil
	}

	secret, err := s.resolveClientSecret(ctx, invoice)
	if err != nil {
		return nil, err
	}

	return &SubscriptionStart{SubscriptionID: sub.ID, ClientSecret: secret}, nil
}

// resolveClientSecret tries, in order: the secret off the expanded
// invoice, then force-finalizing a still-open invoice and re-reading. If
// neither yields a secret the subscription exists externally but is not
// actionable, which is ErrPaymentSetup, not a user input error.
func (s *VerificationService) resolveClientSecret(ctx context.Context, invoice *Invoice) (string, error) {
	if invoice.PaymentIntent != nil && invoice.PaymentIntent.ClientSecret != "" {
		return invoice.PaymentIntent.ClientSecret, nil
	}

	if invoice.Status == InvoiceStatusOpen {
		finalized, err := s.Gateway.FinalizeInvoice(ctx, invoice.ID)
		if err != nil {
			return "", gatewayError("finalize invoice", err)
		}
		if finalized.PaymentIntent != nil && finalized.PaymentIntent.ClientSecret != "" {
			return finalized.PaymentIntent.ClientSecret, nil
		}
	}

	return "", fmt.Errorf("%w: no client secret on invoice %s", ErrPaymentSetup, invoice.ID)
}

func (s *VerificationService) subscriptionIdempotencyKey(ctx context.Context, userID uint) string {
	attempt := uuid.NewString()
	if s.Cache != nil {
		key := fmt.Sprintf("user:%d:subscription-attempt", userID)
		if stored, err := s.Cache.Get(ctx, key).Result(); err == nil && stored != "" {
			attempt = stored
		} else if err := s.Cache.Set(ctx, key, attempt, time.Hour).Err(); err != nil {
			verificationLog.WithError(err).Warn("failed to store subscription attempt id")
		}
	}
	return fmt.Sprintf("user:%d:subscription:%s", userID, attempt)
}

type SubmitVerificationInput struct {
	ContactName    string
	ContactPhone   string
	ContactEmail   string
	AddressLine    string
	City           string
	Country        string
	DocumentType   string
	DocumentNumber string
	DocumentURL    string // already uploaded; stored opaquely
}

// SubmitRequest persists a pending verification request and mirrors the
// pending state onto the user so the UI reflects it immediately. The
// subscription's invoice is re-verified server-side before the request
// becomes eligible for admin review; client-side payment confirmation is
// not trusted on its own.
func (s *VerificationService) SubmitRequest(ctx context.Context, userID uint, in SubmitVerificationInput) (*models.VerificationRequest, error) {
	var user models.User
	if err := s.DB.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if user.StripeSubscriptionID == "" {
		return nil, ErrSubscriptionRequired
	}

	// Exactly one outstanding request drives the user's status.
	var pending models.VerificationRequest
	err := s.DB.Where("user_id = ? AND status = ?", userID, models.VerificationStatusPending).
		First(&pending).Error
	if err == nil {
		return nil, ErrRequestPending
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check outstanding requests: %w", err)
	}

	if user.StripeInvoiceID != "" {
		invoice, err := s.Gateway.RetrieveInvoice(ctx, user.StripeInvoiceID)
		if err != nil {
			return nil, gatewayError("retrieve invoice", err)
		}
		if invoice.Status != "paid" && invoice.AmountDue != 0 {
			return nil, ErrSubscriptionUnpaid
		}
	}

	request := models.VerificationRequest{
		UserID:         userID,
		ContactName:    in.ContactName,
		ContactPhone:   in.ContactPhone,
		ContactEmail:   in.ContactEmail,
		AddressLine:    in.AddressLine,
		City:           in.City,
		Country:        in.Country,
		DocumentType:   in.DocumentType,
		DocumentNumber: in.DocumentNumber,
		DocumentURL:    in.DocumentURL,
		SubscriptionID: user.StripeSubscriptionID,
		Status:         models.VerificationStatusPending,
	}

	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&request).Error; err != nil {
			return err
		}
		// Mirror the pending state; only ledger-owned fields are written.
		return tx.Model(&models.User{}).Where("id = ?", userID).
			Updates(map[string]interface{}{
				"verification_status": models.VerificationStatusPending,
				"is_verified":         false,
				"phone_number":        in.ContactPhone,
			}).Error
	})
	if txErr != nil {
		return nil, fmt.Errorf("failed to persist verification request: %w", txErr)
	}

	verificationLog.WithFields(logrus.Fields{"user": userID, "request": request.ID}).
		Info("verification request submitted")
	return &request, nil
}

// Decide settles a pending request exactly once. Approval is the only
// path that sets isVerified and promotes the role to agency; rejection
// leaves the role unchanged. Re-deciding an already-decided request is
// rejected as an invalid state transition.
func (s *VerificationService) Decide(requestID, adminID uint, decision, note string) (*models.VerificationRequest, error) {
	var request models.VerificationRequest
	if err := s.DB.First(&request, requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to load request: %w", err)
	}

	now := time.Now().UTC()

	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.VerificationRequest{}).
			Where("id = ? AND status = ?", requestID, models.VerificationStatusPending).
			Updates(map[string]interface{}{
				"status":      decision,
				"admin_note":  note,
				"reviewed_by": adminID,
				"reviewed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidStateTransition
		}

		userUpdates := map[string]interface{}{
			"verification_status": decision,
		}
		if decision == models.VerificationStatusApproved {
			expires := now.Add(subscriptionValidity)
			userUpdates["is_verified"] = true
			userUpdates["role"] = "agency"
			userUpdates["document_type"] = request.DocumentType
			userUpdates["document_number"] = request.DocumentNumber
			userUpdates["document_url"] = request.DocumentURL
			userUpdates["subscription_expires_at"] = expires
		} else {
			userUpdates["is_verified"] = false
		}

		return tx.Model(&models.User{}).Where("id = ?", request.UserID).
			Updates(userUpdates).Error
	})
	if txErr != nil {
		if errors.Is(txErr, ErrInvalidStateTransition) {
			return nil, ErrInvalidStateTransition
		}
		return nil, fmt.Errorf("failed to decide request: %w", txErr)
	}

	request.Status = decision
	request.AdminNote = note
	request.ReviewedBy = &adminID
	request.ReviewedAt = &now

	verificationLog.WithFields(logrus.Fields{
		"request": requestID, "decision": decision, "admin": adminID,
	}).Info("verification request decided")

	notifier := NewNotificationService(s.DB)
	if decision == models.VerificationStatusApproved {
		notifier.CreateNotification(request.UserID, "verification_decided", "Verification approved",
			"Your agency verification was approved.", "verification_request", request.ID)
	} else {
		notifier.CreateNotification(request.UserID, "verification_decided", "Verification rejected",
			"Your verification was rejected: "+note, "verification_request", request.ID)
	}

	return &request, nil
}

// ListRequests returns verification requests for admin review, optionally
// filtered by status.
func (s *VerificationService) ListRequests(status string, page, perPage int) ([]models.VerificationRequest, int64, error) {
	query := s.DB.Model(&models.VerificationRequest{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	query.Count(&total)

	var requests []models.VerificationRequest
	if err := query.
		Preload("User").
		Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&requests).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list requests: %w", err)
	}
	return requests, total, nil
}
