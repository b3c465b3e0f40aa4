package services

import (
	"context"
	"testing"
	"time"

	"tour-marketplace-server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func submitInput() SubmitVerificationInput {
	return SubmitVerificationInput{
		ContactName:    "Fatima Sy",
		ContactPhone:   "22298765432",
		ContactEmail:   "fatima@example.com",
		AddressLine:    "12 Rue de la Plage",
		City:           "Nouadhibou",
		Country:        "Mauritania",
		DocumentType:   models.DocumentTypeIDCard,
		DocumentNumber: "MR-1234567",
		DocumentURL:    "https://res.cloudinary.com/demo/verification/doc.jpg",
	}
}

func TestStartSubscriptionCreatesCustomerOnce(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway()
	gw.invoices["in_test_1"] = &Invoice{
		ID:        "in_test_1",
		Status:    InvoiceStatusOpen,
		AmountDue: 2500,
		PaymentIntent: &PaymentIntent{
			ID:           "pi_test_1",
			ClientSecret: "pi_test_1_secret",
		},
	}
	gw.subscription = &Subscription{ID: "sub_test_1", Status: "incomplete", LatestInvoiceID: "in_test_1"}
	svc := NewVerificationService(db, gw, nil)

	user := createTestUser(t, db, "fatima@example.com", "user")

	start, err := svc.StartSubscription(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "sub_test_1", start.SubscriptionID)
	assert.Equal(t, "pi_test_1_secret", start.ClientSecret)

	// The customer reference must survive the first call so a retry
	// reuses it instead of minting a second customer.
	_, err = svc.StartSubscription(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gw.customerCalls)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.Equal(t, "cus_test_1", stored.StripeCustomerID)
	assert.Equal(t, "sub_test_1", stored.StripeSubscriptionID)
	assert.Equal(t, "in_test_1", stored.StripeInvoiceID)
}

func TestStartSubscriptionZeroAmountDue(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway()
	gw.subscription = &Subscription{
		ID:     "sub_test_1",
		Status: "active",
		LatestInvoice: &Invoice{
			ID:        "in_test_1",
			Status:    "paid",
			AmountDue: 0,
		},
	}
	svc := NewVerificationService(db, gw, nil)
	user := createTestUser(t, db, "trial@example.com", "user")

	start, err := svc.StartSubscription(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, start.ClientSecret, "nothing due means no payment confirmation step")
}

func TestStartSubscriptionFinalizesOpenInvoice(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway()
	// The expanded invoice is open and carries no payment intent; the
	// finalized copy is the one with the usable secret.
	gw.subscription = &Subscription{
		ID:     "sub_test_1",
		Status: "incomplete",
		LatestInvoice: &Invoice{
			ID:        "in_test_1",
			Status:    InvoiceStatusOpen,
			AmountDue: 2500,
		},
	}
	gw.finalized["in_test_1"] = &Invoice{
		ID:        "in_test_1",
		Status:    InvoiceStatusOpen,
		AmountDue: 2500,
		PaymentIntent: &PaymentIntent{
			ID:           "pi_test_1",
			ClientSecret: "pi_test_1_secret",
		},
	}
	svc := NewVerificationService(db, gw, nil)
	user := createTestUser(t, db, "open@example.com", "user")

	start, err := svc.StartSubscription(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_test_1_secret", start.ClientSecret)
}

func TestStartSubscriptionNoSecretAnywhere(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway()
	gw.subscription = &Subscription{
		ID:     "sub_test_1",
		Status: "incomplete",
		LatestInvoice: &Invoice{
			ID:        "in_test_1",
			Status:    "draft",
			AmountDue: 2500,
		},
	}
	svc := NewVerificationService(db, gw, nil)
	user := createTestUser(t, db, "stuck@example.com", "user")

	_, err := svc.StartSubscription(context.Background(), user.ID)
	assert.ErrorIs(t, err, ErrPaymentSetup)
}

func TestSubmitRequestRequiresSubscription(t *testing.T) {
	db := newTestDB(t)
	svc := NewVerificationService(db, newFakeGateway(), nil)
	user := createTestUser(t, db, "nosub@example.com", "user")

	_, err := svc.SubmitRequest(context.Background(), user.ID, submitInput())
	assert.ErrorIs(t, err, ErrSubscriptionRequired)
}

func TestSubmitRequestRejectsUnpaidInvoice(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway()
	gw.invoices["in_test_1"] = &Invoice{ID: "in_test_1", Status: InvoiceStatusOpen, AmountDue: 2500}
	svc := NewVerificationService(db, gw, nil)

	user := createTestUser(t, db, "unpaid@example.com", "user")
	require.NoError(t, db.Model(user).Updates(map[string]interface{}{
		"stripe_subscription_id": "sub_test_1",
		"stripe_invoice_id":      "in_test_1",
	}).Error)

	_, err := svc.SubmitRequest(context.Background(), user.ID, submitInput())
	assert.ErrorIs(t, err, ErrSubscriptionUnpaid)
}

func TestSubmitRequestMirrorsPendingState(t *testing.T) {
	db := newTestDB(t)
	gw := newFakeGateway()
	gw.invoices["in_test_1"] = &Invoice{ID: "in_test_1", Status: "paid", AmountDue: 2500}
	svc := NewVerificationService(db, gw, nil)

	user := createTestUser(t, db, "paid@example.com", "user")
	require.NoError(t, db.Model(user).Updates(map[string]interface{}{
		"stripe_subscription_id": "sub_test_1",
		"stripe_invoice_id":      "in_test_1",
	}).Error)

	request, err := svc.SubmitRequest(context.Background(), user.ID, submitInput())
	require.NoError(t, err)
	assert.Equal(t, models.VerificationStatusPending, request.Status)
	assert.Equal(t, "sub_test_1", request.SubscriptionID)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.Equal(t, models.VerificationStatusPending, stored.VerificationStatus)
	require.NotNil(t, stored.IsVerified)
	assert.False(t, *stored.IsVerified)
	assert.Equal(t, "22298765432", stored.PhoneNumber)

	// A second submission while the first is pending is refused.
	_, err = svc.SubmitRequest(context.Background(), user.ID, submitInput())
	assert.ErrorIs(t, err, ErrRequestPending)
}

func subscribedUserWithRequest(t *testing.T, db *gorm.DB, svc *VerificationService) (*models.User, *models.VerificationRequest) {
	t.Helper()
	user := createTestUser(t, db, "applicant@example.com", "user")
	require.NoError(t, db.Model(user).Update("stripe_subscription_id", "sub_test_1").Error)
	request, err := svc.SubmitRequest(context.Background(), user.ID, submitInput())
	require.NoError(t, err)
	return user, request
}

func TestDecideApprovePromotesUser(t *testing.T) {
	db := newTestDB(t)
	svc := NewVerificationService(db, newFakeGateway(), nil)
	admin := createTestUser(t, db, "admin@example.com", "admin")
	user, request := subscribedUserWithRequest(t, db, svc)

	decided, err := svc.Decide(request.ID, admin.ID, models.VerificationStatusApproved, "documents check out")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationStatusApproved, decided.Status)
	require.NotNil(t, decided.ReviewedBy)
	assert.Equal(t, admin.ID, *decided.ReviewedBy)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	require.NotNil(t, stored.IsVerified)
	assert.True(t, *stored.IsVerified)
	assert.Equal(t, "agency", stored.Role)
	assert.Equal(t, models.DocumentTypeIDCard, stored.DocumentType)
	assert.Equal(t, "MR-1234567", stored.DocumentNumber)
	require.NotNil(t, stored.SubscriptionExpiresAt)
	assert.WithinDuration(t, time.Now().Add(subscriptionValidity), *stored.SubscriptionExpiresAt, time.Minute)

	var note models.Notification
	require.NoError(t, db.Where("user_id = ? AND type = ?", user.ID, "verification_decided").First(&note).Error)
}

func TestDecideRejectLeavesRoleUnchanged(t *testing.T) {
	db := newTestDB(t)
	svc := NewVerificationService(db, newFakeGateway(), nil)
	admin := createTestUser(t, db, "admin@example.com", "admin")
	user, request := subscribedUserWithRequest(t, db, svc)

	_, err := svc.Decide(request.ID, admin.ID, models.VerificationStatusRejected, "document illegible")
	require.NoError(t, err)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	require.NotNil(t, stored.IsVerified)
	assert.False(t, *stored.IsVerified)
	assert.Equal(t, "user", stored.Role)
	assert.Equal(t, models.VerificationStatusRejected, stored.VerificationStatus)
}

func TestDecideTwiceIsIllegal(t *testing.T) {
	db := newTestDB(t)
	svc := NewVerificationService(db, newFakeGateway(), nil)
	admin := createTestUser(t, db, "admin@example.com", "admin")
	_, request := subscribedUserWithRequest(t, db, svc)

	_, err := svc.Decide(request.ID, admin.ID, models.VerificationStatusApproved, "")
	require.NoError(t, err)

	_, err = svc.Decide(request.ID, admin.ID, models.VerificationStatusRejected, "changed my mind")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestResubmissionAfterRejection(t *testing.T) {
	db := newTestDB(t)
	svc := NewVerificationService(db, newFakeGateway(), nil)
	admin := createTestUser(t, db, "admin@example.com", "admin")
	user, request := subscribedUserWithRequest(t, db, svc)

	_, err := svc.Decide(request.ID, admin.ID, models.VerificationStatusRejected, "blurry photo")
	require.NoError(t, err)

	// A settled request no longer blocks a fresh one.
	second, err := svc.SubmitRequest(context.Background(), user.ID, submitInput())
	require.NoError(t, err)
	assert.NotEqual(t, request.ID, second.ID)
	assert.Equal(t, models.VerificationStatusPending, second.Status)
}

func TestDecideMissingRequest(t *testing.T) {
	db := newTestDB(t)
	svc := NewVerificationService(db, newFakeGateway(), nil)
	admin := createTestUser(t, db, "admin@example.com", "admin")

	_, err := svc.Decide(404, admin.ID, models.VerificationStatusApproved, "")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestListRequestsFiltersByStatus(t *testing.T) {
	db := newTestDB(t)
	svc := NewVerificationService(db, newFakeGateway(), nil)
	admin := createTestUser(t, db, "admin@example.com", "admin")
	_, request := subscribedUserWithRequest(t, db, svc)

	pending, total, err := svc.ListRequests(models.VerificationStatusPending, 1, 25)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, pending, 1)
	assert.NotZero(t, pending[0].User.ID, "user must be preloaded for review")

	_, err = svc.Decide(request.ID, admin.ID, models.VerificationStatusApproved, "")
	require.NoError(t, err)

	_, total, err = svc.ListRequests(models.VerificationStatusPending, 1, 25)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}
