package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"tour-marketplace-server/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Tour{},
		&models.Booking{},
		&models.Review{},
		&models.VerificationRequest{},
		&models.Notification{},
		&models.AuditLog{},
	); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email, role string) *models.User {
	t.Helper()
	user := models.User{
		FirstName: "Test",
		LastName:  "User",
		Email:     email,
		Role:      role,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return &user
}

func createTestTour(t *testing.T, db *gorm.DB, agencyID uint, title string) *models.Tour {
	t.Helper()
	active := true
	tour := models.Tour{
		AgencyID:       agencyID,
		Title:          title,
		City:           "Nouakchott",
		PricePerPerson: 55,
		MaxGroupSize:   10,
		Active:         &active,
	}
	if err := db.Create(&tour).Error; err != nil {
		t.Fatalf("failed to create test tour: %v", err)
	}
	return &tour
}

// fakeGateway is an in-memory PaymentGateway with scripted responses.
type fakeGateway struct {
	mu sync.Mutex

	sessions  map[string]*CheckoutSession
	invoices  map[string]*Invoice
	finalized map[string]*Invoice

	subscription *Subscription
	failOn       map[string]error

	sessionCalls      int
	customerCalls     int
	subscriptionCalls int
	idempotencyKeys   []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sessions:  make(map[string]*CheckoutSession),
		invoices:  make(map[string]*Invoice),
		finalized: make(map[string]*Invoice),
		failOn:    make(map[string]error),
	}
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, in CheckoutSessionCreate) (*CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["create_session"]; err != nil {
		return nil, err
	}
	f.sessionCalls++
	f.idempotencyKeys = append(f.idempotencyKeys, in.IdempotencyKey)

	id := fmt.Sprintf("cs_test_%d", f.sessionCalls)
	session := &CheckoutSession{
		ID:                id,
		URL:               "https://checkout.example.com/" + id,
		PaymentStatus:     SessionUnpaid,
		ClientReferenceID: fmt.Sprintf("%d", in.BookingID),
	}
	f.sessions[id] = session
	return session, nil
}

func (f *fakeGateway) RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["retrieve_session"]; err != nil {
		return nil, err
	}
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such session: %s", sessionID)
	}
	copied := *session
	return &copied, nil
}

func (f *fakeGateway) markSessionPaid(sessionID, paymentIntentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session, ok := f.sessions[sessionID]; ok {
		session.PaymentStatus = SessionPaid
		session.PaymentIntentID = paymentIntentID
	}
}

func (f *fakeGateway) CreateCustomer(ctx context.Context, email, name, idempotencyKey string) (*Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["create_customer"]; err != nil {
		return nil, err
	}
	f.customerCalls++
	return &Customer{ID: fmt.Sprintf("cus_test_%d", f.customerCalls)}, nil
}

func (f *fakeGateway) CreateSubscription(ctx context.Context, customerID, priceID, idempotencyKey string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["create_subscription"]; err != nil {
		return nil, err
	}
	f.subscriptionCalls++
	f.idempotencyKeys = append(f.idempotencyKeys, idempotencyKey)
	if f.subscription == nil {
		return nil, fmt.Errorf("no subscription scripted")
	}
	copied := *f.subscription
	return &copied, nil
}

func (f *fakeGateway) RetrieveInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["retrieve_invoice"]; err != nil {
		return nil, err
	}
	invoice, ok := f.invoices[invoiceID]
	if !ok {
		return nil, fmt.Errorf("no such invoice: %s", invoiceID)
	}
	copied := *invoice
	return &copied, nil
}

func (f *fakeGateway) FinalizeInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["finalize_invoice"]; err != nil {
		return nil, err
	}
	invoice, ok := f.finalized[invoiceID]
	if !ok {
		return nil, fmt.Errorf("invoice cannot be finalized: %s", invoiceID)
	}
	copied := *invoice
	return &copied, nil
}
