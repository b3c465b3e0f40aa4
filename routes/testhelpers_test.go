package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"tour-marketplace-server/models"
	"tour-marketplace-server/services"
	"tour-marketplace-server/storage"
	"tour-marketplace-server/utils"

	"github.com/go-playground/validator/v10"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestEnv points the package-level storage at an in-memory database
// and installs a stub payment gateway, restoring nothing: each test file
// builds its own world.
func setupTestEnv(t *testing.T) (*gorm.DB, *stubGateway) {
	t.Helper()

	dsn := fmt.Sprintf("file:routes_%s?mode=memory&cache=shared", t.Name())
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

	storage.DB = db
	storage.Redis = nil

	gw := &stubGateway{sessions: map[string]*services.CheckoutSession{}}
	services.SetPaymentGateway(gw)
	return db, gw
}

// buildTestApp wires an Iris app with the real middleware chain and the
// routes under test.
func buildTestApp() *iris.Application {
	os.Setenv("ACCESS_TOKEN_SECRET", "testsecret")
	os.Setenv("CLIENT_URL", "http://localhost:3000")

	app := iris.New()
	app.Validator = validator.New()

	verifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	verifyMiddleware := verifier.Verify(func() interface{} { return new(utils.AccessToken) })

	bookings := app.Party("/api/bookings", verifyMiddleware, utils.UserIDFromTokenMiddleware)
	{
		bookings.Post("/", CreateBooking)
		bookings.Post("/checkout-session", CreateCheckoutSession)
		bookings.Post("/verify-payment", VerifyPayment)
		bookings.Get("/my-bookings", GetMyBookings)
		bookings.Get("/{id:uint}", GetBooking)
		bookings.Put("/{id:uint}/cancel", CancelBooking)
		bookings.Get("/", utils.AgencyOrAdminMiddleware, ListBookings)
	}

	requests := app.Party("/api/requests", verifyMiddleware, utils.UserIDFromTokenMiddleware)
	{
		requests.Post("/subscription", StartSubscription)
		requests.Post("/", SubmitVerificationRequest)
		requests.Get("/", utils.AdminOnlyMiddleware, ListVerificationRequests)
		requests.Put("/{id:uint}/status", utils.AdminOnlyMiddleware, DecideVerificationRequest)
	}

	if err := app.Build(); err != nil {
		panic(err)
	}
	return app
}

// signTestToken returns a signed JWT with the given identity
func signTestToken(id uint, role string) string {
	signer := jwt.NewSigner(jwt.HS256, os.Getenv("ACCESS_TOKEN_SECRET"), time.Hour)
	token, _ := signer.Sign(utils.AccessToken{ID: id, Role: role})
	return string(token)
}

func seedUser(t *testing.T, db *gorm.DB, email, role string) *models.User {
	t.Helper()
	user := models.User{FirstName: "Test", LastName: "User", Email: email, Role: role}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return &user
}

func seedTour(t *testing.T, db *gorm.DB, agencyID uint) *models.Tour {
	t.Helper()
	active := true
	tour := models.Tour{
		AgencyID:       agencyID,
		Title:          "Adrar Highlands",
		City:           "Atar",
		PricePerPerson: 55,
		MaxGroupSize:   8,
		Active:         &active,
	}
	if err := db.Create(&tour).Error; err != nil {
		t.Fatalf("failed to seed tour: %v", err)
	}
	return &tour
}

func putJSON(app http.Handler, path, token string, body interface{}) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPut, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)
	return resp
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// stubGateway answers gateway calls with canned data; just enough for the
// HTTP flows under test.
type stubGateway struct {
	mu       sync.Mutex
	sessions map[string]*services.CheckoutSession
	nextID   int
}

func (g *stubGateway) CreateCheckoutSession(ctx context.Context, in services.CheckoutSessionCreate) (*services.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	id := fmt.Sprintf("cs_route_%d", g.nextID)
	session := &services.CheckoutSession{
		ID:                id,
		URL:               "https://checkout.example.com/" + id,
		PaymentStatus:     services.SessionUnpaid,
		ClientReferenceID: fmt.Sprintf("%d", in.BookingID),
	}
	g.sessions[id] = session
	return session, nil
}

func (g *stubGateway) RetrieveSession(ctx context.Context, sessionID string) (*services.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	session, ok := g.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such session: %s", sessionID)
	}
	copied := *session
	return &copied, nil
}

func (g *stubGateway) markPaid(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if session, ok := g.sessions[sessionID]; ok {
		session.PaymentStatus = services.SessionPaid
		session.PaymentIntentID = "pi_route_1"
	}
}

func (g *stubGateway) CreateCustomer(ctx context.Context, email, name, idempotencyKey string) (*services.Customer, error) {
	return &services.Customer{ID: "cus_route_1"}, nil
}

func (g *stubGateway) CreateSubscription(ctx context.Context, customerID, priceID, idempotencyKey string) (*services.Subscription, error) {
	return &services.Subscription{
		ID:     "sub_route_1",
		Status: "incomplete",
		LatestInvoice: &services.Invoice{
			ID:        "in_route_1",
			Status:    "open",
			AmountDue: 2500,
			PaymentIntent: &services.PaymentIntent{
				ID:           "pi_route_1",
				ClientSecret: "pi_route_1_secret",
			},
		},
	}, nil
}

func (g *stubGateway) RetrieveInvoice(ctx context.Context, invoiceID string) (*services.Invoice, error) {
	return &services.Invoice{ID: invoiceID, Status: "paid"}, nil
}

func (g *stubGateway) FinalizeInvoice(ctx context.Context, invoiceID string) (*services.Invoice, error) {
	return &services.Invoice{ID: invoiceID, Status: "open"}, nil
}
