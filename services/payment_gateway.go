package services

import (
	"context"
	"math"
	"os"
	"strconv"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Boundary types for the payment gateway. The ledgers only ever see these;
// provider objects never leak past this file. Expanded objects and bare
// references are both mapped explicitly (ID fields stay populated even when
// the nested object is absent).

const (
	SessionPaid              = "paid"
	SessionUnpaid            = "unpaid"
	SessionNoPaymentRequired = "no_payment_required"
)

const InvoiceStatusOpen = "open"

type CheckoutSessionCreate struct {
	BookingID      uint
	TourID         uint
	ProductName    string
	Amount         float64 // major units, converted to minor units here
	Currency       string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

type CheckoutSession struct {
	ID                string
	URL               string
	PaymentStatus     string // paid, unpaid, no_payment_required
	ClientReferenceID string
	PaymentIntentID   string
}

type Customer struct {
	ID string
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
}

type Invoice struct {
	ID              string
	Status          string
	AmountDue       int64
	PaymentIntentID string
	PaymentIntent   *PaymentIntent // nil when the gateway returned a bare reference
}

type Subscription struct {
	ID              string
	Status          string
	LatestInvoiceID string
	LatestInvoice   *Invoice // nil when not expanded
}

// PaymentGateway is the documented contract the ledgers depend on. The
// external system is authoritative for payment state; all calls here are
// client-initiated and best-effort.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, in CheckoutSessionCreate) (*CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	CreateCustomer(ctx context.Context, email, name, idempotencyKey string) (*Customer, error)
	CreateSubscription(ctx context.Context, customerID, priceID, idempotencyKey string) (*Subscription, error)
	RetrieveInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
	FinalizeInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
}

var paymentGateway PaymentGateway

// InitializePaymentGateway wires the Stripe-backed gateway from the
// environment. Call once at boot, after godotenv has loaded.
func InitializePaymentGateway() {
	paymentGateway = NewStripeGateway(os.Getenv("STRIPE_SECRET_KEY"))
}

// SetPaymentGateway replaces the active gateway (tests).
func SetPaymentGateway(g PaymentGateway) { paymentGateway = g }

// Gateway returns the active payment gateway.
func Gateway() PaymentGateway { return paymentGateway }

// stripeGateway adapts the Stripe SDK onto the PaymentGateway contract.
type stripeGateway struct {
	sc *client.API
}

func NewStripeGateway(apiKey string) PaymentGateway {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &stripeGateway{sc: sc}
}

func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, in CheckoutSessionCreate) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(strconv.FormatUint(uint64(in.BookingID), 10)),
		SuccessURL:        stripe.String(in.SuccessURL),
		CancelURL:         stripe.String(in.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(in.Currency),
					UnitAmount: stripe.Int64(minorUnits(in.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(in.ProductName),
					},
				},
			},
		},
	}
	params.Context = ctx
	if in.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(in.IdempotencyKey)
	}

	s, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	return mapSession(s), nil
}

func (g *stripeGateway) RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	s, err := g.sc.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, err
	}
	return mapSession(s), nil
}

func (g *stripeGateway) CreateCustomer(ctx context.Context, email, name, idempotencyKey string) (*Customer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.IdempotencyKey = stripe.String(idempotencyKey)
	}

	c, err := g.sc.Customers.New(params)
	if err != nil {
		return nil, err
	}
	return &Customer{ID: c.ID}, nil
}

func (g *stripeGateway) CreateSubscription(ctx context.Context, customerID, priceID, idempotencyKey string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		// default_incomplete makes the first invoice's payment intent
		// obtainable without charging immediately.
		PaymentBehavior: stripe.String("default_incomplete"),
	}
	params.Context = ctx
	params.AddExpand("latest_invoice.payment_intent")
	if idempotencyKey != "" {
		params.IdempotencyKey = stripe.String(idempotencyKey)
	}

	sub, err := g.sc.Subscriptions.New(params)
	if err != nil {
		return nil, err
	}

	out := &Subscription{ID: sub.ID, Status: string(sub.Status)}
	if sub.LatestInvoice != nil {
		out.LatestInvoiceID = sub.LatestInvoice.ID
		out.LatestInvoice = mapInvoice(sub.LatestInvoice)
	}
	return out, nil
}

func (g *stripeGateway) RetrieveInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	inv, err := g.sc.Invoices.Get(invoiceID, params)
	if err != nil {
		return nil, err
	}
	return mapInvoice(inv), nil
}

func (g *stripeGateway) FinalizeInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	params := &stripe.InvoiceFinalizeInvoiceParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	inv, err := g.sc.Invoices.FinalizeInvoice(invoiceID, params)
	if err != nil {
		return nil, err
	}
	return mapInvoice(inv), nil
}

func mapSession(s *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:                s.ID,
		URL:               s.URL,
		PaymentStatus:     string(s.PaymentStatus),
		ClientReferenceID: s.ClientReferenceID,
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out
}

func mapInvoice(inv *stripe.Invoice) *Invoice {
	out := &Invoice{
		ID:        inv.ID,
		Status:    string(inv.Status),
		AmountDue: inv.AmountDue,
	}
	if inv.PaymentIntent != nil {
		out.PaymentIntentID = inv.PaymentIntent.ID
		// ClientSecret is only present on the expanded object
		if inv.PaymentIntent.ClientSecret != "" {
			out.PaymentIntent = &PaymentIntent{
				ID:           inv.PaymentIntent.ID,
				ClientSecret: inv.PaymentIntent.ClientSecret,
			}
		}
	}
	return out
}
