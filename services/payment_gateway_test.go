package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStripeGatewaySatisfiesContract(t *testing.T) {
	var gw PaymentGateway = NewStripeGateway("sk_test_dummy")
	assert.NotNil(t, gw)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(11000), minorUnits(110))
	assert.Equal(t, int64(5550), minorUnits(55.50))
	// Round, not truncate: 19.99*100 is 1998.999... in float.
	assert.Equal(t, int64(1999), minorUnits(19.99))
	assert.Equal(t, int64(0), minorUnits(0))
}
