package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	total := decimal.RequireFromString("150.00")

	assert.Equal(t, InvoiceUnpaid, StatusFor(decimal.Zero, total))
	assert.Equal(t, InvoicePartial, StatusFor(decimal.RequireFromString("0.01"), total))
	assert.Equal(t, InvoicePartial, StatusFor(decimal.RequireFromString("149.99"), total))
	assert.Equal(t, InvoicePaid, StatusFor(total, total))
}

func TestUserCanLogin(t *testing.T) {
	assert.True(t, User{Status: UserActive}.CanLogin())
	assert.False(t, User{Status: UserInactive}.CanLogin())
	assert.False(t, User{Status: UserDeactivated}.CanLogin())
}
