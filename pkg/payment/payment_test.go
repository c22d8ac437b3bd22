package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMethod(t *testing.T) {
	m, ok := ParseMethod(" mtn_momo ")
	assert.True(t, ok)
	assert.Equal(t, MethodMTNMoMo, m)
	assert.Equal(t, KindMobileMoney, m.Kind())

	_, ok = ParseMethod("PAYPAL")
	assert.False(t, ok)

	assert.Equal(t, KindWallet, MethodWallet.Kind())
	assert.Equal(t, KindCardSwitch, MethodCard.Kind())
	assert.Equal(t, "mobile_money", KindMobileMoney.String())
}

func TestMapGenericStatus(t *testing.T) {
	assert.Equal(t, StatusCompleted, MapGenericStatus("success"))
	assert.Equal(t, StatusCompleted, MapGenericStatus("PAID"))
	assert.Equal(t, StatusFailed, MapGenericStatus("cancelled"))
	assert.Equal(t, StatusProcessing, MapGenericStatus("queued"))
	assert.Equal(t, StatusProcessing, MapGenericStatus(""))
}

func TestNormalizeMSISDN(t *testing.T) {
	cases := map[string]string{
		"0788123456":       "250788123456",
		"+250 788 123 456": "250788123456",
		"788123456":        "250788123456",
		"250788123456":     "250788123456",
		"12345":            "",
		"":                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeMSISDN(in), in)
	}
	assert.Equal(t, "788123456", localMSISDN("0788123456"))
}

type stubAdapter struct{ name string }

func (s stubAdapter) Name() string { return s.name }
func (s stubAdapter) Initiate(ctx context.Context, c Charge) (*Result, error) {
	return &Result{Status: StatusProcessing}, nil
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(MethodMTNMoMo, stubAdapter{name: ProviderMTN})

	a, err := reg.ForMethod(MethodMTNMoMo)
	require.NoError(t, err)
	assert.Equal(t, ProviderMTN, a.Name())

	_, err = reg.ForMethod(MethodCard)
	assert.Error(t, err)

	_, ok := reg.ByName(ProviderMTN)
	assert.True(t, ok)
	_, ok = reg.ByName(ProviderAirtel)
	assert.False(t, ok)
}

type stubDebiter struct {
	err     error
	gotUser uint
	gotAmt  int64
	gotPay  uint
}

func (s *stubDebiter) DebitForPayment(ctx context.Context, userID uint, amount int64, paymentID uint, description string) (*DebitReceipt, error) {
	s.gotUser, s.gotAmt, s.gotPay = userID, amount, paymentID
	if s.err != nil {
		return nil, s.err
	}
	return &DebitReceipt{TransactionReference: "WTX-1", BalanceBefore: 30000, BalanceAfter: 30000 - amount}, nil
}

func TestWalletAdapter(t *testing.T) {
	d := &stubDebiter{}
	a := NewWalletAdapter(d)
	res, err := a.Initiate(context.Background(), testCharge())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "WTX-1", res.ExternalReference)
	assert.Equal(t, uint(3), d.gotUser)
	assert.Equal(t, int64(5000), d.gotAmt)
	assert.Equal(t, uint(7), d.gotPay)

	sentinel := errors.New("insufficient wallet balance")
	d.err = sentinel
	_, err = a.Initiate(context.Background(), testCharge())
	assert.ErrorIs(t, err, sentinel)
	var pe *ProviderError
	assert.False(t, errors.As(err, &pe))
}
