package payment

import "strings"

// Kind groups methods by the shape of their rail.
type Kind int

const (
	KindUnknown Kind = iota
	KindWallet
	KindMobileMoney
	KindCardSwitch
)

func (k Kind) String() string {
	switch k {
	case KindWallet:
		return "wallet"
	case KindMobileMoney:
		return "mobile_money"
	case KindCardSwitch:
		return "card_switch"
	default:
		return "unknown"
	}
}

// Method is the closed set of payment methods a caller may choose.
type Method string

const (
	MethodWallet      Method = "WALLET"
	MethodMTNMoMo     Method = "MTN_MOMO"
	MethodAirtelMoney Method = "AIRTEL_MONEY"
	MethodCard        Method = "CARD"
)

// ParseMethod accepts any casing and reports whether the method is known.
func ParseMethod(s string) (Method, bool) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	return m, m.Kind() != KindUnknown
}

func (m Method) Kind() Kind {
	switch m {
	case MethodWallet:
		return KindWallet
	case MethodMTNMoMo, MethodAirtelMoney:
		return KindMobileMoney
	case MethodCard:
		return KindCardSwitch
	default:
		return KindUnknown
	}
}
