package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTValue(t *testing.T) {
	cases := []struct {
		name     string
		avg      string
		qty      string
		perTrade string
		want     string
	}{
		{name: "rounds up past a tranche boundary", avg: "25.01", qty: "100", perTrade: "1000", want: "2.6"},
		{name: "exact tenth stays", avg: "25", qty: "100", perTrade: "1000", want: "2.5"},
		{name: "fee-inclusive first buy", avg: "10.02", qty: "50", perTrade: "500", want: "1.1"},
		{name: "empty position", avg: "0", qty: "0", perTrade: "500", want: "0"},
		{name: "zero tranche", avg: "10", qty: "10", perTrade: "0", want: "0"},
		{name: "negative tranche", avg: "10", qty: "10", perTrade: "-5", want: "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TValue(dec(tc.avg), dec(tc.qty), dec(tc.perTrade))
			require.True(t, got.Equal(dec(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestTValue_IgnoresDivisionResidue(t *testing.T) {
	// 2000/3 rounds up in its last digit, so avg*qty lands a hair above 2000.
	avg := dec("2000").Div(dec("3"))
	got := TValue(avg, dec("3"), dec("1000"))
	require.True(t, got.Equal(dec("2")), "got %s", got)
}

func TestEndToEnd_FirstBuy(t *testing.T) {
	p, err := NewPosition("SOXL", Version22, dec("10000"), 20, dec("15"), dec("0"))
	require.NoError(t, err)
	require.True(t, p.PerTradeAmount.Equal(dec("500")))

	buy, err := NewTransaction(TxBuy, dec("50"), dec("10"), dec("1"), day(2), "")
	require.NoError(t, err)

	v := Reduce([]Transaction{*buy}, nil)
	p.ApplyValuation(v)

	require.True(t, p.AveragePrice.Equal(dec("10.02")))
	require.True(t, p.Quantity.Equal(dec("50")))
	require.True(t, TValue(p.AveragePrice, p.Quantity, p.PerTradeAmount).Equal(dec("1.1")))
}
