// Package clients builds exchange SDK clients for the kline price sources.
// Keys are optional: market data endpoints are public.
package clients

import (
	"context"
	"crypto/ecdsa"
	"os"

	"github.com/adshao/go-binance/v2"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	hyperliquid "github.com/sonirico/go-hyperliquid"
)

// Environment variables read by the constructors.
const (
	EnvBinanceKey    = "BINANCE_API_KEY"
	EnvBinanceSecret = "BINANCE_API_SECRET"
	EnvBybitKey      = "BYBIT_API_KEY"
	EnvBybitSecret   = "BYBIT_API_SECRET"
)

// NewBinanceClient returns a Binance client, authenticated when both keys are set.
func NewBinanceClient(apiKey, apiSecret string) *binance.Client {
	return binance.NewClient(apiKey, apiSecret)
}

// NewBybitClient returns a Bybit client, authenticated when both keys are set.
func NewBybitClient(apiKey, apiSecret string) *bybit.Client {
	client := bybit.NewClient()
	if apiKey != "" && apiSecret != "" {
		client = client.WithAuth(apiKey, apiSecret)
	}
	return client
}

// BinanceFromEnv reads the Binance keys from the environment.
func BinanceFromEnv() *binance.Client {
	return NewBinanceClient(os.Getenv(EnvBinanceKey), os.Getenv(EnvBinanceSecret))
}

// BybitFromEnv reads the Bybit keys from the environment.
func BybitFromEnv() *bybit.Client {
	return NewBybitClient(os.Getenv(EnvBybitKey), os.Getenv(EnvBybitSecret))
}

// HyperliquidMainnetURL is the public Hyperliquid API.
const HyperliquidMainnetURL = "https://api.hyperliquid.xyz"

// NewHyperliquidInfo returns the public Info API of Hyperliquid. The SDK only builds
// Info through an Exchange, so a throwaway key is generated; it never signs anything.
func NewHyperliquidInfo(ctx context.Context, baseURL string) (*hyperliquid.Info, error) {
	if baseURL == "" {
		baseURL = HyperliquidMainnetURL
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "generate hyperliquid key")
	}
	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("error casting public key to ECDSA")
	}
	addr := crypto.PubkeyToAddress(*pub).Hex()

	ex := hyperliquid.NewExchange(ctx, key, baseURL, nil, "", addr, nil)
	return ex.Info(), nil
}
