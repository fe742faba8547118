package clients

import (
	"github.com/hirokisan/bybit/v2"
)

// NewBybitClient builds an authenticated REST client. The testnet flag
// points it at api-testnet.bybit.com.
func NewBybitClient(apiKey, apiSecret string, testnet bool) *bybit.Client {
	if testnet {
		return bybit.NewTestClient().WithAuth(apiKey, apiSecret)
	}
	return bybit.NewClient().WithAuth(apiKey, apiSecret)
}
