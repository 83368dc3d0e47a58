package clients

import (
	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
)

// NewBinanceClients builds the spot client used for klines and the futures
// client used for funding rates. Keys may be empty for read-only endpoints.
func NewBinanceClients(apiKey, apiSecret string) (*binance.Client, *futures.Client) {
	return binance.NewClient(apiKey, apiSecret), futures.NewClient(apiKey, apiSecret)
}
