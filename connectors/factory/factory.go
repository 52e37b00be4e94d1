package factory

import (
	"github.com/kilianp07/loadguard/auth"
	"github.com/kilianp07/loadguard/connectors"
	wholesalemarket "github.com/kilianp07/loadguard/connectors/clients/wholesaleMarket"
	corefactory "github.com/kilianp07/loadguard/core/factory"
)

const (
	IDWholesaleMarket = "wholesale_market"
)

// WholesaleConfig configures the wholesale market client.
type WholesaleConfig struct {
	URL  string    `json:"url"`
	Auth auth.Conf `json:"auth"`
}

var registry = corefactory.NewRegistry[connectors.PriceClient]()

func init() {
	_ = registry.Register(IDWholesaleMarket, func(conf map[string]any) (connectors.PriceClient, error) {
		var c WholesaleConfig
		if err := corefactory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if err := c.Auth.Validate(); err != nil {
			return nil, err
		}
		var opts []wholesalemarket.Option
		if c.URL != "" {
			opts = append(opts, wholesalemarket.WithBaseURL(c.URL))
		}
		if c.Auth.Enabled() {
			opts = append(opts, wholesalemarket.WithAuth(auth.NewClientCred(c.Auth)))
		}
		return wholesalemarket.New(opts...), nil
	})
}

// NewPriceClient builds the price client described by cfg.
func NewPriceClient(cfg corefactory.ModuleConfig) (connectors.PriceClient, error) {
	return registry.Create(cfg)
}
