package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corefactory "github.com/kilianp07/loadguard/core/factory"
)

func TestNewPriceClient(t *testing.T) {
	tests := []struct {
		name        string
		cfg         corefactory.ModuleConfig
		expectedErr bool
	}{
		{"default", corefactory.ModuleConfig{Type: IDWholesaleMarket}, false},
		{"with_auth", corefactory.ModuleConfig{Type: IDWholesaleMarket, Conf: map[string]any{
			"url":  "http://localhost:1234",
			"auth": map[string]any{"client_id": "id", "client_secret": "s", "auth_url": "http://localhost/token"},
		}}, false},
		{"incomplete_auth", corefactory.ModuleConfig{Type: IDWholesaleMarket, Conf: map[string]any{
			"auth": map[string]any{"client_id": "id"},
		}}, true},
		{"unknown_id", corefactory.ModuleConfig{Type: "unknown_id"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewPriceClient(tt.cfg)
			if tt.expectedErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client)
		})
	}
}
