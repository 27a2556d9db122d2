package payment

import (
	"context"
	"strings"

	"github.com/noah-isme/storefront-checkout/internal/remote"
	"github.com/noah-isme/storefront-checkout/internal/settlement"
)

// ConfigClient reads gateway configuration published by the admin service.
type ConfigClient struct {
	Remote *remote.Client
	Path   string
}

type gatewayDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// ListActive returns the active gateways in configuration order.
func (c ConfigClient) ListActive(ctx context.Context) ([]settlement.Gateway, error) {
	path := c.Path
	if path == "" {
		path = "/payment-gateways"
	}
	var rows []gatewayDTO
	if err := c.Remote.GetJSON(ctx, path, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]settlement.Gateway, 0, len(rows))
	for _, row := range rows {
		if !row.IsActive {
			continue
		}
		out = append(out, settlement.Gateway{
			ID:       strings.ToLower(strings.TrimSpace(row.ID)),
			Name:     row.Name,
			IsActive: true,
		})
	}
	return out, nil
}
