package connector

import (
	"fmt"

	"github.com/payflow-engine/payflow/internal/auth"
	"github.com/payflow-engine/payflow/internal/money"
)

// MerchantConnector is one connector entry in a merchant's configuration:
// which connector, the raw credential document, and an optional host
// override for sandbox routing.
type MerchantConnector struct {
	Connector       string `json:"connector"`
	AuthDocument    []byte `json:"auth"`
	BaseURLOverride string `json:"base_url,omitempty"`
	WebhookSecret   string `json:"webhook_secret,omitempty"`
}

// Resolved is a ready-to-use capability instance: the connector paired with
// its parsed credentials, resolved base URL and amount converter.
type Resolved struct {
	Connector Connector
	Auth      auth.ConnectorAuth
	BaseURL   string
}

// ConvertAmount maps an internal minor-unit amount into the unit this
// connector declared.
func (r *Resolved) ConvertAmount(minor int64, currency string) (money.Amount, error) {
	return money.Convert(minor, currency, r.Connector.CurrencyUnit())
}

// Registry is the process-wide connector lookup. It is built once at startup
// and read-only afterwards, so request tasks share it without locking.
type Registry struct {
	connectors map[string]Connector
}

func NewRegistry(connectors ...Connector) *Registry {
	byName := make(map[string]Connector, len(connectors))
	for _, c := range connectors {
		byName[c.ID()] = c
	}
	return &Registry{connectors: byName}
}

// Names lists the registered connector ids.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	return names
}

// Resolve looks up a connector by name and wraps it with the merchant's
// parsed credentials and resolved base URL.
func (r *Registry) Resolve(name string, cfg MerchantConnector) (*Resolved, error) {
	c, ok := r.connectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidConnectorName, name)
	}
	parsed, err := auth.Parse(cfg.AuthDocument)
	if err != nil {
		return nil, fmt.Errorf("[registry] resolving %s: %w", name, err)
	}
	return &Resolved{
		Connector: c,
		Auth:      parsed,
		BaseURL:   c.BaseURL(cfg),
	}, nil
}
