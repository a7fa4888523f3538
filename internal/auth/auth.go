package auth

import (
	"errors"
	"fmt"

	json "github.com/json-iterator/go"
)

// ErrFailedToObtainAuthType is returned when a merchant's stored credentials
// do not match the shape the connector expects.
var ErrFailedToObtainAuthType = errors.New("auth: failed to obtain authentication type")

// Kind is the closed set of credential shapes a connector can declare.
type Kind string

const (
	KindHeaderKey    Kind = "header_key"
	KindBodyKey      Kind = "body_key"
	KindSignatureKey Kind = "signature_key"
	KindMultiAuthKey Kind = "multi_auth_key"
	KindCurrencyAuth Kind = "currency_auth_key"
)

// ConnectorAuth is a parsed credential set. Kind selects which fields are
// populated; the rest are empty.
type ConnectorAuth struct {
	Kind      Kind
	APIKey    string
	Key1      string
	Key2      string
	APISecret string
	// ByCurrency holds per-currency credentials for KindCurrencyAuth.
	ByCurrency map[string]ConnectorAuth
}

// rawAuth mirrors the merchant-configuration JSON document.
type rawAuth struct {
	AuthType   string                     `json:"auth_type"`
	APIKey     string                     `json:"api_key"`
	Key1       string                     `json:"key1"`
	Key2       string                     `json:"key2"`
	APISecret  string                     `json:"api_secret"`
	ByCurrency map[string]json.RawMessage `json:"by_currency"`
}

// Parse decodes a merchant's connector credential document into a ConnectorAuth.
func Parse(raw []byte) (ConnectorAuth, error) {
	var doc rawAuth
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ConnectorAuth{}, fmt.Errorf("%w: %v", ErrFailedToObtainAuthType, err)
	}

	switch Kind(doc.AuthType) {
	case KindHeaderKey:
		if doc.APIKey == "" {
			return ConnectorAuth{}, fmt.Errorf("%w: header_key requires api_key", ErrFailedToObtainAuthType)
		}
		return ConnectorAuth{Kind: KindHeaderKey, APIKey: doc.APIKey}, nil
	case KindBodyKey:
		if doc.APIKey == "" || doc.Key1 == "" {
			return ConnectorAuth{}, fmt.Errorf("%w: body_key requires api_key and key1", ErrFailedToObtainAuthType)
		}
		return ConnectorAuth{Kind: KindBodyKey, APIKey: doc.APIKey, Key1: doc.Key1}, nil
	case KindSignatureKey:
		if doc.APIKey == "" || doc.Key1 == "" || doc.APISecret == "" {
			return ConnectorAuth{}, fmt.Errorf("%w: signature_key requires api_key, key1 and api_secret", ErrFailedToObtainAuthType)
		}
		return ConnectorAuth{Kind: KindSignatureKey, APIKey: doc.APIKey, Key1: doc.Key1, APISecret: doc.APISecret}, nil
	case KindMultiAuthKey:
		if doc.APIKey == "" || doc.Key1 == "" || doc.Key2 == "" || doc.APISecret == "" {
			return ConnectorAuth{}, fmt.Errorf("%w: multi_auth_key requires api_key, key1, key2 and api_secret", ErrFailedToObtainAuthType)
		}
		return ConnectorAuth{Kind: KindMultiAuthKey, APIKey: doc.APIKey, Key1: doc.Key1, Key2: doc.Key2, APISecret: doc.APISecret}, nil
	case KindCurrencyAuth:
		if len(doc.ByCurrency) == 0 {
			return ConnectorAuth{}, fmt.Errorf("%w: currency_auth_key requires by_currency", ErrFailedToObtainAuthType)
		}
		byCurrency := make(map[string]ConnectorAuth, len(doc.ByCurrency))
		for currency, nested := range doc.ByCurrency {
			parsed, err := Parse(nested)
			if err != nil {
				return ConnectorAuth{}, fmt.Errorf("%w: currency %s: %v", ErrFailedToObtainAuthType, currency, err)
			}
			byCurrency[currency] = parsed
		}
		return ConnectorAuth{Kind: KindCurrencyAuth, ByCurrency: byCurrency}, nil
	}
	return ConnectorAuth{}, fmt.Errorf("%w: unknown auth_type %q", ErrFailedToObtainAuthType, doc.AuthType)
}

// ForCurrency resolves the credential set to use for a given currency. For
// non-currency kinds it returns the auth unchanged.
func (a ConnectorAuth) ForCurrency(currency string) (ConnectorAuth, error) {
	if a.Kind != KindCurrencyAuth {
		return a, nil
	}
	nested, ok := a.ByCurrency[currency]
	if !ok {
		return ConnectorAuth{}, fmt.Errorf("%w: no credentials configured for currency %s", ErrFailedToObtainAuthType, currency)
	}
	return nested, nil
}
