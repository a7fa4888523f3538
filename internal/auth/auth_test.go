package auth

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Kind
		wantErr bool
	}{
		{
			name: "header key",
			raw:  `{"auth_type":"header_key","api_key":"sk_live_1"}`,
			want: KindHeaderKey,
		},
		{
			name: "body key",
			raw:  `{"auth_type":"body_key","api_key":"k","key1":"merchant_1"}`,
			want: KindBodyKey,
		},
		{
			name: "signature key",
			raw:  `{"auth_type":"signature_key","api_key":"k","key1":"m","api_secret":"shh"}`,
			want: KindSignatureKey,
		},
		{
			name: "multi auth key",
			raw:  `{"auth_type":"multi_auth_key","api_key":"k","key1":"a","key2":"b","api_secret":"shh"}`,
			want: KindMultiAuthKey,
		},
		{
			name: "currency auth",
			raw:  `{"auth_type":"currency_auth_key","by_currency":{"USD":{"auth_type":"header_key","api_key":"us"}}}`,
			want: KindCurrencyAuth,
		},
		{
			name:    "missing field",
			raw:     `{"auth_type":"signature_key","api_key":"k"}`,
			wantErr: true,
		},
		{
			name:    "unknown auth type",
			raw:     `{"auth_type":"oauth2","api_key":"k"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			raw:     `{{`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrFailedToObtainAuthType) {
					t.Fatalf("expected ErrFailedToObtainAuthType, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", got.Kind, tt.want)
			}
		})
	}
}

func TestForCurrency(t *testing.T) {
	parsed, err := Parse([]byte(`{"auth_type":"currency_auth_key","by_currency":{"USD":{"auth_type":"header_key","api_key":"us"},"JPY":{"auth_type":"header_key","api_key":"jp"}}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	us, err := parsed.ForCurrency("USD")
	if err != nil {
		t.Fatalf("ForCurrency(USD): %v", err)
	}
	if us.APIKey != "us" {
		t.Errorf("APIKey = %q, want %q", us.APIKey, "us")
	}

	if _, err := parsed.ForCurrency("EUR"); !errors.Is(err, ErrFailedToObtainAuthType) {
		t.Errorf("expected ErrFailedToObtainAuthType for unconfigured currency, got %v", err)
	}

	plain := ConnectorAuth{Kind: KindHeaderKey, APIKey: "k"}
	same, err := plain.ForCurrency("USD")
	if err != nil || same.APIKey != "k" {
		t.Errorf("non-currency auth should pass through unchanged, got %v %v", same, err)
	}
}
