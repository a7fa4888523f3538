// Package merchant holds per-merchant configuration: which connectors the
// merchant is onboarded to, in routing preference order, and their
// credential documents.
package merchant

import (
	"fmt"
	"os"
	"sync"

	json "github.com/json-iterator/go"

	"github.com/payflow-engine/payflow/internal/connector"
)

// Profile is one merchant's orchestration configuration.
type Profile struct {
	MerchantID string                        `json:"merchant_id"`
	ProfileID  string                        `json:"profile_id"`
	Connectors []connector.MerchantConnector `json:"connectors"`
	ReturnURL  string                        `json:"return_url,omitempty"`
	WebhookURL string                        `json:"webhook_url,omitempty"`
}

// ConnectorConfig returns the configuration entry for a named connector.
func (p *Profile) ConnectorConfig(name string) (connector.MerchantConnector, bool) {
	for _, cfg := range p.Connectors {
		if cfg.Connector == name {
			return cfg, true
		}
	}
	return connector.MerchantConnector{}, false
}

// CandidateConnectors lists the merchant's connectors in preference order.
func (p *Profile) CandidateConnectors() []string {
	names := make([]string, len(p.Connectors))
	for i, cfg := range p.Connectors {
		names[i] = cfg.Connector
	}
	return names
}

// Repo resolves merchant profiles.
type Repo interface {
	Get(merchantID string) (*Profile, error)
}

// StaticRepo serves profiles loaded once at startup. Reads after that are
// lock-free from the request path's point of view.
type StaticRepo struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

func NewStaticRepo(profiles ...*Profile) *StaticRepo {
	byID := make(map[string]*Profile, len(profiles))
	for _, profile := range profiles {
		byID[profile.MerchantID] = profile
	}
	return &StaticRepo{profiles: byID}
}

// LoadFile reads a JSON array of profiles from disk.
func LoadFile(path string) (*StaticRepo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[merchant] failed to read profiles file: %w", err)
	}
	var raw []struct {
		MerchantID string `json:"merchant_id"`
		ProfileID  string `json:"profile_id"`
		ReturnURL  string `json:"return_url"`
		WebhookURL string `json:"webhook_url"`
		Connectors []struct {
			Connector     string          `json:"connector"`
			Auth          json.RawMessage `json:"auth"`
			BaseURL       string          `json:"base_url"`
			WebhookSecret string          `json:"webhook_secret"`
		} `json:"connectors"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("[merchant] failed to parse profiles file: %w", err)
	}

	profiles := make([]*Profile, 0, len(raw))
	for _, entry := range raw {
		profile := &Profile{
			MerchantID: entry.MerchantID,
			ProfileID:  entry.ProfileID,
			ReturnURL:  entry.ReturnURL,
			WebhookURL: entry.WebhookURL,
		}
		for _, c := range entry.Connectors {
			profile.Connectors = append(profile.Connectors, connector.MerchantConnector{
				Connector:       c.Connector,
				AuthDocument:    c.Auth,
				BaseURLOverride: c.BaseURL,
				WebhookSecret:   c.WebhookSecret,
			})
		}
		profiles = append(profiles, profile)
	}
	return NewStaticRepo(profiles...), nil
}

func (r *StaticRepo) Get(merchantID string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	profile, ok := r.profiles[merchantID]
	if !ok {
		return nil, fmt.Errorf("[merchant] unknown merchant %q", merchantID)
	}
	return profile, nil
}
