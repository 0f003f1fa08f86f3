// Package credentials holds provider credentials loaded at startup.
package credentials

import (
	"errors"
	"fmt"
	"sort"

	"github.com/yourusername/racing-value/internal/config"
)

// ErrCredentialMissing indicates a required credential was not configured
var ErrCredentialMissing = errors.New("credential missing")

// Credential is an immutable named provider secret
type Credential struct {
	Name     string
	APIKey   string
	Username string
	Password string
}

// HasAPIKey reports whether the credential carries an API key
func (c Credential) HasAPIKey() bool {
	return c.APIKey != ""
}

// HasPassword reports whether the credential carries a username and password pair
func (c Credential) HasPassword() bool {
	return c.Username != "" && c.Password != ""
}

// String redacts secret values
func (c Credential) String() string {
	return fmt.Sprintf("Credential{Name: %s}", c.Name)
}

// Store is a read-only set of credentials keyed by name
type Store struct {
	creds map[string]Credential
}

// NewStore creates a store from credentials. Later duplicates replace earlier ones.
func NewStore(creds ...Credential) *Store {
	s := &Store{creds: make(map[string]Credential, len(creds))}
	for _, c := range creds {
		s.creds[c.Name] = c
	}
	return s
}

// NewStoreFromConfig creates a store from the configured credentials
func NewStoreFromConfig(cfg []config.CredentialConfig) *Store {
	creds := make([]Credential, 0, len(cfg))
	for _, c := range cfg {
		creds = append(creds, Credential{
			Name:     c.Name,
			APIKey:   c.APIKey,
			Username: c.Username,
			Password: c.Password,
		})
	}
	return NewStore(creds...)
}

// Lookup returns the credential registered under name
func (s *Store) Lookup(name string) (Credential, error) {
	c, ok := s.creds[name]
	if !ok || (!c.HasAPIKey() && !c.HasPassword()) {
		return Credential{}, fmt.Errorf("%w: %s", ErrCredentialMissing, name)
	}
	return c, nil
}

// Names returns the registered credential names in sorted order
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.creds))
	for name := range s.creds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
