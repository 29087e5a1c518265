package verifier

import (
	"fmt"

	"github.com/angelmondragon/fundledger-backend/pkg/enums"
)

// Registry maps each enabled provider to its verifier.
type Registry struct {
	verifiers map[enums.PaymentProvider]Verifier
}

func NewRegistry(verifiers ...Verifier) (*Registry, error) {
	r := &Registry{verifiers: make(map[enums.PaymentProvider]Verifier, len(verifiers))}
	for _, v := range verifiers {
		if v == nil {
			continue
		}
		provider := v.Provider()
		if _, dup := r.verifiers[provider]; dup {
			return nil, fmt.Errorf("verifier for %s registered twice", provider)
		}
		r.verifiers[provider] = v
	}
	return r, nil
}

// Lookup returns the verifier for provider, if enabled.
func (r *Registry) Lookup(provider enums.PaymentProvider) (Verifier, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.verifiers[provider]
	return v, ok
}

func (r *Registry) Providers() []enums.PaymentProvider {
	if r == nil {
		return nil
	}
	out := make([]enums.PaymentProvider, 0, len(r.verifiers))
	for provider := range r.verifiers {
		out = append(out, provider)
	}
	return out
}
