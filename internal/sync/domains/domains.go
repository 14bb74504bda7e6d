// Package domains fans the non-mail groupware domains (contacts,
// notes, calendar, tasks) out in parallel. The domains hit logically
// separate server endpoints, so they share no concurrency limiter with
// the mail folder scheduler, and one domain failing or timing out never
// affects the others.
package domains

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skylarkhq/skylark-sync/internal/providers"
)

// Result is the outcome of one domain's sync pass
type Result struct {
	Domain providers.Domain
	Err    error
}

// Coordinator runs all registered domain providers for an account.
// Contacts gets a longer timeout than the other domains; address books
// are typically the largest non-mail dataset.
type Coordinator struct {
	providers       []providers.DomainProvider
	contactsTimeout time.Duration
	domainTimeout   time.Duration
}

// New creates a coordinator over the given domain providers
func New(domainProviders []providers.DomainProvider, contactsTimeout, domainTimeout time.Duration) *Coordinator {
	return &Coordinator{
		providers:       domainProviders,
		contactsTimeout: contactsTimeout,
		domainTimeout:   domainTimeout,
	}
}

// Run syncs every domain in parallel and blocks until all finished.
// The returned results are ordered like the registered providers.
func (c *Coordinator) Run(ctx context.Context, account providers.AccountID) []Result {
	results := make([]Result, len(c.providers))

	var wg sync.WaitGroup
	for i, provider := range c.providers {
		wg.Add(1)
		go func(i int, provider providers.DomainProvider) {
			defer wg.Done()
			results[i] = Result{
				Domain: provider.Domain(),
				Err:    c.runDomain(ctx, account, provider),
			}
		}(i, provider)
	}
	wg.Wait()

	for _, result := range results {
		if result.Err != nil {
			slog.Warn("Domain sync failed",
				"account", account, "domain", result.Domain, "error", result.Err)
		}
	}
	return results
}

func (c *Coordinator) runDomain(ctx context.Context, account providers.AccountID, provider providers.DomainProvider) error {
	timeout := c.domainTimeout
	if provider.Domain() == providers.DomainContacts {
		timeout = c.contactsTimeout
	}

	domainCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		domainCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := provider.Sync(domainCtx, account); err != nil {
		return fmt.Errorf("%s sync: %w", provider.Domain(), err)
	}
	return nil
}
