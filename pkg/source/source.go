package source

import (
	"context"
	"fmt"

	"github.com/vpnda/bankpoll/pkg/config"
	"github.com/vpnda/bankpoll/pkg/models"
)

// FetchOptions tunes a single fetch call.
type FetchOptions struct {
	Debug bool
	// Update asks the source to refresh its modules before fetching.
	Update bool
}

// Source is anything that can list accounts and transactions for an access.
type Source interface {
	Name() string
	// Test reports whether the backend can be called at all.
	Test(ctx context.Context) bool
	// Version returns the backend version, or "" when it is unknown.
	Version(ctx context.Context, force bool) string
	UpdateModules(ctx context.Context) error
	FetchAccounts(ctx context.Context, access *models.Access, opts FetchOptions) ([]models.FetchedAccount, error)
	FetchTransactions(ctx context.Context, access *models.Access, opts FetchOptions) ([]models.FetchedTransaction, error)
}

// New returns the source selected by the configuration.
func New(cfg config.SourceConfig) (Source, error) {
	switch cfg.Kind {
	case "", "external":
		return NewExternalSource(cfg), nil
	case "demo":
		return NewDemoSource(), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}
