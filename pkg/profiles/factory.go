package profiles

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryConfig contains configuration for creating a profile repository
type RepositoryConfig struct {
	// RESTBaseURL and APIKey are required for the rest repository
	RESTBaseURL string
	APIKey      string
	// Pool is required for the postgres repository
	Pool *pgxpool.Pool
}

// NewRepository creates a profile repository for the configured
// persistence type.
func NewRepository(persistenceType string, config RepositoryConfig) (Repository, error) {
	switch persistenceType {
	case "rest":
		if config.RESTBaseURL == "" {
			return nil, fmt.Errorf("rest base url required for rest repository")
		}
		return NewRESTRepository(config.RESTBaseURL, config.APIKey), nil
	case "postgres", "postgresql":
		if config.Pool == nil {
			return nil, fmt.Errorf("pool required for postgres repository")
		}
		return NewPostgresRepository(config.Pool), nil
	case "inmem":
		return NewInMemRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: rest, postgres, inmem)", persistenceType)
	}
}
