// Package store persists the certificate registry. Two backends implement
// the same contract: an embedded SQLite file and a networked Postgres pool,
// selected once at startup by configuration. Core logic never branches on
// the backend type.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/certledger/certverify/internal/config"
	"github.com/certledger/certverify/internal/model"
)

// Store is the registry contract consumed by the verification engine and
// the boundary layers. Lookups return (nil, nil) when no record matches;
// real store failures are returned as errors, never masked.
type Store interface {
	// Upsert inserts the record or merges it into the existing record with
	// the same normalized certificate id. Incoming non-nil fields win; nil
	// fields keep the stored value. Records with an empty certificate id
	// always insert. Safe under concurrent calls racing on the same id.
	Upsert(ctx context.Context, in model.RecordInput) (inserted bool, rec *model.CertificateRecord, err error)

	// GetByID looks up a record by exact normalized certificate id.
	GetByID(ctx context.Context, certificateID string) (*model.CertificateRecord, error)

	// FindCandidate searches by whichever of name/roll/course are non-empty,
	// normalized. Exact multi-criteria match first, then a roll-only
	// relaxation filtered by the remaining criteria. All criteria empty
	// returns nil.
	FindCandidate(ctx context.Context, name, roll, course string) (*model.CertificateRecord, error)

	// ImportMany applies Upsert to each input in order and aggregates counts.
	ImportMany(ctx context.Context, inputs []model.RecordInput) (model.ImportSummary, error)

	// List returns records ordered by creation time descending, plus the
	// total count.
	List(ctx context.Context, limit, offset int) ([]model.CertificateRecord, int, error)

	// Stats returns aggregate registry counts.
	Stats(ctx context.Context) (model.RegistryStats, error)

	// LogVerification appends an audit entry.
	LogVerification(ctx context.Context, entry model.VerificationLog) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 50

// New builds the Store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
