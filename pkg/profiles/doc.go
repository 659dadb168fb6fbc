// Package profiles owns the storefront's profile records and the
// synchronizer that marks them verified.
//
// # Overview
//
// The profiles package provides:
//   - The Profile model mirroring identity state plus storefront fields
//   - Repository pattern over the hosted row API (REST), Postgres and memory
//   - The idempotent mark-verified synchronizer (update → fetch → create)
//   - Fetch-or-create reconciliation used by the session cache
//
// # Why the synchronizer probes
//
// The hosted store's row-level policy differs for "update own row",
// "read own row" and "insert new row". A single call cannot tell "row
// missing" from "row exists but policy denied the write", so Sync walks
// a fixed ladder and treats each anticipated rejection as a signal to
// probe the next rung:
//
//	profile, err := sync.Sync(ctx, profiles.SyncParams{
//		UserID: userID,
//		Bearer: session.AccessToken,
//		Email:  session.User.Email,
//	})
//
// Sync is idempotent: two calls with the same arguments converge to the
// same stored row, which is what makes duplicate tabs and re-clicked
// links safe.
//
// # Repositories
//
//	// Hosted backend's row API
//	repo := profiles.NewRESTRepository(baseURL, apiKey)
//
//	// Self-hosted Postgres
//	repo := profiles.NewPostgresRepository(pool)
//
//	// Tests
//	repo := profiles.NewInMemRepository()
//
// All three are selected through NewRepository(kind, config).
package profiles
