package keg

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/kegkeeper/internal/errs"
	"github.com/iudanet/kegkeeper/internal/session"
	"github.com/iudanet/kegkeeper/pkg/api"
)

// ListOptions configures ListKegs.
type ListOptions struct {
	// Configure is applied to every keg before hydration (flags, override key).
	Configure func(*Keg)
	// MinCollectionVersion limits the batch to newer kegs.
	MinCollectionVersion string
}

// ListKegs fetches every live keg of kegType in db and hydrates each one.
// Kegs that fail to hydrate are skipped; their errors are joined into the
// returned error next to the kegs that did load.
func ListKegs(ctx context.Context, sess *session.Session, db DB, kegType string, opts ListOptions) ([]*Keg, error) {
	req := api.ListKegsRequest{
		KegDbID:              db.ID(),
		Type:                 kegType,
		MinCollectionVersion: opts.MinCollectionVersion,
	}
	var resp api.ListKegsResponse
	if err := sess.Conn.Send(ctx, api.CmdKegList, req, &resp); err != nil {
		return nil, errs.Normalize(fmt.Errorf("failed to list %s kegs in %s: %w", kegType, db.ID(), err))
	}

	kegs := make([]*Keg, 0, len(resp.Kegs))
	var failed []error
	for i := range resp.Kegs {
		raw := &resp.Kegs[i]
		if raw.Deleted {
			continue
		}

		k := New(sess, db, kegType, NewContent(kegType))
		if opts.Configure != nil {
			opts.Configure(k)
		}
		if err := k.LoadFromKeg(raw); err != nil {
			sess.Logger.Warn("skipping keg that failed to load", "kegdb_id", db.ID(), "keg_id", raw.KegID, "error", err)
			failed = append(failed, err)
			continue
		}
		kegs = append(kegs, k)
	}

	return kegs, errors.Join(failed...)
}
