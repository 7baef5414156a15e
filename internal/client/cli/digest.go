package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/kegkeeper/internal/validation"
)

func (c *Cli) runDigest(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return c.usageError("digest")
	}
	return c.withWorkspace(ctx, func(w *workspace) error {
		if err := w.retrier.Do(ctx, "digest", w.tracker.LoadDigest); err != nil {
			return err
		}

		entries := w.tracker.Snapshot()
		if len(entries) == 0 {
			c.io.Println("Nothing yet.")
			return nil
		}
		c.io.Printf("%-36s  %-12s  %8s  %8s  %s\n", "KEG DB", "TYPE", "LATEST", "SEEN", "NEW")
		for _, e := range entries {
			mark := ""
			if e.HasUpdates() {
				mark = "*"
			}
			known := e.KnownUpdateID
			if known == "" {
				known = "-"
			}
			c.io.Printf("%-36s  %-12s  %8s  %8s  %d%s\n", e.KegDbID, e.Type, e.MaxUpdateID, known, e.NewKegsCount, mark)
		}
		if unread := w.tracker.UnreadKegDbs(); len(unread) > 0 {
			c.io.Printf("\n%d collection(s) with updates\n", len(unread))
		}
		return nil
	})
}

func (c *Cli) runSeen(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return c.usageError("seen")
	}
	kegDbID, kegType := args[0], args[1]
	if err := validation.ValidateID(kegDbID); err != nil {
		return err
	}
	if err := validation.ValidateKegType(kegType); err != nil {
		return err
	}

	return c.withWorkspace(ctx, func(w *workspace) error {
		if err := w.retrier.Do(ctx, "digest", w.tracker.LoadDigest); err != nil {
			return err
		}
		entry := w.tracker.Digest(kegDbID, kegType)
		if entry.MaxUpdateID == "" {
			return fmt.Errorf("no updates known for %s/%s", kegDbID, kegType)
		}
		if err := w.tracker.SeenThis(ctx, kegDbID, kegType, entry.MaxUpdateID); err != nil {
			return err
		}
		c.io.Printf("✓ %s/%s seen up to %s\n", kegDbID, kegType, entry.MaxUpdateID)
		return nil
	})
}
