package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/iudanet/kegkeeper/internal/keg"
)

func (c *Cli) runSettings(ctx context.Context, args []string) error {
	if len(args) > 2 {
		return c.usageError("settings")
	}
	return c.withWorkspace(ctx, func(w *workspace) error {
		if err := w.tracker.LoadDigest(ctx); err != nil {
			c.logger.Warn("digest unavailable, loading settings anyway", "error", err)
		}

		synced := keg.NewSynced(w.sess, w.boot, w.tracker, keg.KindSettings, &keg.SettingsContent{})
		defer synced.Close()
		if err := w.retrier.Do(ctx, "", synced.Reload); err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		settings := synced.Keg().Content.(*keg.SettingsContent)

		switch len(args) {
		case 0:
			if len(settings.Values) == 0 {
				c.io.Println("No settings.")
				return nil
			}
			keys := make([]string, 0, len(settings.Values))
			for k := range settings.Values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				c.io.Printf("%s=%s\n", k, settings.Values[k])
			}
		case 1:
			v, ok := settings.Get(args[0])
			if !ok {
				return fmt.Errorf("setting %q is not set", args[0])
			}
			c.io.Println(v)
		case 2:
			key, value := args[0], args[1]
			changed := false
			err := synced.Save(ctx, func(content keg.Content) bool {
				changed = content.(*keg.SettingsContent).Set(key, value)
				return changed
			}, nil, nil)
			if err != nil {
				return fmt.Errorf("failed to save settings: %w", err)
			}
			if !changed {
				c.io.Printf("%s is already %s\n", key, value)
				return nil
			}
			c.io.Printf("✓ %s=%s\n", key, value)
		}
		return nil
	})
}
