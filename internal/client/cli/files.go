package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/iudanet/kegkeeper/internal/keg"
	"github.com/iudanet/kegkeeper/internal/models"
	"github.com/iudanet/kegkeeper/internal/validation"
)

// progressPrinter prints a line per finished or stopped transfer and every
// tenth chunk in between.
func (c *Cli) progressPrinter() func(fileID string, state models.TransferState) {
	var mu sync.Mutex
	return func(fileID string, state models.TransferState) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case state.Finished:
			c.io.Printf("%s: done, %d bytes\n", fileID, state.BytesProcessed)
		case state.Stopped:
			c.io.Printf("%s: stopped at chunk %d\n", fileID, state.ChunkID)
		case state.ChunkID%10 == 0:
			c.io.Printf("%s: chunk %d, %d bytes\n", fileID, state.ChunkID, state.BytesProcessed)
		}
	}
}

func (c *Cli) runUpload(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return c.usageError("upload")
	}
	return c.withWorkspace(ctx, func(w *workspace) error {
		w.manager.OnProgress(c.progressPrinter())

		k, err := w.manager.Upload(ctx, args[0])
		if err != nil {
			if k != nil {
				c.io.Printf("Upload of keg %s interrupted. Run 'kegkeeper resume' to continue.\n", k.ID)
			}
			return err
		}
		content := k.Content.(*keg.FileContent)
		c.io.Printf("✓ Uploaded %s (%d bytes)\n", content.Name, content.Size)
		c.io.Printf("Keg ID: %s\n", k.ID)
		return nil
	})
}

func (c *Cli) runDownload(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return c.usageError("download")
	}
	if err := validation.ValidateID(args[0]); err != nil {
		return err
	}

	return c.withWorkspace(ctx, func(w *workspace) error {
		k, err := c.loadFileKeg(ctx, w, args[0])
		if err != nil {
			return err
		}
		content := k.Content.(*keg.FileContent)

		path := content.Name
		if len(args) == 2 {
			path = args[1]
		}

		w.manager.OnProgress(c.progressPrinter())
		if err := w.manager.Download(ctx, k, path); err != nil {
			return err
		}
		c.io.Printf("✓ Saved %s (%d bytes)\n", path, content.Size)
		return nil
	})
}

func (c *Cli) loadFileKeg(ctx context.Context, w *workspace, kegID string) (*keg.Keg, error) {
	k := keg.New(w.sess, w.boot, keg.KindFile, &keg.FileContent{})
	k.ID = kegID
	if err := w.retrier.Do(ctx, "", k.Load); err != nil {
		return nil, fmt.Errorf("failed to load file keg %s: %w", kegID, err)
	}
	return k, nil
}

func (c *Cli) runFiles(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return c.usageError("files")
	}
	return c.withWorkspace(ctx, func(w *workspace) error {
		kegs, err := keg.ListKegs(ctx, w.sess, w.boot, keg.KindFile, keg.ListOptions{})
		if err != nil && len(kegs) == 0 {
			return err
		}
		if err != nil {
			c.io.Printf("Warning: some files could not be read: %v\n\n", err)
		}

		if len(kegs) == 0 {
			c.io.Println("No files.")
			return nil
		}
		c.io.Printf("%-36s  %12s  %s\n", "KEG ID", "SIZE", "NAME")
		for _, k := range kegs {
			content := k.Content.(*keg.FileContent)
			c.io.Printf("%-36s  %12d  %s\n", k.ID, content.Size, content.Name)
		}
		c.io.Printf("\nTotal: %d file(s)\n", len(kegs))
		return nil
	})
}

func (c *Cli) runRemove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return c.usageError("rm")
	}
	if err := validation.ValidateID(args[0]); err != nil {
		return err
	}
	return c.withWorkspace(ctx, func(w *workspace) error {
		k := keg.New(w.sess, w.boot, keg.KindFile, &keg.FileContent{})
		k.ID = args[0]
		if err := w.retrier.Do(ctx, "", k.Remove); err != nil {
			return err
		}
		c.io.Printf("✓ Removed %s\n", k.ID)
		return nil
	})
}

func (c *Cli) runResume(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return c.usageError("resume")
	}
	return c.withWorkspace(ctx, func(w *workspace) error {
		w.manager.OnProgress(c.progressPrinter())
		done, err := w.manager.ResumePending(ctx)
		c.io.Printf("Completed %d transfer(s)\n", done)
		return err
	})
}
