package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/formflow/internal/archive"
	"github.com/leapstack-labs/formflow/internal/cli/output"
)

var errArchiveDisabled = errors.New("archive is disabled\nHint: set archive.enabled in formflow.yaml or pass --archive")

// NewArchiveCommand creates the archive command group.
func NewArchiveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Browse archived batch workbooks and ledger snapshots",
		Long: `Every submitted batch workbook and the ledger it left behind are copied
into the archive store (a local folder, S3 or MinIO). These commands list,
fetch and share archived files.`,
	}

	cmd.AddCommand(newArchiveListCommand())
	cmd.AddCommand(newArchiveGetCommand())
	cmd.AddCommand(newArchiveURLCommand())

	return cmd
}

func openArchive(cmd *cobra.Command) (*CommandContext, archive.Store, func(), error) {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	a := cmdCtx.Coordinator.Archive()
	if a == nil {
		cleanup()
		return nil, nil, nil, errArchiveDisabled
	}
	return cmdCtx, a.Store(), cleanup, nil
}

func newArchiveListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ls [prefix]",
		Aliases: []string{"list"},
		Short:   "List archived files",
		Example: `  formflow archive ls
  formflow archive ls batches/2024/05`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, store, cleanup, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			prefix := ""
			if len(args) > 0 {
				prefix = args[0]
			}
			infos, err := store.List(cmd.Context(), prefix)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				out := make([]output.ArchiveObject, 0, len(infos))
				for _, info := range infos {
					out = append(out, archiveObject(info))
				}
				return r.JSON(out)
			}

			if len(infos) == 0 {
				r.Muted("Archive is empty")
				return nil
			}
			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{info.Key, strconv.FormatInt(info.Size, 10), info.LastModified.Format(time.RFC3339)})
			}
			r.Table([]string{"Key", "Size", "Updated"}, rows)
			return nil
		},
	}
}

func newArchiveGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key> [destination]",
		Short: "Download an archived file",
		Long: `Copy an archived file into the working directory, or to destination.
A destination of "-" writes to stdout.`,
		Example: `  formflow archive get batches/2024/05/01/H2-0427.xlsx
  formflow archive get ledger/20240501T093000.000Z/material_list.csv -`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, store, cleanup, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			key := args[0]
			_, body, err := store.Get(cmd.Context(), key)
			if err != nil {
				return err
			}
			defer func() { _ = body.Close() }()

			dest := path.Base(key)
			if len(args) == 2 {
				dest = args[1]
			}
			if dest == "-" {
				_, err = io.Copy(cmd.OutOrStdout(), body)
				return err
			}

			if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
				return err
			}
			f, err := os.Create(dest) //nolint:gosec // destination comes from the command line
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, body); err != nil {
				_ = f.Close()
				return fmt.Errorf("failed to write %s: %w", dest, err)
			}
			if err := f.Close(); err != nil {
				return err
			}

			cmdCtx.Renderer.Success(fmt.Sprintf("Saved %s to %s", key, dest))
			return nil
		},
	}
}

func newArchiveURLCommand() *cobra.Command {
	var expiry time.Duration

	cmd := &cobra.Command{
		Use:   "url <key>",
		Short: "Print a shareable URL for an archived file",
		Long: `Print a pre-signed download URL for an archived file. Filesystem archives
print a file:// URL.`,
		Example: `  formflow archive url batches/2024/05/01/H2-0427.xlsx --expiry 1h`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, store, cleanup, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			info, err := store.Head(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			url, err := store.PresignURL(cmd.Context(), args[0], archive.SignedURLOptions{Expiry: expiry})
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				obj := archiveObject(info)
				obj.URL = url
				return r.JSON(obj)
			}
			r.Println(url)
			return nil
		},
	}

	cmd.Flags().DurationVar(&expiry, "expiry", 15*time.Minute, "How long the URL stays valid")

	return cmd
}

func archiveObject(info archive.Info) output.ArchiveObject {
	obj := output.ArchiveObject{
		Key:         info.Key,
		Size:        info.Size,
		ContentType: info.ContentType,
		ETag:        info.ETag,
		Metadata:    info.Metadata,
	}
	if !info.LastModified.IsZero() {
		obj.UpdatedAt = info.LastModified.Format(time.RFC3339)
	}
	return obj
}
