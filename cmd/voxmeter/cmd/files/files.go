// Package files manages registered sources from the command line.
package files

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"voxmeter/cmd/voxmeter/cmd/bootstrap"
	appfiles "voxmeter/internal/app/files"
	"voxmeter/internal/app/model"
)

var (
	orgID   string
	userID  string
	blobKey string
	name    string
)

func init() {
	Cmd.PersistentFlags().StringVar(&orgID, "org", "", "organization that owns the files")
	_ = Cmd.MarkPersistentFlagRequired("org")

	registerCmd.Flags().StringVar(&userID, "user", "", "user registering the file")
	registerCmd.Flags().StringVar(&blobKey, "blob-key", "", "key of an object already in the bucket")
	registerCmd.Flags().StringVar(&name, "name", "", "display name (default: the key's base name)")
	_ = registerCmd.MarkFlagRequired("user")
	_ = registerCmd.MarkFlagRequired("blob-key")

	Cmd.AddCommand(registerCmd, listCmd, deleteCmd)
}

// Cmd groups the file subcommands.
var Cmd = &cobra.Command{
	Use:   "files",
	Short: "Register, list and delete source files",
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register an object already in the bucket and mark it available",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, cleanup, err := bootstrap.Setup(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		f, err := application.Files.Register(cmd.Context(), appfiles.Registration{
			OrganizationID: orgID,
			UserID:         userID,
			Name:           name,
			StorageKey:     blobKey,
		})
		if err != nil {
			return err
		}
		if f, err = application.Files.Confirm(cmd.Context(), orgID, f.ID); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), f.ID)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List an organization's files, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, cleanup, err := bootstrap.Setup(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		files, err := application.Files.List(cmd.Context(), orgID)
		if err != nil {
			return err
		}
		return Print(cmd.OutOrStdout(), files)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <file-id>...",
	Short: "Delete files with their source blob and every derived artifact",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, cleanup, err := bootstrap.Setup(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		for _, id := range args {
			if err := application.Files.Delete(cmd.Context(), orgID, id); err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
		}
		return nil
	},
}

// Print writes files as an aligned table.
func Print(w io.Writer, files []model.File) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tTRANSCRIPT\tTRANSLATION\tCREATED")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			f.ID, f.Name, f.Status, f.TranscriptStatus, f.TranslationStatus,
			f.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
