package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/demande-workflow/internal/container"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/workflow"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the user directory",
}

var userAddCmd = &cobra.Command{
	Use:   "add <id> <name> <role>",
	Short: "Create or update a user",
	Args:  cobra.ExactArgs(3),
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every user",
	Args:  cobra.NoArgs,
	RunE:  runUserList,
}

var larkOpenID string

func init() {
	userAddCmd.Flags().StringVar(&larkOpenID, "lark-open-id", "", "Lark open_id used for chat notifications")
	userCmd.AddCommand(userAddCmd, userListCmd)
}

// withDirectory opens the configured store for a one-shot command
func withDirectory(ctx context.Context, fn func(ctx context.Context, db *container.DatabaseBundle) error) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := container.ProvideDatabase(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))
		return err
	}
	if db.SQL != nil {
		defer db.SQL.Close()
	}

	return fn(ctx, db)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	role, err := workflow.ParseRole(args[2])
	if err != nil {
		return err
	}
	u := &entity.User{
		ID:         args[0],
		Name:       args[1],
		Role:       role,
		LarkOpenID: larkOpenID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := u.Validate(); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}

	return withDirectory(cmd.Context(), func(ctx context.Context, db *container.DatabaseBundle) error {
		if err := db.Repositories.Users.Upsert(ctx, u); err != nil {
			return err
		}
		cmd.Printf("saved user %s (%s)\n", u.ID, u.Role)
		return nil
	})
}

func runUserList(cmd *cobra.Command, args []string) error {
	return withDirectory(cmd.Context(), func(ctx context.Context, db *container.DatabaseBundle) error {
		users, err := db.Repositories.Users.List(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tROLE\tLARK OPEN ID")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Role, u.LarkOpenID)
		}
		return w.Flush()
	})
}
