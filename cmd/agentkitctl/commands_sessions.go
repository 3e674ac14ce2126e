package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentkit/pkg/models"
)

// buildSessionsCmd creates the "sessions" command group.
func buildSessionsCmd(serverAddr *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Create and drive sessions on a running agentkitd",
	}
	cmd.AddCommand(
		buildSessionsCreateCmd(serverAddr),
		buildSessionsGetCmd(serverAddr),
		buildSessionsQueryCmd(serverAddr),
		buildSessionsInterruptCmd(serverAddr),
		buildSessionsPauseCmd(serverAddr),
		buildSessionsResumeCmd(serverAddr),
		buildSessionsForkCmd(serverAddr),
		buildSessionsTerminateCmd(serverAddr),
	)
	return cmd
}

func buildSessionsCreateCmd(serverAddr *string) *cobra.Command {
	var (
		userID         string
		allowedTools   []string
		permissionMode string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user-id: %w", err)
			}
			sess, err := newAPIClient(*serverAddr).CreateSession(uid, allowedTools, models.PermissionMode(permissionMode))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s created (status %s)\n", sess.ID, sess.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "owning user ID")
	cmd.Flags().StringSliceVar(&allowedTools, "allowed-tools", nil, "comma-separated allowed tool names")
	cmd.Flags().StringVar(&permissionMode, "permission-mode", string(models.PermissionModeDefault), "DEFAULT | ACCEPT_EDITS | BYPASS")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func buildSessionsGetCmd(serverAddr *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <session-id>",
		Short: "Show a session's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			sess, err := newAPIClient(*serverAddr).GetSession(id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id:      %s\nstatus:  %s\nmode:    %s\nworkdir: %s\n", sess.ID, sess.Status, sess.Mode, sess.WorkdirPath)
			return nil
		},
	}
	return cmd
}

func buildSessionsQueryCmd(serverAddr *string) *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "query <session-id>",
		Short: "Drive one turn of a session with a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			result, err := newAPIClient(*serverAddr).Query(id, prompt)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt text to send")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func buildSessionsInterruptCmd(serverAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "interrupt <session-id>",
		Short: "Interrupt a session's in-flight turn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			return newAPIClient(*serverAddr).Interrupt(id)
		},
	}
}

func buildSessionsPauseCmd(serverAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <session-id>",
		Short: "Pause an active session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			sess, err := newAPIClient(*serverAddr).Pause(id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s now %s\n", sess.ID, sess.Status)
			return nil
		},
	}
}

func buildSessionsResumeCmd(serverAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume a paused session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			sess, err := newAPIClient(*serverAddr).Resume(id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s now %s\n", sess.ID, sess.Status)
			return nil
		},
	}
}

func buildSessionsForkCmd(serverAddr *string) *cobra.Command {
	var (
		name          string
		forkAtMessage int64
	)
	cmd := &cobra.Command{
		Use:   "fork <session-id>",
		Short: "Fork a session's working directory and message history into a new session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			forked, err := newAPIClient(*serverAddr).Fork(id, name, forkAtMessage)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forked session %s from %s\n", forked.ID, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name for the forked session")
	cmd.Flags().Int64Var(&forkAtMessage, "fork-at-message", 0, "copy parent messages up to this sequence number (0 copies all)")
	return cmd
}

func buildSessionsTerminateCmd(serverAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "terminate <session-id>",
		Short: "Terminate a session and release its agent subprocess",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			sess, err := newAPIClient(*serverAddr).Terminate(id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s now %s\n", sess.ID, sess.Status)
			return nil
		},
	}
}
