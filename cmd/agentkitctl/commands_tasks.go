package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// buildTasksCmd creates the "tasks" command group.
func buildTasksCmd(serverAddr *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Create and trigger scheduled tasks on a running agentkitd",
	}
	cmd.AddCommand(
		buildTasksCreateCmd(serverAddr),
		buildTasksGetCmd(serverAddr),
		buildTasksDeleteCmd(serverAddr),
		buildTasksRunCmd(serverAddr),
	)
	return cmd
}

func buildTasksCreateCmd(serverAddr *string) *cobra.Command {
	var (
		userID         string
		name           string
		promptTemplate string
		scheduleCron   string
		allowedTools   []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task, optionally on a cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user-id: %w", err)
			}
			task, err := newAPIClient(*serverAddr).CreateTask(uid, name, promptTemplate, scheduleCron, allowedTools)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %s created (%s)\n", task.ID, task.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "owning user ID")
	cmd.Flags().StringVar(&name, "name", "", "task name")
	cmd.Flags().StringVar(&promptTemplate, "prompt", "", "prompt template, supports {{.var}} substitution")
	cmd.Flags().StringVar(&scheduleCron, "cron", "", "cron expression; omit for a manual-only task")
	cmd.Flags().StringSliceVar(&allowedTools, "allowed-tools", nil, "comma-separated allowed tool names")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func buildTasksGetCmd(serverAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a task's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			task, err := newAPIClient(*serverAddr).GetTask(id)
			if err != nil {
				return err
			}
			cron := "-"
			if task.ScheduleCron != nil {
				cron = *task.ScheduleCron
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id:     %s\nname:   %s\ncron:   %s\nactive: %t\n", task.ID, task.Name, cron, task.ScheduleEnabled)
			return nil
		},
	}
}

func buildTasksDeleteCmd(serverAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			return newAPIClient(*serverAddr).DeleteTask(id)
		},
	}
}

func buildTasksRunCmd(serverAddr *string) *cobra.Command {
	var variables map[string]string
	cmd := &cobra.Command{
		Use:   "run <task-id>",
		Short: "Trigger a task immediately, bypassing its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			exec, err := newAPIClient(*serverAddr).RunTask(id, variables)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "execution %s status %s\n", exec.ID, exec.Status)
			return nil
		},
	}
	cmd.Flags().StringToStringVar(&variables, "var", nil, "template variable, repeatable (key=value)")
	return cmd
}
