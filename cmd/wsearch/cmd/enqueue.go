package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/wsearch/internal/queue"
)

func newEnqueueCmd() *cobra.Command {
	var (
		workspaceID string
		operation   string
		priority    int
	)

	cmd := &cobra.Command{
		Use:   "enqueue <entity-type> <entity-id>",
		Short: "Queue an indexing task",
		Long: `Add one task to the indexing queue. Entity types: page, block,
database, row, document. Operations: insert, update, delete.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityType, err := parseEntityType(args[0])
			if err != nil {
				return err
			}
			op, err := parseOperation(operation)
			if err != nil {
				return err
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.queue.Enqueue(cmd.Context(), workspaceID, entityType, args[1], op, priority)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued task %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&workspaceID, "workspace", "", "Workspace the entity belongs to")
	cmd.Flags().StringVar(&operation, "op", "insert", "Operation: insert, update, or delete")
	cmd.Flags().IntVar(&priority, "priority", 0, "Task priority, higher runs first")

	return cmd
}

func parseEntityType(s string) (queue.EntityType, error) {
	switch queue.EntityType(s) {
	case queue.EntityPage, queue.EntityBlock, queue.EntityDatabase, queue.EntityRow, queue.EntityDocument:
		return queue.EntityType(s), nil
	default:
		return "", fmt.Errorf("unknown entity type %q (want page, block, database, row, or document)", s)
	}
}

func parseOperation(s string) (queue.Operation, error) {
	switch queue.Operation(s) {
	case queue.OpInsert, queue.OpUpdate, queue.OpDelete:
		return queue.Operation(s), nil
	default:
		return "", fmt.Errorf("unknown operation %q (want insert, update, or delete)", s)
	}
}
