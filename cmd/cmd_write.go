package main

import (
	"github.com/dosco/mongosource/core"
	"github.com/dosco/mongosource/criteria"
	"github.com/spf13/cobra"
)

func insertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insert <collection> <document>",
		Short: "Insert a JSON document and print its id",
		Args:  cobra.ExactArgs(2),
		RunE:  cmdInsert,
	}
}

func cmdInsert(cmd *cobra.Command, args []string) error {
	doc, err := readDocument(cmd, args[1])
	if err != nil {
		return err
	}

	return withSource(cmd.Context(), func(src *core.Source) error {
		id, err := src.Save(cmd.Context(), doc, criteria.NewCollection(args[0]))
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), map[string]string{"id": id})
	})
}

func updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <criteria> <document>",
		Short: "Set the fields of a JSON document on every matching document",
		Long:  criteriaHelp,
		Args:  cobra.ExactArgs(2),
		RunE:  cmdUpdate,
	}
}

func cmdUpdate(cmd *cobra.Command, args []string) error {
	c, err := readCriteria(cmd, args[0])
	if err != nil {
		return err
	}

	doc, err := readDocument(cmd, args[1])
	if err != nil {
		return err
	}

	return withSource(cmd.Context(), func(src *core.Source) error {
		return src.Update(cmd.Context(), doc, c)
	})
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <criteria>",
		Short: "Delete every document matching the criteria",
		Long:  criteriaHelp,
		Args:  cobra.ExactArgs(1),
		RunE:  cmdDelete,
	}
}

func cmdDelete(cmd *cobra.Command, args []string) error {
	c, err := readCriteria(cmd, args[0])
	if err != nil {
		return err
	}

	return withSource(cmd.Context(), func(src *core.Source) error {
		return src.Delete(cmd.Context(), c)
	})
}
