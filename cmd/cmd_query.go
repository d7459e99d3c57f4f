package main

import (
	"github.com/dosco/mongosource/core"
	"github.com/dosco/mongosource/criteria"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const criteriaHelp = `Criteria are given as JSON, as @file or as - to read stdin:

  {"collection":"orders",
   "where":[{"op":">","field":"total","value":100}],
   "order":[{"field":"created","dir":"desc"}],
   "limit":{"length":10}}`

func findCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <criteria>",
		Short: "Find the documents matching the criteria",
		Long:  criteriaHelp,
		Args:  cobra.ExactArgs(1),
		RunE:  cmdFind,
	}
}

func cmdFind(cmd *cobra.Command, args []string) error {
	c, err := readCriteria(cmd, args[0])
	if err != nil {
		return err
	}

	return withSource(cmd.Context(), func(src *core.Source) error {
		docs, err := src.Find(cmd.Context(), c)
		if err != nil {
			return err
		}
		if docs == nil {
			docs = []core.Document{}
		}
		return printResult(cmd.OutOrStdout(), docs)
	})
}

func countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count <criteria>",
		Short: "Count the documents matching the criteria",
		Long:  criteriaHelp,
		Args:  cobra.ExactArgs(1),
		RunE:  cmdCount,
	}
}

func cmdCount(cmd *cobra.Command, args []string) error {
	c, err := readCriteria(cmd, args[0])
	if err != nil {
		return err
	}

	return withSource(cmd.Context(), func(src *core.Source) error {
		n, err := src.Count(cmd.Context(), c)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), n)
	})
}

func aggregateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate <sum|avg|max|min>:<field> <criteria>",
		Short: "Fold one field across the documents matching the criteria",
		Long:  criteriaHelp,
		Args:  cobra.ExactArgs(2),
		RunE:  cmdAggregate,
	}
}

func cmdAggregate(cmd *cobra.Command, args []string) error {
	a, err := criteria.ParseAggregate(args[0])
	if err != nil {
		return err
	}

	c, err := readCriteria(cmd, args[1])
	if err != nil {
		return err
	}

	return withSource(cmd.Context(), func(src *core.Source) error {
		v, err := src.Aggregate(cmd.Context(), a, c)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), v)
	})
}

func mapReduceCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "mapreduce <criteria>",
		Short: "Run map and reduce functions over the documents matching the criteria",
		Long:  criteriaHelp,
		Args:  cobra.ExactArgs(1),
		RunE:  cmdMapReduce,
	}
	c.Flags().String("map", "", "file holding the map function")
	c.Flags().String("reduce", "", "file holding the reduce function")
	c.Flags().String("finalize", "", "file holding the finalize function")
	c.Flags().String("scope", "", "JSON object of globals visible to the functions")
	c.MarkFlagRequired("map")    //nolint:errcheck
	c.MarkFlagRequired("reduce") //nolint:errcheck
	return c
}

func cmdMapReduce(cmd *cobra.Command, args []string) error {
	c, err := readCriteria(cmd, args[0])
	if err != nil {
		return err
	}

	var spec core.MapReduceSpec
	for _, f := range []struct {
		flag string
		dst  *string
	}{
		{"map", &spec.Map},
		{"reduce", &spec.Reduce},
		{"finalize", &spec.Finalize},
	} {
		name, _ := cmd.Flags().GetString(f.flag)
		if name == "" {
			continue
		}
		js, err := afero.ReadFile(fs, name)
		if err != nil {
			return errors.Wrapf(err, "reading --%s", f.flag)
		}
		*f.dst = string(js)
	}

	if scope, _ := cmd.Flags().GetString("scope"); scope != "" {
		if spec.Scope, err = readDocument(cmd, scope); err != nil {
			return errors.Wrap(err, "reading --scope")
		}
	}

	return withSource(cmd.Context(), func(src *core.Source) error {
		docs, err := src.MapReduce(cmd.Context(), c, spec)
		if err != nil {
			return err
		}
		if docs == nil {
			docs = []core.Document{}
		}
		return printResult(cmd.OutOrStdout(), docs)
	})
}
