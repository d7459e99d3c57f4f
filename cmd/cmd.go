package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/dosco/mongosource/core"
	"github.com/dosco/mongosource/criteria"
	"github.com/dosco/mongosource/serv"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	// These variables are set using -ldflags
	version string
	commit  string
	date    string
)

var (
	log    *zap.Logger
	conf   *serv.Config
	cpath  string
	format string

	// fs is where criteria and documents given as @file are read from
	fs afero.Fs = afero.NewOsFs()
)

// Cmd is the entry point for the CLI
func Cmd() {
	log = serv.NewLogger(false, zap.NewAtomicLevelAt(zap.InfoLevel))

	if err := rootCmd().Execute(); err != nil {
		log.Sugar().Fatalf("%s", err)
	}
}

func rootCmd() *cobra.Command {
	cobra.EnableCommandSorting = false
	c := &cobra.Command{
		Use:           "mongosource",
		Short:         BuildDetails(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	c.PersistentFlags().StringVar(&cpath,
		"path", "./config", "path to config files")
	c.PersistentFlags().StringVar(&format,
		"format", "json", "output format: json or yaml")

	c.AddCommand(findCmd())
	c.AddCommand(countCmd())
	c.AddCommand(aggregateCmd())
	c.AddCommand(mapReduceCmd())
	c.AddCommand(insertCmd())
	c.AddCommand(updateCmd())
	c.AddCommand(deleteCmd())
	c.AddCommand(versionCmd())
	return c
}

// setup reads the config for the current GO_ENV and switches the logger to
// the configured level and format.
func setup(cpath string) error {
	if conf != nil {
		return nil
	}

	cp, err := filepath.Abs(cpath)
	if err != nil {
		return err
	}

	c, err := serv.ReadInConfig(path.Join(cp, serv.GetConfigName()))
	if err != nil {
		return errors.Wrap(err, "failed to read config")
	}

	level, err := c.Level()
	if err != nil {
		return err
	}
	log = serv.NewLogger(c.ShouldUseJSONLogs(), level)
	conf = c
	return nil
}

// openSource connects to the store named in the config.
var openSource = func(ctx context.Context) (*core.Source, error) {
	if err := setup(cpath); err != nil {
		return nil, err
	}
	return serv.NewSource(ctx, conf, log)
}

// withSource runs fn against a freshly opened source.
func withSource(ctx context.Context, fn func(*core.Source) error) error {
	src, err := openSource(ctx)
	if err != nil {
		return err
	}
	defer src.Close(context.WithoutCancel(ctx)) //nolint:errcheck

	return fn(src)
}

// readArg returns the argument itself, or the contents of the named file
// when it starts with @. A lone - reads from in.
func readArg(arg string, in io.Reader) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(in)
	case strings.HasPrefix(arg, "@"):
		return afero.ReadFile(fs, arg[1:])
	default:
		return []byte(arg), nil
	}
}

func readCriteria(cmd *cobra.Command, arg string) (*criteria.Criteria, error) {
	data, err := readArg(arg, cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	return criteria.Parse(data)
}

// readDocument decodes a JSON object, keeping whole numbers as integers.
func readDocument(cmd *cobra.Command, arg string) (map[string]any, error) {
	data, err := readArg(arg, cmd.InOrStdin())
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "invalid document")
	}
	if doc == nil {
		return nil, errors.New("invalid document: expected an object")
	}
	return numbers(doc).(map[string]any), nil
}

func numbers(v any) any {
	switch v := v.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, _ := v.Float64()
		return f
	case map[string]any:
		for k, e := range v {
			v[k] = numbers(e)
		}
	case []any:
		for i, e := range v {
			v[i] = numbers(e)
		}
	}
	return v
}

// printResult writes v to w in the selected output format.
func printResult(w io.Writer, v any) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)

	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()

	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// BuildDetails returns the version, commit and build date of the binary
func BuildDetails() string {
	if version == "" {
		return "mongosource (unknown version)"
	}
	return fmt.Sprintf("mongosource %s\nCommit: %s\nBuilt: %s", version, commit, date)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), BuildDetails())
		},
	}
}
