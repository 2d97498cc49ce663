// Command sieve matches JSON objects read from stdin against filters written
// in CEL.
//
//	sieve match --filters filters.yaml --schema schema.yaml < objects.jsonl
//	sieve tree --filters filters.yaml
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ezachrisen/sieve"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const batchSize = 1024

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "sieve",
		Short:        "Match JSON objects against many filters at once",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringP("filters", "f", "", "YAML file with the filters (required)")
	cmd.PersistentFlags().StringP("schema", "s", "", "YAML file with the schema of the objects")
	cmd.PersistentFlags().String("log-level", "warning", "log level: debug, info, warning or error")
	_ = cmd.MarkPersistentFlagRequired("filters")

	cmd.AddCommand(newMatchCmd(), newTreeCmd())
	return cmd
}

// matcherFromCmd builds the matcher described by the persistent flags.
func matcherFromCmd(cmd *cobra.Command) (*sieve.Matcher[sieve.Type, string], error) {
	flags := cmd.Flags()
	filtersPath, _ := flags.GetString("filters")
	schemaPath, _ := flags.GetString("schema")
	levelName, _ := flags.GetString("log-level")

	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())
	log.SetLevel(level)

	filters, err := readFile(filtersPath, loadFilters)
	if err != nil {
		return nil, err
	}
	var schema sieve.Schema
	if schemaPath != "" {
		if schema, err = readFile(schemaPath, loadSchema); err != nil {
			return nil, err
		}
	}
	return buildMatcher(filters, schema, log)
}

func newMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match JSON objects, one per line on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := matcherFromCmd(cmd)
			if err != nil {
				return err
			}
			workers, _ := cmd.Flags().GetInt("workers")
			output, _ := cmd.Flags().GetString("output")
			return runMatch(cmd, m, cmd.InOrStdin(), workers, output)
		},
	}
	cmd.Flags().IntP("workers", "w", 4, "number of goroutines matching objects")
	cmd.Flags().StringP("output", "o", "table", "output format: table or json")
	return cmd
}

func runMatch(cmd *cobra.Command, m *sieve.Matcher[sieve.Type, string], in io.Reader, workers int, output string) error {
	if output != "table" && output != "json" {
		return fmt.Errorf("unknown output format %q", output)
	}
	out := cmd.OutOrStdout()
	start := time.Now()

	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Object", "Subscription", "Row"})
	enc := json.NewEncoder(out)

	var objects, matched, total int
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	batch := make([]any, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		results, err := m.MatchAll(cmd.Context(), batch, workers)
		if err != nil {
			return err
		}
		for i, ms := range results {
			n := objects - len(batch) + i + 1
			if len(ms) > 0 {
				matched++
			}
			for _, mt := range ms {
				total++
				if output == "json" {
					if err := enc.Encode(jsonMatch{Object: n, Subscription: mt.Subscription.ID(), Row: jsonRow(mt.Row)}); err != nil {
						return err
					}
					continue
				}
				tw.AppendRow(table.Row{n, mt.Subscription.ID(), rowString(mt.Row)})
			}
		}
		batch = batch[:0]
		return nil
	}

	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		objects++
		obj, err := decodeObject(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", objects, err)
		}
		batch = append(batch, obj)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}

	if output == "table" {
		style := table.StyleLight
		style.Format.Header = text.FormatDefault
		tw.SetStyle(style)
		fmt.Fprintln(out, tw.Render())
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s of %s objects matched, %s matches, %s\n",
		humanize.Comma(int64(matched)), humanize.Comma(int64(objects)),
		humanize.Comma(int64(total)), time.Since(start).Round(time.Millisecond))
	return nil
}

// decodeObject decodes a JSON object keeping numbers as json.Number, which
// compare exactly with integer operands.
func decodeObject(line []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return obj, nil
}

type jsonMatch struct {
	Object       int    `json:"object"`
	Subscription string `json:"subscription"`
	Row          []any  `json:"row,omitempty"`
}

// jsonRow replaces NoValue with null.
func jsonRow(r sieve.Row) []any {
	if r == nil {
		return nil
	}
	out := make([]any, len(r))
	for i := range r {
		if r.Has(i) {
			out[i] = r[i]
		}
	}
	return out
}

func rowString(r sieve.Row) string {
	if r == nil {
		return ""
	}
	b, err := json.Marshal(jsonRow(r))
	if err != nil {
		return fmt.Sprint(r)
	}
	return string(b)
}

func newTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the attribute tree built from the filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := matcherFromCmd(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if detailed, _ := cmd.Flags().GetBool("table"); detailed {
				fmt.Fprintln(out, m.String())
			} else {
				fmt.Fprint(out, m.Tree())
			}
			fmt.Fprintln(out, m.Stats())
			return nil
		},
	}
	cmd.Flags().Bool("table", false, "print one table row per attribute node")
	return cmd
}
