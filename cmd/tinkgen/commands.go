package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"tinking/backend/internal/compiler"
	"tinking/backend/internal/dom"
	"tinking/backend/internal/models"
	"tinking/backend/internal/selector"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tinkgen",
		Short: "Compile Tinking recipes into Puppeteer or Playwright scripts",
		Long: `tinkgen works on recipes saved by the Tinking editor.

Examples:
  tinkgen compile shop.json --driver playwright --out scrape.js
  tinkgen validate shop.json
  tinkgen selector --html page.html --query "li.price" --index 2`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCompileCmd(), newValidateCmd(), newSelectorCmd())
	return root
}

func newCompileCmd() *cobra.Command {
	var (
		driver     string
		out        string
		outputFile string
		headful    bool
	)
	cmd := &cobra.Command{
		Use:   "compile <recipe.json>",
		Short: "Generate the script for a recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := readRecipe(args[0])
			if err != nil {
				return err
			}
			d, err := compiler.ParseDriver(driver)
			if err != nil {
				return err
			}
			script, err := compiler.Compile(steps, compiler.Options{
				Driver:         d,
				OutputFilename: outputFile,
				Headful:        headful,
			})
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), script)
				return err
			}
			if err := os.WriteFile(out, []byte(script), 0o644); err != nil {
				return fmt.Errorf("write script: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%s)\n", out, d)
			return nil
		},
	}
	cmd.Flags().StringVarP(&driver, "driver", "d", string(compiler.Puppeteer), "script driver: "+driverList())
	cmd.Flags().StringVarP(&out, "out", "o", "", "script path, stdout when empty")
	cmd.Flags().StringVar(&outputFile, "output-file", "", "data file the script writes, timestamped when empty")
	cmd.Flags().BoolVar(&headful, "headful", false, "open a visible browser when the script runs")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <recipe.json>",
		Short: "Check that a recipe is well formed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := readRecipe(args[0])
			if err != nil {
				return err
			}
			if err := models.ValidateSteps(steps); err != nil {
				return err
			}
			loop, inLoop := compiler.LoopStart(steps)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ok: %d steps, start url %s\n", len(steps), models.StartURL(steps))
			if inLoop {
				fmt.Fprintf(w, "loop body starts at step %d\n", loop)
			}
			return nil
		},
	}
}

func newSelectorCmd() *cobra.Command {
	var (
		htmlFile string
		pageURL  string
		query    string
		index    int
	)
	cmd := &cobra.Command{
		Use:   "selector",
		Short: "Show the picked and unique selectors of a match in an HTML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(htmlFile)
			if err != nil {
				return err
			}
			page, err := dom.Parse(bytes.NewReader(raw), pageURL)
			if err != nil {
				return err
			}
			nodes, err := page.Query(query)
			if err != nil {
				return err
			}
			if index < 0 || index >= len(nodes) {
				return fmt.Errorf("%q has %d matches, no index %d", query, len(nodes), index)
			}
			node := nodes[index]

			var picked, unique string
			page.Inspect(func(doc *goquery.Document) {
				picked = selector.Context(node)
				unique, err = selector.Unique(doc, node)
			})
			if err != nil {
				return err
			}
			total, err := page.Count(picked)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "matches: %d\n", len(nodes))
			fmt.Fprintf(w, "picked:  %s (%d)\n", picked, total)
			fmt.Fprintf(w, "unique:  %s\n", unique)
			if content := page.NodeContent(dom.KindFor(models.ParseDefaultAction(node.Data)), node); content != nil {
				fmt.Fprintf(w, "content: %s\n", *content)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&htmlFile, "html", "", "HTML file to inspect")
	cmd.Flags().StringVar(&pageURL, "url", "", "address the HTML was served from, used to resolve links")
	cmd.Flags().StringVarP(&query, "query", "q", "", "CSS selector to match")
	cmd.Flags().IntVarP(&index, "index", "n", 0, "which match to inspect, 0-based")
	_ = cmd.MarkFlagRequired("html")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

// readRecipe accepts a bare step list or a saved Tink object.
func readRecipe(path string) ([]models.Step, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	var steps []models.Step
	if bytes.HasPrefix(raw, []byte("[")) {
		err = json.Unmarshal(raw, &steps)
	} else {
		var tink struct {
			Steps []models.Step `json:"steps"`
		}
		err = json.Unmarshal(raw, &tink)
		steps = tink.Steps
	}
	if err != nil {
		return nil, fmt.Errorf("read recipe %s: %w", path, err)
	}
	return steps, nil
}

func driverList() string {
	names := make([]string, 0, len(compiler.Drivers()))
	for _, d := range compiler.Drivers() {
		names = append(names, string(d))
	}
	return strings.Join(names, ", ")
}
