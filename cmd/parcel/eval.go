package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/parcel/internal/cli"
	"github.com/Veraticus/parcel/internal/engine"
	"github.com/Veraticus/parcel/internal/model"
	"github.com/Veraticus/parcel/internal/validate"
)

// evalCase is one sample input. A first line of the form "expect: <kind>"
// names the operation the sample should extract to.
type evalCase struct {
	Name   string
	Text   string
	Expect model.OperationKind
	Source model.Source
}

type evalResult struct {
	Errors   []model.FieldError
	Case     evalCase
	Kind     model.OperationKind
	Path     model.ExtractionPath
	Reason   string
	Duration time.Duration
}

// Matched reports whether the sample met its expectation. Samples without
// one match when they validate cleanly.
func (r evalResult) Matched() bool {
	if r.Case.Expect != "" {
		return r.Kind == r.Case.Expect && len(r.Errors) == 0
	}
	return len(r.Errors) == 0
}

func evalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <dir>",
		Short: "Measure extraction over a directory of sample inputs",
		Long: `Run extraction and validation, without proposing or executing anything,
over every .txt and .eml file in a directory. Files may start with a line
"expect: create_client" to check the extracted operation.`,
		Args: cobra.ExactArgs(1),
		RunE: runEval,
	}

	cmd.Flags().Int("workers", 4, "concurrent extractions")
	cmd.Flags().Bool("strict", false, "exit non-zero when any sample misses")

	return cmd
}

func runEval(cmd *cobra.Command, args []string) error {
	cases, err := loadEvalCases(args[0])
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		return fmt.Errorf("no .txt or .eml samples in %s", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resolver, inferrer, err := newResolver(cfg, nil)
	if err != nil {
		return err
	}
	if inferrer != nil {
		defer inferrer.Close()
	}

	workers, _ := cmd.Flags().GetInt("workers")
	out := cmd.OutOrStdout()
	bar := progressbar.NewOptions(len(cases),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Extracting samples...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr())
		}),
	)

	results, err := evaluate(cmd.Context(), resolver, validate.New(validate.DefaultPolicy()), cases, workers, func() {
		if err := bar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	})
	if err != nil {
		return err
	}

	misses := reportEval(out, results)
	if strict, _ := cmd.Flags().GetBool("strict"); strict && misses > 0 {
		return fmt.Errorf("%d of %d samples missed", misses, len(results))
	}
	return nil
}

// loadEvalCases reads every sample in dir, sorted by name.
func loadEvalCases(dir string) ([]evalCase, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}

	var cases []evalCase
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".txt" && ext != ".eml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}

		c := evalCase{Name: e.Name(), Text: string(data), Source: model.SourceChat}
		if ext == ".eml" {
			c.Source = model.SourceEmail
		}
		first, rest, _ := strings.Cut(c.Text, "\n")
		if label, kind, ok := strings.Cut(first, ":"); ok && strings.EqualFold(strings.TrimSpace(label), "expect") {
			k, err := model.ParseOperationKind(strings.TrimSpace(kind))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", e.Name(), err)
			}
			c.Expect = k
			c.Text = rest
		}
		cases = append(cases, c)
	}

	sort.Slice(cases, func(i, j int) bool { return cases[i].Name < cases[j].Name })
	return cases, nil
}

// evaluate resolves and validates every case with bounded concurrency.
// Results keep the order of cases.
func evaluate(ctx context.Context, resolver engine.Resolver, validator *validate.Validator,
	cases []evalCase, workers int, done func()) ([]evalResult, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]evalResult, len(cases))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, c := range cases {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			start := time.Now()
			cand := resolver.Resolve(gCtx, model.RawInput{
				Text:       c.Text,
				Source:     c.Source,
				SessionID:  "eval-" + c.Name,
				ReceivedAt: start,
			}, nil)
			_, errs := validator.Validate(cand)

			results[i] = evalResult{
				Case:     c,
				Kind:     cand.Kind,
				Path:     cand.Path,
				Reason:   cand.FallbackReason,
				Errors:   errs,
				Duration: time.Since(start),
			}
			if done != nil {
				done()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// reportEval prints one row per sample and a summary, returning the number
// of misses.
func reportEval(w io.Writer, results []evalResult) int {
	rows := make([][]string, 0, len(results))
	paths := make(map[model.ExtractionPath]int)
	misses := 0
	for _, r := range results {
		paths[r.Path]++
		mark := cli.SuccessIcon
		if !r.Matched() {
			mark = cli.ErrorIcon
			misses++
		}
		fields := make([]string, 0, len(r.Errors))
		for _, e := range r.Errors {
			fields = append(fields, e.Field)
		}
		path := string(r.Path)
		if r.Reason != "" {
			path += " (" + r.Reason + ")"
		}
		rows = append(rows, []string{
			mark,
			r.Case.Name,
			string(r.Kind),
			string(r.Case.Expect),
			path,
			strings.Join(fields, ","),
			r.Duration.Round(time.Millisecond).String(),
		})
	}
	printTable(w, []string{"", "Sample", "Kind", "Expected", "Path", "Errors", "Time"}, rows)

	summary := fmt.Sprintf("%d/%d matched, inference %d, pattern %d",
		len(results)-misses, len(results), paths[model.PathInference], paths[model.PathPattern])
	if misses == 0 {
		fmt.Fprintln(w, cli.FormatSuccess(summary))
	} else {
		fmt.Fprintln(w, cli.FormatWarning(summary))
	}
	return misses
}
