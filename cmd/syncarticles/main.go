// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.solispartners.kz/bot/internal/atomicio"
	"go.solispartners.kz/bot/internal/cli"
	"go.solispartners.kz/bot/internal/creds"

	"github.com/joho/godotenv"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

func main() { cli.Main(new(app)) }

const (
	sheetName  = "Статьи сайта"
	sheetRange = sheetName + "!A1:P"
	tsRelPath  = "src/data/articles.ts"
)

type app struct {
	dry  *bool
	init *bool

	// overridden in tests
	spreadsheetID string
	sitePath      string
	clientOptions []option.ClientOption
	runGit        func(ctx context.Context, dir string, args ...string) (string, error)
}

func (a *app) Flags(fs *flag.FlagSet) {
	a.dry = fs.Bool("dry", false, "Print the generated file instead of writing and pushing.")
	a.init = fs.Bool("init", false, "Create the articles sheet and seed it from the existing articles.ts.")
}

func (a *app) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("loading .env: %w", err)
		}
	}

	a.spreadsheetID = cmp.Or(a.spreadsheetID, env.Getenv("SPREADSHEET_ID"))
	if a.spreadsheetID == "" {
		return fmt.Errorf("%w: SPREADSHEET_ID environment variable is not set", cli.ErrInvalidArgs)
	}
	a.sitePath = cmp.Or(a.sitePath, env.Getenv("SITE_REPO"), "legal-partner-pro-review")
	if a.runGit == nil {
		a.runGit = runGit
	}
	if a.clientOptions == nil {
		a.clientOptions = []option.ClientOption{
			option.WithCredentialsFile(creds.Path(env.Getenv)),
		}
	}

	svc, err := sheetsapi.NewService(ctx, a.clientOptions...)
	if err != nil {
		return fmt.Errorf("creating sheets service: %w", err)
	}

	if *a.init {
		return a.initSheet(ctx, env, svc)
	}
	return a.sync(ctx, env, svc)
}

func (a *app) sync(ctx context.Context, env *cli.Env, svc *sheetsapi.Service) error {
	articles, err := a.readArticles(ctx, svc)
	if err != nil {
		return err
	}

	var active int
	for _, art := range articles {
		if art.Active {
			active++
		}
	}
	fmt.Fprintf(env.Stdout, "Fetched %d articles, %d active.\n", len(articles), active)
	if active == 0 {
		fmt.Fprintln(env.Stdout, "No active articles, nothing to sync.")
		return nil
	}

	content := generateArticlesTS(articles)

	if *a.dry {
		fmt.Fprintln(env.Stdout, content)
		fmt.Fprintf(env.Stdout, "Dry run, nothing written (%d articles).\n", active)
		return nil
	}

	if _, err := os.Stat(a.sitePath); err != nil {
		return fmt.Errorf("site repository at %s: %w (clone it first or set SITE_REPO)", a.sitePath, err)
	}
	tsPath := filepath.Join(a.sitePath, filepath.FromSlash(tsRelPath))
	if err := atomicio.WriteFile(tsPath, []byte(content), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "Wrote %s.\n", tsPath)

	return a.push(ctx, env, active)
}

// push commits and pushes articles.ts, skipping the commit when the
// regenerated file is identical to what is already in the repository.
func (a *app) push(ctx context.Context, env *cli.Env, count int) error {
	if _, err := a.runGit(ctx, a.sitePath, "add", tsRelPath); err != nil {
		return err
	}
	status, err := a.runGit(ctx, a.sitePath, "status", "--porcelain", tsRelPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		fmt.Fprintln(env.Stdout, "No changes, push not needed.")
		return nil
	}

	msg := fmt.Sprintf("content: sync %d articles from Google Sheets", count)
	if _, err := a.runGit(ctx, a.sitePath, "commit", "-m", msg); err != nil {
		return err
	}
	if _, err := a.runGit(ctx, a.sitePath, "push", "origin", "main"); err != nil {
		return err
	}
	fmt.Fprintln(env.Stdout, "Pushed, the site will redeploy shortly.")
	return nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, out)
	}
	return string(out), nil
}

func (a *app) readArticles(ctx context.Context, svc *sheetsapi.Service) ([]article, error) {
	resp, err := svc.Spreadsheets.Values.Get(a.spreadsheetID, sheetRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w (run with -init to create it)", sheetName, err)
	}
	if len(resp.Values) < 2 {
		return nil, nil
	}

	headers := make(map[string]int, len(resp.Values[0]))
	for i, h := range resp.Values[0] {
		headers[cellString(h)] = i
	}

	var articles []article
	for _, row := range resp.Values[1:] {
		get := func(field string) string {
			i, ok := headers[field]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(cellString(row[i]))
		}
		if art := articleFromRow(get); art != nil {
			articles = append(articles, *art)
		}
	}
	return articles, nil
}

func cellString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// initSheet creates the articles sheet, writes the header row and seeds it
// from the articles.ts already in the site repository. A sheet that already
// has rows is left alone.
func (a *app) initSheet(ctx context.Context, env *cli.Env, svc *sheetsapi.Service) error {
	ss, err := svc.Spreadsheets.Get(a.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("reading spreadsheet: %w", err)
	}

	var exists bool
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == sheetName {
			exists = true
			break
		}
	}
	if exists {
		resp, err := svc.Spreadsheets.Values.Get(a.spreadsheetID, sheetName+"!A2:P").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("reading sheet %q: %w", sheetName, err)
		}
		if len(resp.Values) > 0 {
			fmt.Fprintf(env.Stdout, "Sheet %q already has %d rows; delete it to reinitialize.\n", sheetName, len(resp.Values))
			return nil
		}
	} else {
		_, err := svc.Spreadsheets.BatchUpdate(a.spreadsheetID, &sheetsapi.BatchUpdateSpreadsheetRequest{
			Requests: []*sheetsapi.Request{{
				AddSheet: &sheetsapi.AddSheetRequest{
					Properties: &sheetsapi.SheetProperties{Title: sheetName},
				},
			}},
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("creating sheet %q: %w", sheetName, err)
		}
		fmt.Fprintf(env.Stdout, "Created sheet %q.\n", sheetName)
	}

	header := make([]any, len(sheetHeaders))
	for i, h := range sheetHeaders {
		header[i] = h
	}
	values := [][]any{header}

	tsPath := filepath.Join(a.sitePath, filepath.FromSlash(tsRelPath))
	if b, err := os.ReadFile(tsPath); err == nil {
		articles := parseArticlesTS(string(b))
		for _, art := range articles {
			values = append(values, art.row())
		}
		fmt.Fprintf(env.Stdout, "Seeding %d articles from %s.\n", len(articles), tsPath)
	} else {
		fmt.Fprintf(env.Stdout, "No %s to seed from, writing headers only.\n", tsPath)
	}

	_, err = svc.Spreadsheets.Values.Update(a.spreadsheetID, sheetName+"!A1", &sheetsapi.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("writing sheet %q: %w", sheetName, err)
	}

	fmt.Fprintf(env.Stdout, "Wrote %d rows. Edit the sheet, then run syncarticles to publish.\n", len(values))
	return nil
}
