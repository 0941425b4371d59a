// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// sheetHeaders is the column order of the site articles sheet.
var sheetHeaders = []string{
	"id",
	"title",
	"date",
	"author",
	"category",
	"categoryRu",
	"image",
	"description",
	"externalUrl",
	"content",
	"isGoldTag",
	"practiceId",
	"telegramBotLink",
	"telegramBotCTA_title",
	"telegramBotCTA_description",
	"active",
}

var validCategories = []string{"News", "Analytics", "Interview", "Guide", "Legal Opinion", "Media"}

const (
	defaultAuthor   = "SOLIS Partners"
	defaultCategory = "Guide"
	defaultImage    = "/assets/logo-solis.jpg"
)

// article is one row of the articles sheet, and one object in articles.ts.
type article struct {
	ID          string
	Title       string
	Date        string
	Author      string
	Category    string
	CategoryRu  string
	Image       string
	Description string
	ExternalURL string
	Content     string
	GoldTag     bool
	PracticeIDs []string
	BotLink     string
	BotCTATitle string
	BotCTADesc  string
	Active      bool
}

// articleFromRow builds an article from a sheet row, get returning the
// trimmed cell under a header. Rows without an id are skipped.
func articleFromRow(get func(string) string) *article {
	a := &article{
		ID:          get("id"),
		Title:       get("title"),
		Date:        get("date"),
		Author:      get("author"),
		Category:    get("category"),
		CategoryRu:  get("categoryRu"),
		Image:       get("image"),
		Description: get("description"),
		ExternalURL: get("externalUrl"),
		Content:     get("content"),
		GoldTag:     strings.EqualFold(get("isGoldTag"), "TRUE"),
		BotLink:     get("telegramBotLink"),
		BotCTATitle: get("telegramBotCTA_title"),
		BotCTADesc:  get("telegramBotCTA_description"),
	}
	if a.ID == "" {
		return nil
	}
	if a.Author == "" {
		a.Author = defaultAuthor
	}
	if !slices.Contains(validCategories, a.Category) {
		a.Category = defaultCategory
	}
	if a.Image == "" {
		a.Image = defaultImage
	}
	for _, p := range strings.Split(get("practiceId"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			a.PracticeIDs = append(a.PracticeIDs, p)
		}
	}
	// An empty cell means active; the lawyers flip it to FALSE to unpublish.
	active := get("active")
	a.Active = active == "" || strings.EqualFold(active, "TRUE")
	return a
}

// row returns the article as a sheet row in [sheetHeaders] order.
func (a *article) row() []any {
	goldTag := ""
	if a.GoldTag {
		goldTag = "TRUE"
	}
	return []any{
		a.ID,
		a.Title,
		a.Date,
		a.Author,
		a.Category,
		a.CategoryRu,
		a.Image,
		a.Description,
		a.ExternalURL,
		a.Content,
		goldTag,
		strings.Join(a.PracticeIDs, ", "),
		a.BotLink,
		a.BotCTATitle,
		a.BotCTADesc,
		"TRUE",
	}
}

var tsEscaper = strings.NewReplacer("\\", "\\\\", "`", "\\`", "${", "\\${")

// escapeTS escapes a string for a TypeScript template literal.
func escapeTS(s string) string { return tsEscaper.Replace(s) }

const tsHeader = `import { TrendingUp, Star, Newspaper, BookOpen, Mic, Sparkles, FileText } from "lucide-react";

export interface Article {
  id: string;
  title: string;
  date: string;
  author: string;
  category: "News" | "Analytics" | "Interview" | "Guide" | "Legal Opinion" | "Media";
  categoryRu: string;
  image: string;
  description: string;
  externalUrl?: string;
  content?: string;
  isGoldTag?: boolean;
  practiceId?: string[];
  telegramBotLink?: string;
  telegramBotCTA?: {
    title?: string;
    description?: string;
  };
}

export const articles: Article[] = [
`

const tsFooter = `];

export const getCategoryIcon = (category: string) => {
  switch (category) {
    case "Analytics": return TrendingUp;
    case "Legal Opinion": return Star;
    case "News": return Newspaper;
    case "Media": return Mic;
    case "Guide": return BookOpen;
    default: return FileText;
  }
};
`

// generateArticlesTS renders the articles.ts data file the site is built
// from. Inactive articles are left out.
func generateArticlesTS(articles []article) string {
	var blocks []string
	for _, a := range articles {
		if !a.Active {
			continue
		}
		blocks = append(blocks, a.block())
	}

	var sb strings.Builder
	sb.WriteString(tsHeader)
	sb.WriteString(strings.Join(blocks, ",\n"))
	sb.WriteString("\n")
	sb.WriteString(tsFooter)
	return sb.String()
}

func (a *article) block() string {
	var lines []string
	add := func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	// %q escaping is compatible with TypeScript double-quoted strings.
	add("  {")
	add("    id: %q,", a.ID)
	add("    title: %q,", a.Title)
	add("    date: %q,", a.Date)
	add("    author: %q,", a.Author)
	add("    category: %q,", a.Category)
	add("    categoryRu: %q,", a.CategoryRu)
	add("    image: %q,", a.Image)
	add("    description: %q,", a.Description)

	if a.ExternalURL != "" {
		add("    externalUrl: %q,", a.ExternalURL)
	}
	if a.Content != "" {
		add("    content: `%s`,", escapeTS(a.Content))
	}
	if a.GoldTag {
		add("    isGoldTag: true,")
	}
	if len(a.PracticeIDs) > 0 {
		quoted := make([]string, len(a.PracticeIDs))
		for i, p := range a.PracticeIDs {
			quoted[i] = fmt.Sprintf("%q", p)
		}
		add("    practiceId: [%s],", strings.Join(quoted, ", "))
	}
	if a.BotLink != "" {
		add("    telegramBotLink: %q,", a.BotLink)
	}
	if a.BotCTATitle != "" || a.BotCTADesc != "" {
		add("    telegramBotCTA: {")
		if a.BotCTATitle != "" {
			add("      title: %q,", a.BotCTATitle)
		}
		if a.BotCTADesc != "" {
			add("      description: %q,", a.BotCTADesc)
		}
		add("    },")
	}

	add("  }")
	return strings.Join(lines, "\n")
}

var (
	articlesArrayRe = regexp.MustCompile(`(?s)export const articles.*?=\s*\[(.*)\];`)
	practiceIDsRe   = regexp.MustCompile(`practiceId:\s*\[(.*?)\]`)
	quotedRe        = regexp.MustCompile(`"([^"]+)"`)
	botCTARe        = regexp.MustCompile(`(?s)telegramBotCTA:\s*\{(.*?)\}`)
)

// parseArticlesTS extracts articles back out of an existing articles.ts.
// It understands only the shape [generateArticlesTS] produces, which is
// enough to seed the sheet from the file already in the site repo.
func parseArticlesTS(content string) []article {
	m := articlesArrayRe.FindStringSubmatch(content)
	if m == nil {
		return nil
	}

	var articles []article
	for _, block := range strings.Split(m[1], "\n  {") {
		if strings.TrimSpace(block) == "" {
			continue
		}

		a := article{
			ID:          extractField(block, "id"),
			Title:       extractField(block, "title"),
			Date:        extractField(block, "date"),
			Author:      extractField(block, "author"),
			Category:    extractField(block, "category"),
			CategoryRu:  extractField(block, "categoryRu"),
			Image:       extractField(block, "image"),
			Description: extractField(block, "description"),
			ExternalURL: extractField(block, "externalUrl"),
			Content:     strings.TrimSpace(extractField(block, "content")),
			GoldTag:     strings.Contains(block, "isGoldTag: true"),
			BotLink:     extractField(block, "telegramBotLink"),
			Active:      true,
		}
		if a.ID == "" {
			continue
		}
		if a.Image == "" {
			a.Image = defaultImage
		}

		if pm := practiceIDsRe.FindStringSubmatch(block); pm != nil {
			for _, qm := range quotedRe.FindAllStringSubmatch(pm[1], -1) {
				a.PracticeIDs = append(a.PracticeIDs, qm[1])
			}
		}
		if cm := botCTARe.FindStringSubmatch(block); cm != nil {
			a.BotCTATitle = extractField(cm[1], "title")
			a.BotCTADesc = extractField(cm[1], "description")
		}

		articles = append(articles, a)
	}
	return articles
}

// extractField finds the first field: "value" or field: `value` in block.
func extractField(block, field string) string {
	if m := regexp.MustCompile(regexp.QuoteMeta(field) + `:\s*"([^"]*)"`).FindStringSubmatch(block); m != nil {
		return m[1]
	}
	if m := regexp.MustCompile(`(?s)` + regexp.QuoteMeta(field) + ":\\s*`(.*?)`").FindStringSubmatch(block); m != nil {
		return m[1]
	}
	return ""
}
