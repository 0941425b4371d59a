// © 2025 SOLIS Partners. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"strings"
	"testing"

	"go.solispartners.kz/bot/internal/testutil"
)

func TestEscapeTS(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"plain text":          "plain text",
		"back`tick":           "back\\`tick",
		"dollar ${brace}":     "dollar \\${brace}",
		`back\slash`:          `back\\slash`,
		"`${all}` of \\ them": "\\`\\${all}\\` of \\\\ them",
	}
	for in, want := range cases {
		testutil.AssertEqual(t, escapeTS(in), want)
	}
}

func TestGenerateArticlesTS(t *testing.T) {
	t.Parallel()

	got := generateArticlesTS([]article{
		{
			ID:          "llp-registration",
			Title:       "Регистрация ТОО в Казахстане",
			Date:        "2025-06-01",
			Author:      "SOLIS Partners",
			Category:    "Guide",
			CategoryRu:  "Гайд",
			Image:       "/assets/llp.jpg",
			Description: "Пошаговый разбор.",
			Content:     "Шаг 1: выберите название.\nШаг 2: подайте заявление.",
			GoldTag:     true,
			PracticeIDs: []string{"corporate", "tax"},
			BotCTATitle: "Вопросы?",
			BotCTADesc:  "Задайте их нашему боту.",
			Active:      true,
		},
		{
			ID:          "old-news",
			Title:       "Снятая с публикации",
			Date:        "2024-01-01",
			Author:      "SOLIS Partners",
			Category:    "News",
			Image:       defaultImage,
			Description: "Не должна попасть в файл.",
			Active:      false,
		},
		{
			ID:          "external",
			Title:       "Интервью",
			Date:        "2025-05-20",
			Author:      "SOLIS Partners",
			Category:    "Interview",
			Image:       defaultImage,
			Description: "Ссылка на внешний материал.",
			ExternalURL: "https://example.com/interview",
			Active:      true,
		},
	})

	for _, want := range []string{
		`export const articles: Article[] = [`,
		`    id: "llp-registration",`,
		`    category: "Guide",`,
		"    content: `Шаг 1: выберите название.\nШаг 2: подайте заявление.`,",
		`    isGoldTag: true,`,
		`    practiceId: ["corporate", "tax"],`,
		`      title: "Вопросы?",`,
		`    externalUrl: "https://example.com/interview",`,
		`export const getCategoryIcon = (category: string) => {`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output must contain %q\n%s", want, got)
		}
	}
	if strings.Contains(got, "old-news") {
		t.Error("inactive article must be left out")
	}
}

func TestArticleFromRowDefaults(t *testing.T) {
	t.Parallel()

	row := map[string]string{
		"id":          "a1",
		"title":       "Заголовок",
		"category":    "Rumors", // not a valid category
		"description": "Описание",
		"practiceId":  "corporate, , tax",
	}
	a := articleFromRow(func(field string) string { return row[field] })
	if a == nil {
		t.Fatal("row with an id must produce an article")
	}

	testutil.AssertEqual(t, a.Author, defaultAuthor)
	testutil.AssertEqual(t, a.Category, defaultCategory)
	testutil.AssertEqual(t, a.Image, defaultImage)
	testutil.AssertEqual(t, a.PracticeIDs, []string{"corporate", "tax"})
	if !a.Active {
		t.Error("empty active cell must mean active")
	}

	if articleFromRow(func(string) string { return "" }) != nil {
		t.Error("row without an id must be skipped")
	}
}

func TestParseArticlesTSRoundTrip(t *testing.T) {
	t.Parallel()

	want := []article{
		{
			ID:          "llp-registration",
			Title:       "Регистрация ТОО",
			Date:        "2025-06-01",
			Author:      "SOLIS Partners",
			Category:    "Guide",
			CategoryRu:  "Гайд",
			Image:       "/assets/llp.jpg",
			Description: "Пошаговый разбор.",
			Content:     "Полный текст статьи.",
			GoldTag:     true,
			PracticeIDs: []string{"corporate"},
			BotLink:     "https://t.me/solis_bot",
			BotCTATitle: "Вопросы?",
			BotCTADesc:  "Задайте их боту.",
			Active:      true,
		},
		{
			ID:          "external",
			Title:       "Интервью",
			Date:        "2025-05-20",
			Author:      "SOLIS Partners",
			Category:    "Interview",
			CategoryRu:  "Интервью",
			Image:       defaultImage,
			Description: "Внешний материал.",
			ExternalURL: "https://example.com/interview",
			Active:      true,
		},
	}

	got := parseArticlesTS(generateArticlesTS(want))
	testutil.AssertEqual(t, got, want)
}

func TestParseArticlesTSNoArray(t *testing.T) {
	t.Parallel()

	if got := parseArticlesTS("export const nothing = 42;"); got != nil {
		t.Fatalf("want nil, got %v", got)
	}
}
