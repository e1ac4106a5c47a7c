package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"tinking/backend/internal/dom"
	"tinking/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeRecipe(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "recipe.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func shopRecipe() []models.Step {
	nav := models.NewStep()
	nav.Action = models.ActionNavigate
	nav.Selector = "a.item"
	nav.TotalSelected = 10

	title := models.NewStep()
	title.Action = models.ActionExtractText
	title.Selector = "h1"
	title.TotalSelected = 1
	title.VariableName = "title"

	return []models.Step{models.NewStartStep("https://shop.example.com"), nav, title}
}

func TestCompileCommand(t *testing.T) {
	path := writeRecipe(t, shopRecipe())

	out, err := run(t, "compile", path, "--driver", "playwright", "--output-file", "shop.json")
	require.NoError(t, err)
	assert.Contains(t, out, `require("playwright")`)
	assert.Contains(t, out, "for (const url of urls) {")
	assert.Contains(t, out, "shop.json")

	script := filepath.Join(t.TempDir(), "scrape.js")
	_, err = run(t, "compile", path, "-o", script)
	require.NoError(t, err)
	raw, err := os.ReadFile(script)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `require("puppeteer")`)

	_, err = run(t, "compile", path, "--driver", "selenium")
	assert.Error(t, err)
}

func TestCompileAcceptsTinkObjects(t *testing.T) {
	path := writeRecipe(t, map[string]any{"id": "t1", "steps": shopRecipe()})
	out, err := run(t, "compile", path)
	require.NoError(t, err)
	assert.Contains(t, out, `await page.goto("https://shop.example.com");`)
}

func TestValidateCommand(t *testing.T) {
	out, err := run(t, "validate", writeRecipe(t, shopRecipe()))
	require.NoError(t, err)
	assert.Contains(t, out, "ok: 3 steps, start url https://shop.example.com")
	assert.Contains(t, out, "loop body starts at step 2")

	_, err = run(t, "validate", writeRecipe(t, []models.Step{}))
	assert.ErrorIs(t, err, models.ErrNoSteps)

	_, err = run(t, "validate", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

const pageHTML = `<html><body>
<ul class="prices">
  <li class="price">10$</li>
  <li class="price">20$</li>
  <li class="price">30$</li>
</ul>
</body></html>`

func TestSelectorCommand(t *testing.T) {
	file := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(file, []byte(pageHTML), 0o644))

	out, err := run(t, "selector", "--html", file, "--query", "li.price", "--index", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "matches: 3\n")
	assert.Contains(t, out, "picked:  ul.prices li.price (3)\n")
	assert.Contains(t, out, "content: 20$\n")

	var unique string
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, "unique:"); ok {
			unique = strings.TrimSpace(rest)
		}
	}
	require.NotEmpty(t, unique)

	page, err := dom.ParseString(pageHTML, "")
	require.NoError(t, err)
	matches, err := page.Query(unique)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	all, err := page.Query("li.price")
	require.NoError(t, err)
	assert.Same(t, all[1], matches[0])

	_, err = run(t, "selector", "--html", file, "--query", "li.price", "--index", "5")
	assert.Error(t, err)
	_, err = run(t, "selector", "--query", "li")
	assert.Error(t, err)
}
