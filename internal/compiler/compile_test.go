package compiler

import (
	"strings"
	"testing"
	"tinking/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(url string) models.Step {
	return models.NewStartStep(url)
}

func extract(sel string, total int, name string, opts ...models.StepOption) models.Step {
	s := models.NewStep()
	s.Action = models.ActionExtractText
	s.Selector = sel
	s.TotalSelected = total
	s.VariableName = name
	s.Options = append(models.Options{}, opts...)
	return s
}

func navigate(sel string, total int, opts ...models.StepOption) models.Step {
	s := models.NewStep()
	s.Action = models.ActionNavigate
	s.Selector = sel
	s.TotalSelected = total
	s.TagName = "a"
	s.TagType = models.TagLink
	s.Options = append(models.Options{}, opts...)
	return s
}

func compile(t *testing.T, steps []models.Step, opts Options) string {
	t.Helper()
	out, err := Compile(steps, opts)
	require.NoError(t, err)
	assertBalanced(t, out)
	return out
}

// assertBalanced checks brackets outside double quoted strings.
func assertBalanced(t *testing.T, src string) {
	t.Helper()
	var stack []rune
	pairs := map[rune]rune{')': '(', '}': '{', ']': '['}
	inString, escaped := false, false
	for _, r := range src {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '(', '{', '[':
			stack = append(stack, r)
		case ')', '}', ']':
			require.NotEmpty(t, stack, "unbalanced %q in:\n%s", r, src)
			require.Equal(t, pairs[r], stack[len(stack)-1], "mismatched %q in:\n%s", r, src)
			stack = stack[:len(stack)-1]
		}
	}
	assert.Empty(t, stack, "unclosed brackets in:\n%s", src)
}

func TestSingleExtraction(t *testing.T) {
	out := compile(t, []models.Step{
		start("https://example.com"),
		extract("h1", 1, ""),
	}, Options{})

	assert.Contains(t, out, `const puppeteer = require("puppeteer");`)
	assert.Contains(t, out, `await page.goto("https://example.com");`)
	assert.Contains(t, out, `await page.waitForSelector("h1");`)
	assert.Contains(t, out, `const element = document.querySelector("h1");`)
	assert.Contains(t, out, `let variable1 = await extractVariable1();`)
	assert.Contains(t, out, `await new Promise((resolve) => setTimeout(resolve, 2000));`)
	assert.Contains(t, out, "let formattedVariable1 = variable1;")
	assert.Contains(t, out, "data = {\n      variable1: formattedVariable1,\n    };")
	assert.Contains(t, out, "fs.writeFileSync(outputFilename, JSON.stringify(data, null, 2));")
	assert.Contains(t, out, "const outputFilename = `./tink-${Date.now()}.json`;")
	assert.NotContains(t, out, "for (const url of urls)")
	assert.NotContains(t, out, "autoScroll")
	assert.NotContains(t, out, "toTitleCase")
}

func TestLoopRegion(t *testing.T) {
	out := compile(t, []models.Step{
		start("https://shop.example.com"),
		navigate("a.item", 10),
		extract("h1.title", 1, "title"),
		extract("li.tag", 4, "tags"),
	}, Options{OutputFilename: "shop.example.com.json"})

	assert.Contains(t, out, `const prompts = require("prompts");`)
	assert.Contains(t, out, `page.evaluate(() => [...document.querySelectorAll("a.item")].map((node) => node.href));`)
	assert.Contains(t, out, "for (const url of urls) {")
	assert.Contains(t, out, "await page.goto(url);")
	assert.Contains(t, out, `document.querySelector("li.tag")`)
	assert.NotContains(t, out, `querySelectorAll("li.tag")`)
	assert.Contains(t, out, "title: formattedTitle,")
	assert.Contains(t, out, "tags: formattedTags,")
	assert.Contains(t, out, "data.push(record);")
	assert.Contains(t, out, `message: "Continue?",`)
	assert.Contains(t, out, `const outputFilename = "shop.example.com.json";`)
	assert.NotContains(t, out, "data = {")
	assert.NotContains(t, out, "page.$$")
}

func TestPaginationLoop(t *testing.T) {
	steps := []models.Step{
		start("https://shop.example.com"),
		navigate("a.item", 10, models.Pagination{NextSelector: "a.next"}, models.CustomAmount{Value: "20"}),
		extract("h1", 1, "title"),
	}

	out := compile(t, steps, Options{Driver: Puppeteer})
	assert.Contains(t, out, `const nextNodes = await page.$$("a.next");`)
	assert.Contains(t, out, "await nextNodes[nextNodes.length - 1].click();")
	assert.Contains(t, out, "for (let pageIndex = 0; pageIndex < 1000; pageIndex++) {")
	assert.Contains(t, out, "if (urls.length >= 20) {")
	assert.Contains(t, out, "urls = urls.slice(0, 20);")
	assert.Contains(t, out, "if (pageUrls[0] === previousFirstUrl) {")
	assert.Contains(t, out, "await new Promise((resolve) => setTimeout(resolve, 4000));")

	out = compile(t, steps, Options{Driver: Playwright})
	assert.Contains(t, out, "await page.waitForTimeout(4000);")
	assert.NotContains(t, out, "setTimeout(resolve")
}

func TestOnlyFirstLoopCounts(t *testing.T) {
	out := compile(t, []models.Step{
		start("https://a.example.com"),
		navigate("a.cat", 3),
		navigate("a.item", 8),
		extract("h1", 1, "title"),
	}, Options{})

	assert.Equal(t, 1, strings.Count(out, "for (const url of urls)"))
	assert.Contains(t, out, `const element = document.querySelector("a.item");`)
	assert.Contains(t, out, "return element ? element.href || null : null;")

	at, ok := LoopStart([]models.Step{start("x"), navigate("a", 3), navigate("b", 8)})
	assert.True(t, ok)
	assert.Equal(t, 2, at)

	_, ok = LoopStart([]models.Step{navigate("a", 3), navigate("b", 1)})
	assert.False(t, ok)
}

func TestManyExtractionAndCustomAmount(t *testing.T) {
	out := compile(t, []models.Step{
		start("https://example.com"),
		extract("li.price", 5, "prices", models.CustomAmount{Value: "3"}),
		extract("li.name", 5, "names", models.CustomAmount{Value: "1"}),
	}, Options{})

	assert.Contains(t, out, `[...document.querySelectorAll("li.price")]`)
	assert.Contains(t, out, ".slice(0, 3)")
	assert.Contains(t, out, `const element = document.querySelector("li.name");`)
	assert.NotContains(t, out, `querySelectorAll("li.name")`)
}

func TestRegexOption(t *testing.T) {
	out := compile(t, []models.Step{
		start("https://example.com"),
		extract("span.price", 1, "price", models.RegexExtract{Pattern: `(\d+)\$`}),
		extract("li.size", 3, "sizes", models.RegexExtract{Pattern: `size (\w+)`}),
	}, Options{})

	assert.Contains(t, out, `matchAll(new RegExp("(\\d+)\\$", "gm"))`)
	assert.Contains(t, out, "formattedPrice = match[1];")
	assert.Contains(t, out, "formattedSizes = formattedSizes.map((value, index) => {")
	assert.Contains(t, out, "return match && match[1] ? match[1] : value;")

	_, err := Compile([]models.Step{
		start("https://example.com"),
		extract("span", 1, "x", models.RegexExtract{Pattern: "(unclosed"}),
	}, Options{})
	assert.NoError(t, err)
}

func TestDriverFlavours(t *testing.T) {
	steps := []models.Step{start("https://example.com"), extract("h1", 1, "")}

	pp := compile(t, steps, Options{Driver: Puppeteer})
	assert.Contains(t, pp, "const browser = await puppeteer.launch({")
	assert.Contains(t, pp, `args: ["--no-sandbox", "--disable-setuid-sandbox", "--disable-dev-shm-usage"],`)
	assert.Contains(t, pp, "defaultViewport: null,")
	assert.Contains(t, pp, "// headless: false,")

	pw := compile(t, steps, Options{Driver: Playwright, Headful: true})
	assert.Contains(t, pw, `const { chromium } = require("playwright");`)
	assert.Contains(t, pw, "const browser = await chromium.launch({")
	assert.Contains(t, pw, "    headless: false,")
	assert.NotContains(t, pw, "puppeteer")

	_, err := Compile(steps, Options{Driver: "selenium"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestInfiniteScrollAndTitleCase(t *testing.T) {
	out := compile(t, []models.Step{
		start("https://example.com"),
		extract("h2", 1, "name", models.InfiniteScroll{}),
	}, Options{})

	assert.Contains(t, out, "async function autoScroll(page) {")
	assert.Contains(t, out, "await autoScroll(page);")
	assert.Contains(t, out, "const toTitleCase = (phrase) => {")
	assert.Contains(t, out, "let formattedName = toTitleCase(name);")
	assert.Less(t, strings.Index(out, "await autoScroll(page);"), strings.Index(out, `querySelector("h2")`))
}

func TestRecordedInteractions(t *testing.T) {
	rec := models.NewStep()
	rec.Action = models.ActionRecord
	rec.RecordedClicksAndKeys = models.Recording{
		models.MouseClick{Selector: "#search"},
		models.KeyInput{Input: `say "hi"`},
	}

	out := compile(t, []models.Step{start("https://example.com"), rec}, Options{})
	assert.Contains(t, out, `await page.waitForSelector("#search");`)
	assert.Contains(t, out, `await page.click("#search");`)
	assert.Contains(t, out, `await page.keyboard.type("say \"hi\"", { delay: 100 });`)
	assert.NotContains(t, out, "fs.writeFileSync")
	assert.NotContains(t, out, `const fs = require("fs");`)
}

func TestDegradedSteps(t *testing.T) {
	unset := models.NewStep()
	noSelector := extract("", 0, "ghost")
	link := navigate("", 0)

	out := compile(t, []models.Step{start("https://example.com"), unset, noSelector, link}, Options{})
	assert.Contains(t, out, "const ghost = undefined;")
	assert.Contains(t, out, `console.warn("Navigation step has no selector");`)
	assert.NotContains(t, out, `waitForSelector("")`)
}

func TestStructuralErrors(t *testing.T) {
	_, err := Compile(nil, Options{})
	assert.ErrorIs(t, err, models.ErrNoSteps)

	_, err = Compile([]models.Step{models.NewStep()}, Options{})
	assert.ErrorIs(t, err, models.ErrMissingStartURL)
}

func TestVariableNamesDoNotCollide(t *testing.T) {
	out := compile(t, []models.Step{
		start("https://example.com"),
		extract("h1", 1, "price"),
		extract("h2", 1, "price"),
		extract("h3", 1, "unit price"),
		extract("h4", 1, "page"),
	}, Options{})

	assert.Contains(t, out, "let price = await extractPrice();")
	assert.Contains(t, out, "let price2 = await extractPrice2();")
	assert.Contains(t, out, "let unitPrice = await extractUnitPrice();")
	assert.Contains(t, out, "let variable4 = await extractVariable4();")
	assert.Contains(t, out, "price: formattedPrice,")
	assert.Contains(t, out, "price2: formattedPrice2,")
	assert.Contains(t, out, `"unit price": formattedUnitPrice,`)
	assert.Contains(t, out, "page: formattedVariable4,")
}

func TestCompileIsDeterministic(t *testing.T) {
	steps := []models.Step{
		start("https://shop.example.com"),
		navigate("a.item", 10, models.Pagination{NextSelector: "a.next"}),
		extract("h1", 1, "title", models.RegexExtract{Pattern: "(.*)"}),
	}
	a := compile(t, steps, Options{})
	b := compile(t, steps, Options{})
	assert.Equal(t, a, b)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "a\n\nb\n", Format("\n\na  \n\n\n\nb\t\n\n"))
	assert.Equal(t, "\n", Format(""))
}

func TestCheck(t *testing.T) {
	require.NoError(t, Check("const a = [1, 2];\nconsole.log(a);\n"))

	err := Check("const a = ;\n")
	assert.ErrorIs(t, err, ErrInvalidScript)
	assert.Contains(t, err.Error(), "line 1")

	for _, d := range Drivers() {
		src := compile(t, []models.Step{start("https://shop.example.com"), navigate("a.item", 5), extract("h1", 1, "name")}, Options{Driver: d})
		assert.NoError(t, Check(src), d)
	}
}

func TestParseDriver(t *testing.T) {
	d, err := ParseDriver("")
	require.NoError(t, err)
	assert.Equal(t, Puppeteer, d)

	d, err = ParseDriver(" Playwright ")
	require.NoError(t, err)
	assert.Equal(t, Playwright, d)

	assert.Equal(t, []Driver{Playwright, Puppeteer}, Drivers())
}
