package compiler

import "fmt"

const titleCaseHelper = `
const toTitleCase = (phrase) => {
  if (!phrase) {
    return null;
  }
  return phrase
    .toLowerCase()
    .split(" ")
    .map((word) => word.charAt(0).toUpperCase() + word.slice(1))
    .join(" ");
};
`

const autoScrollHelper = `
async function autoScroll(page) {
  await page.evaluate(async () => {
    await new Promise((resolve) => {
      let totalHeight = 0;
      const distance = 100;
      const timer = setInterval(() => {
        const scrollHeight = document.body.scrollHeight;
        window.scrollBy(0, distance);
        totalHeight += distance;
        if (totalHeight >= scrollHeight) {
          clearInterval(timer);
          resolve();
        }
      }, 100);
    });
  });
}
`

const flattenText = `element.textContent.replace(/(\r\n|\n|\r)/gm, "").trim()`

type renderer struct {
	w      *writer
	be     backend
	timing Timing
}

func render(p *Program, be backend, opts Options) string {
	r := &renderer{w: &writer{}, be: be, timing: opts.timing()}
	w := r.w

	for _, imp := range be.imports() {
		w.line(imp)
	}
	if hasLoop(p.Body) {
		w.line(`const ProgressBar = require("progress");`)
		w.line(`const prompts = require("prompts");`)
	}
	if p.HasData {
		w.line(`const fs = require("fs");`)
	}
	if p.Helpers.TitleCase {
		w.block(titleCaseHelper)
	}
	if p.Helpers.AutoScroll {
		w.block(autoScrollHelper)
	}
	w.blank()

	w.open("(async () => {")
	be.launch(w, opts.Headful)
	w.line("let data;")
	w.open("try {")
	if p.HasData {
		if p.OutputFilename != "" {
			w.linef("const outputFilename = %s;", js(p.OutputFilename))
		} else {
			w.line("const outputFilename = `./tink-${Date.now()}.json`;")
		}
	}
	w.line("const page = await browser.newPage();")
	w.line("page.setDefaultNavigationTimeout(0);")
	w.linef("await page.goto(%s);", js(p.StartURL))
	for _, s := range p.Body {
		w.blank()
		r.stmt(s)
	}
	if p.HasData {
		w.blank()
		if !hasLoop(p.Body) {
			r.object("data =", p.Collect)
			w.line("console.log(data);")
		}
		w.line("fs.writeFileSync(outputFilename, JSON.stringify(data, null, 2));")
		w.line("console.log(`Data written to ${outputFilename}`);")
	}
	w.line("await browser.close();")
	w.mid("} catch (e) {")
	w.line("await browser.close();")
	w.line("throw e;")
	w.close("}")
	w.close("})();")
	return w.String()
}

func hasLoop(body []Stmt) bool {
	for _, s := range body {
		if _, ok := s.(Loop); ok {
			return true
		}
	}
	return false
}

func (r *renderer) stmt(s Stmt) {
	switch st := s.(type) {
	case WaitForSelector:
		r.softWait(st.Selector)
	case FollowLink:
		r.followLink(st)
	case AutoScroll:
		r.w.line("await autoScroll(page);")
	case Extract:
		r.extract(st)
	case Click:
		r.w.linef("await page.waitForSelector(%s);", js(st.Selector))
		r.w.linef("await page.click(%s);", js(st.Selector))
	case TypeText:
		r.w.linef("await page.keyboard.type(%s, { delay: %d });", js(st.Text), r.timing.KeyDelay.Milliseconds())
	case Loop:
		r.loop(st)
	default:
		panic(fmt.Sprintf("compiler: unhandled statement %T", s))
	}
}

func (r *renderer) softWait(sel string) {
	w := r.w
	w.open("try {")
	w.linef("await page.waitForSelector(%s);", js(sel))
	w.mid("} catch (e) {")
	w.linef("console.warn(%s);", js("Couldn't find "+sel))
	w.close("}")
}

func (r *renderer) followLink(st FollowLink) {
	w := r.w
	if st.Selector == "" {
		w.line(`console.warn("Navigation step has no selector");`)
		return
	}
	w.open("{")
	w.open("const url = await page.evaluate(() => {")
	w.linef("const element = document.querySelector(%s);", js(st.Selector))
	w.line("return element ? element.href || null : null;")
	w.close("});")
	w.open("if (url) {")
	w.line("await page.goto(url);")
	w.mid("} else {")
	w.linef("console.warn(%s);", js("No link found for "+st.Selector))
	w.close("}")
	w.close("}")
}

func propertyExpr(p Property) string {
	switch p {
	case PropHref:
		return "element.href || null"
	case PropSrc:
		return "element.src || null"
	}
	return flattenText
}

func (r *renderer) extract(ex Extract) {
	w := r.w
	switch {
	case ex.Selector == "" && ex.Many:
		w.linef("const %s = [];", ex.Var)
	case ex.Selector == "":
		w.linef("const %s = undefined;", ex.Var)
	case ex.Many:
		w.openf("const %s = await page.evaluate(() =>", ex.Var)
		w.linef("[...document.querySelectorAll(%s)]", js(ex.Selector))
		w.depth++
		w.linef(".map((element) => %s)", propertyExpr(ex.Prop))
		if ex.Limit > 0 {
			w.linef(".slice(0, %d)", ex.Limit)
		}
		w.depth--
		w.close(");")
	default:
		extractor := extractorName(ex.Var)
		w.openf("const %s = () =>", extractor)
		w.open("page.evaluate(() => {")
		w.linef("const element = document.querySelector(%s);", js(ex.Selector))
		w.linef("return element ? %s : null;", propertyExpr(ex.Prop))
		w.close("});")
		w.depth--
		w.linef("let %s = await %s();", ex.Var, extractor)
		if ex.Retry {
			w.openf(`if (%s === null || %s === "") {`, ex.Var, ex.Var)
			w.line(r.be.sleep(r.timing.RetryDelay.Milliseconds()))
			w.linef("%s = await %s();", ex.Var, extractor)
			w.close("}")
		}
	}

	switch {
	case ex.TitleCase && ex.Many:
		w.linef("let %s = %s.map((value) => toTitleCase(value));", ex.Formatted, ex.Var)
	case ex.TitleCase:
		w.linef("let %s = toTitleCase(%s);", ex.Formatted, ex.Var)
	default:
		w.linef("let %s = %s;", ex.Formatted, ex.Var)
	}

	if !ex.HasRegex {
		return
	}
	pattern := js(ex.Regex)
	if ex.Many {
		w.openf("%s = %s.map((value, index) => {", ex.Formatted, ex.Formatted)
		w.open("try {")
		w.linef(`const match = [...String(%s[index] ?? "").matchAll(new RegExp(%s, "gm"))][0];`, ex.Var, pattern)
		w.line("return match && match[1] ? match[1] : value;")
		w.mid("} catch (e) {")
		w.line("return value;")
		w.close("}")
		w.close("});")
		return
	}
	w.open("try {")
	w.linef(`const match = [...String(%s ?? "").matchAll(new RegExp(%s, "gm"))][0];`, ex.Var, pattern)
	w.open("if (match && match[1]) {")
	w.linef("%s = match[1];", ex.Formatted)
	w.close("}")
	w.mid("} catch (e) {")
	w.linef("console.warn(%s);", js("Invalid regex for "+ex.Var))
	w.close("}")
}

func (r *renderer) loop(lp Loop) {
	w := r.w
	sel := js(lp.Selector)

	w.open("const extractUrls = () =>")
	w.linef("page.evaluate(() => [...document.querySelectorAll(%s)].map((node) => node.href));", sel)
	w.depth--
	r.softWait(lp.Selector)
	if lp.Scroll {
		w.line("await autoScroll(page);")
	}
	w.line("let urls = await extractUrls();")

	if lp.Pagination != nil {
		w.line(`console.log("Extracting URLs");`)
		w.line("let previousFirstUrl = urls[0];")
		w.openf("for (let pageIndex = 0; pageIndex < %d; pageIndex++) {", r.timing.MaxPages)
		if lp.Limit > 0 {
			w.openf("if (urls.length >= %d) {", lp.Limit)
			w.line("break;")
			w.close("}")
		}
		w.linef("const nextNodes = await page.$$(%s);", js(lp.Pagination.Next))
		w.open("if (nextNodes.length === 0) {")
		w.line("break;")
		w.close("}")
		w.line("await nextNodes[nextNodes.length - 1].click();")
		w.line(r.be.sleep(r.timing.PageDelay.Milliseconds()))
		w.open("try {")
		w.linef("await page.waitForSelector(%s);", sel)
		w.mid("} catch (e) {")
		w.line("break;")
		w.close("}")
		w.line("let pageUrls = await extractUrls();")
		w.open("if (pageUrls[0] === previousFirstUrl) {")
		w.line(r.be.sleep(r.timing.PageDelay.Milliseconds()))
		w.line("pageUrls = await extractUrls();")
		w.open("if (pageUrls[0] === previousFirstUrl) {")
		w.line("break;")
		w.close("}")
		w.close("}")
		w.line("previousFirstUrl = pageUrls[0];")
		w.line("urls = urls.concat(pageUrls);")
		w.close("}")
	}
	if lp.Limit > 0 {
		w.linef("urls = urls.slice(0, %d);", lp.Limit)
	}

	w.line(`console.log("Found " + urls.length + " urls.");`)
	w.open(`const bar = new ProgressBar(" scraping [:bar] :rate/bps :percent :etas", {`)
	w.line(`complete: "=",`)
	w.line(`incomplete: " ",`)
	w.line("width: 20,")
	w.line("total: urls.length,")
	w.close("});")
	w.line("data = [];")
	w.line("let promptContinue = false;")
	w.open("for (const url of urls) {")
	w.line("await page.goto(url);")
	for _, s := range lp.Body {
		w.blank()
		r.stmt(s)
	}
	w.blank()
	r.object("const record =", lp.Record)
	w.line("console.log(record);")
	w.open("if (!promptContinue) {")
	w.open("const response = await prompts({")
	w.line(`type: "confirm",`)
	w.line(`name: "value",`)
	w.line(`message: "Continue?",`)
	w.line("initial: true,")
	w.close("});")
	w.open("if (!response.value) {")
	w.line("break;")
	w.close("}")
	w.line("promptContinue = true;")
	w.close("}")
	w.line("data.push(record);")
	w.line("bar.tick();")
	w.close("}")
}

// object prints "<prefix> { key: value, ... };".
func (r *renderer) object(prefix string, fields []Field) {
	w := r.w
	if len(fields) == 0 {
		w.linef("%s {};", prefix)
		return
	}
	w.openf("%s {", prefix)
	for _, f := range fields {
		w.linef("%s: %s,", propertyKey(f.Key), f.Value)
	}
	w.close("};")
}
