package recorder

import (
	"encoding/json"
	"fmt"
	"tinking/backend/internal/dom"
)

// captureScript installs window.__tinking on the live page. It queues
// pointer and keyboard events with the element path of their target,
// flags DOM mutations, and mirrors the editor's highlight.
var captureScript = `
(function() {
	if (window.__tinking) return;

	const marker = '` + dom.MarkerClass + `';
	const state = { events: [], dirty: false, intercept: false, hovered: null, marked: [] };

	const pathOf = function(el) {
		const path = [];
		while (el && el !== document.documentElement) {
			const parent = el.parentElement;
			if (!parent) return null;
			path.unshift(Array.prototype.indexOf.call(parent.children, el));
			el = parent;
		}
		return el ? path : null;
	};

	const elementAt = function(path) {
		let el = document.documentElement;
		for (const i of path) {
			if (!el) return null;
			el = el.children[i];
		}
		return el || null;
	};

	const push = function(type, target, key) {
		const path = pathOf(target);
		if (path) state.events.push({ type: type, path: path, key: key || '' });
	};

	const style = document.createElement('style');
	style.textContent = '.' + marker + ' { outline: 2px solid #e6007e !important; background-color: rgba(230, 0, 126, 0.12) !important; }';
	(document.head || document.documentElement).appendChild(style);

	document.addEventListener('mousemove', function(e) {
		if (e.target === state.hovered) return;
		state.hovered = e.target;
		push('mousemove', e.target);
	}, true);

	document.addEventListener('click', function(e) {
		if (state.intercept) {
			e.preventDefault();
			e.stopPropagation();
		}
		push('click', e.target);
	}, true);

	document.addEventListener('keydown', function(e) {
		push('keydown', e.target, e.key);
	}, true);

	new MutationObserver(function() { state.dirty = true; })
		.observe(document.documentElement, { childList: true, subtree: true, characterData: true });

	window.__tinking = {
		drain: function(intercept, marks) {
			state.intercept = intercept;
			state.marked.forEach(function(el) { el.classList.remove(marker); });
			state.marked = marks.map(elementAt).filter(Boolean);
			state.marked.forEach(function(el) { el.classList.add(marker); });
			const out = { dirty: state.dirty, events: state.events };
			state.dirty = false;
			state.events = [];
			return out;
		},
		snapshot: function() {
			const clone = document.documentElement.cloneNode(true);
			clone.querySelectorAll('.' + marker).forEach(function(el) { el.classList.remove(marker); });
			return clone.outerHTML;
		}
	};
})();
`

// drainExpr builds the expression the poller evaluates on every tick. A
// page that lost the script, after a navigation, reports itself missing.
func drainExpr(intercept bool, marks [][]int) (string, error) {
	if marks == nil {
		marks = [][]int{}
	}
	raw, err := json.Marshal(marks)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`window.__tinking ? window.__tinking.drain(%t, %s) : ({ missing: true, dirty: true, events: [] })`, intercept, raw), nil
}

const snapshotExpr = `window.__tinking ? window.__tinking.snapshot() : document.documentElement.outerHTML`
