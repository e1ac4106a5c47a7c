package compiler

// Program is a lowered recipe, independent of the target browser driver.
type Program struct {
	StartURL       string
	OutputFilename string
	Body           []Stmt
	// Collect is the aggregate written when the recipe has no loop.
	Collect []Field
	HasData bool
	Helpers Helpers
}

// Helpers lists the support functions the script needs.
type Helpers struct {
	AutoScroll bool
	TitleCase  bool
}

// Stmt is one statement of the generated script.
type Stmt interface {
	stmt()
}

// WaitForSelector waits for selector and only logs when it never shows up.
type WaitForSelector struct {
	Selector string
}

// FollowLink navigates to the href of the first match.
type FollowLink struct {
	Selector string
}

type AutoScroll struct{}

type Property int

const (
	PropText Property = iota
	PropHref
	PropSrc
)

// Extract reads Prop from the matches of Selector into Var, then derives
// Formatted from it.
type Extract struct {
	Var       string
	Formatted string
	Selector  string
	Prop      Property
	Many      bool
	// Limit truncates a Many extraction; 0 keeps every match.
	Limit int
	// Retry re-runs a single extraction once after a delay when it came
	// back empty.
	Retry     bool
	Regex     string
	HasRegex  bool
	TitleCase bool
}

type Click struct {
	Selector string
}

type TypeText struct {
	Text string
}

// Loop visits every URL collected from Selector and builds one record per
// page from Record.
type Loop struct {
	Selector   string
	Pagination *Pagination
	Limit      int
	Scroll     bool
	Body       []Stmt
	Record     []Field
}

// Pagination walks result pages by clicking the last Next control.
type Pagination struct {
	Next string
}

// Field maps an output key to the script variable holding its value.
type Field struct {
	Key   string
	Value string
}

func (WaitForSelector) stmt() {}
func (FollowLink) stmt()      {}
func (AutoScroll) stmt()      {}
func (Extract) stmt()         {}
func (Click) stmt()           {}
func (TypeText) stmt()        {}
func (Loop) stmt()            {}
