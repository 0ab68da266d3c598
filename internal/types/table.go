package types

// Field is one header/value pair of a table row record.
type Field struct {
	Header string `json:"header"`
	Value  string `json:"value"`
}

// TableRow is a body row of a MetricsTable. Fields has exactly one entry per
// header, in header order; Cells keeps the raw cell texts in document order.
type TableRow struct {
	Fields []Field  `json:"fields"`
	Cells  []string `json:"cells"`
}

// Get returns the value of the first field with the given header.
func (r TableRow) Get(header string) (string, bool) {
	for _, f := range r.Fields {
		if f.Header == header {
			return f.Value, true
		}
	}
	return "", false
}

// MetricsTable is a header row plus body rows extracted from a view.
type MetricsTable struct {
	Headers []string   `json:"headers"`
	Rows    []TableRow `json:"rows"`
}

// HeaderIndex returns the position of the first header equal to name, or -1.
func (t *MetricsTable) HeaderIndex(name string) int {
	for i, h := range t.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

// NewTableRow zips cells positionally with headers. The result always has
// len(headers) fields; missing cells map to "".
func NewTableRow(headers, cells []string) TableRow {
	fields := make([]Field, len(headers))
	for i, h := range headers {
		fields[i].Header = h
		if i < len(cells) {
			fields[i].Value = cells[i]
		}
	}
	return TableRow{Fields: fields, Cells: cells}
}

// Quote is one entry extracted from the quotes demo site.
type Quote struct {
	Text   string `json:"quote"`
	Author string `json:"author"`
}

// PageSummary is the generic extraction for unknown sites.
type PageSummary struct {
	Title      string   `json:"title"`
	Headings   []string `json:"headings"`
	Paragraphs []string `json:"paragraphs"`
}
