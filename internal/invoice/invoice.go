package invoice

import "encoding/json"

// Field names a header field extracted from invoice text
type Field string

const (
	VendorName    Field = "Vendor Name"
	InvoiceDate   Field = "Invoice Date"
	InvoiceNumber Field = "Invoice Number"
	TotalAmount   Field = "Total Amount"
)

// NotFound is the value recorded for a field no rule could locate
const NotFound = "Not Found"

// AllFields lists every header field in output order
var AllFields = []Field{VendorName, InvoiceDate, InvoiceNumber, TotalAmount}

// Row is an ordered sequence of cell strings
type Row []string

// Table is an ordered sequence of rows. Rows may differ in length.
type Table []Row

// Fields maps each header field to its extracted value or NotFound
type Fields map[Field]string

// NewFields creates a Fields record with every field set to NotFound
func NewFields() Fields {
	f := make(Fields, len(AllFields))
	for _, name := range AllFields {
		f[name] = NotFound
	}
	return f
}

// Found reports whether the field holds an extracted value
func (f Fields) Found(name Field) bool {
	v, ok := f[name]
	return ok && v != NotFound
}

// Result is the assembled output for one document
type Result struct {
	Fields Fields  `json:"Invoice Details"`
	Tables []Table `json:"Tables"`
}

// NewResult creates a Result, normalizing missing fields and nil tables
func NewResult(fields Fields, tables []Table) *Result {
	normalized := NewFields()
	for k, v := range fields {
		if v == "" {
			continue
		}
		normalized[k] = v
	}
	if tables == nil {
		tables = []Table{}
	}
	return &Result{Fields: normalized, Tables: tables}
}

// MarshalJSON always emits Tables as an array
func (r *Result) MarshalJSON() ([]byte, error) {
	type alias Result
	out := alias(*r)
	if out.Tables == nil {
		out.Tables = []Table{}
	}
	if out.Fields == nil {
		out.Fields = NewFields()
	}
	return json.Marshal(out)
}
