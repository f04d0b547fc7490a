package parse

// Detection is one recognized text line on a page.
type Detection struct {
	Text       string    `json:"text" yaml:"text"`
	Confidence float64   `json:"confidence" yaml:"confidence"`
	Box        [4][2]int `json:"box" yaml:"box"` // clockwise from top-left, page image pixels
}

// PageResult holds one page's lines.
type PageResult struct {
	Page       int         `json:"page" yaml:"page"`
	Text       string      `json:"text" yaml:"text"`
	Boxes      []Detection `json:"boxes" yaml:"boxes"`
	TextBlocks int         `json:"text_blocks" yaml:"text_blocks"`
}

// Metadata describes a successfully parsed document.
type Metadata struct {
	FileSize        int64        `json:"file_size" yaml:"file_size"`
	Pages           int          `json:"pages" yaml:"pages"`
	Parser          string       `json:"parser" yaml:"parser"`
	TotalTextBlocks int          `json:"total_text_blocks" yaml:"total_text_blocks"`
	PageDetails     []PageResult `json:"page_details" yaml:"page_details"`
}

// DocumentResult is the JSON document printed for every run.
// Content and Metadata are set on success, Error on failure; the others are null.
type DocumentResult struct {
	FileName string    `json:"file_name,omitempty" yaml:"file_name,omitempty"`
	FilePath string    `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	Content  *string   `json:"content" yaml:"content"`
	Metadata *Metadata `json:"metadata" yaml:"metadata"`
	Success  bool      `json:"success" yaml:"success"`
	Error    *string   `json:"error" yaml:"error"`
}

// Outcome is the result of parsing one document: a DocumentResult plus,
// on failure, the classified error it was rendered from.
type Outcome struct {
	Document DocumentResult
	Err      *Error
}

// OK reports whether parsing succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Succeeded wraps a successful document.
func Succeeded(doc DocumentResult) Outcome {
	return Outcome{Document: doc}
}
