package extract

// TextResult is the outcome of preparing a text or text-based PDF file
// for the extraction gateway.
type TextResult struct {
	Success            bool
	Content            string
	ContentLength      int
	IsPotentialInvoice bool
	RequiresOCR        bool
	Err                string
}

// ImageResult is the outcome of preparing an image for the gateway:
// validated, downscaled when oversized, re-encoded as base64.
type ImageResult struct {
	Success   bool
	ImageData string // base64 of the encoded image bytes
	Format    string
	Width     int
	Height    int
	Err       string
}

// PDFAnalysis summarizes the text-vs-scanned sampling of a PDF.
type PDFAnalysis struct {
	TotalPages      int
	PagesChecked    int
	TotalCharacters int
	AvgCharsPerPage float64
	PagesWithText   int
	TextPageRatio   float64
	IsTextBased     bool
}
