package constants

// InvoiceKeywords is the bilingual (Spanish/English) keyword list used
// by the text invoice-likelihood heuristic. A match on any keyword plus
// a numeric run of two or more digits marks content as worth sending to
// the extraction gateway.
var InvoiceKeywords = []string{
	"factura", "invoice", "ruc", "total", "subtotal", "igv", "tax",
	"fecha", "date", "cliente", "customer", "proveedor", "supplier",
	"numero", "number", "boleta", "receipt", "comprobante",
}

// WhatsAppPrefixes are the media prefixes of the WhatsApp export naming
// convention <PREFIX>-YYYYMMDD-WA####.
var WhatsAppPrefixes = []string{"IMG", "VID", "AUD", "DOC", "PTT"}
