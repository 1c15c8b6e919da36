package ui

// Markers for status lines.
const (
	SymbolSuccess = "✓"
	SymbolFail    = "✗"
	SymbolWarning = "⚠"

	// Prefixes used by the text reporter.
	MarkNotice = ">>>"
	MarkBlock  = "==="
)
