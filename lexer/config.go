package lexer

// SyntaxConfig holds the delimiters for template syntax.
type SyntaxConfig struct {
	BlockStart   string
	BlockEnd     string
	VarStart     string
	VarEnd       string
	CommentStart string
	CommentEnd   string
}

// DefaultSyntax returns the standard Jinja-style delimiters.
func DefaultSyntax() SyntaxConfig {
	return SyntaxConfig{
		BlockStart:   "{%",
		BlockEnd:     "%}",
		VarStart:     "{{",
		VarEnd:       "}}",
		CommentStart: "{#",
		CommentEnd:   "#}",
	}
}

// WhitespaceConfig holds whitespace handling configuration.
type WhitespaceConfig struct {
	KeepTrailingNewline bool
	LstripBlocks        bool
	TrimBlocks          bool
}

// DefaultWhitespace returns the default whitespace configuration.
func DefaultWhitespace() WhitespaceConfig {
	return WhitespaceConfig{
		KeepTrailingNewline: false,
		LstripBlocks:        false,
		TrimBlocks:          false,
	}
}
