package intent

import (
	"strings"
	"unicode"
)

// Symbol density above which a line is considered code or log output.
const codeSymbolDensity = 0.3

// Prefixes that mark a line as code or log output regardless of density.
var codeTokenPrefixes = []string{
	"func ", "def ", "class ", "import ", "from ", "package ",
	"const ", "var ", "let ", "return ", "#include", "//", "/*", "*/",
	"$ ", ">>> ", "at ", "panic:", "goroutine ", "Traceback",
	"ERROR", "WARN", "DEBUG", "INFO", "TRACE", "FATAL",
	"{", "}", "[", "<", "---", "+++", "@@",
}

// CleanText strips lines that look like code or log output and lines
// under minLineLength, keeping the prose a human was actually reading.
func CleanText(text string, minLineLength int) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len([]rune(line)) < minLineLength {
			continue
		}
		if looksLikeCode(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func looksLikeCode(line string) bool {
	for _, prefix := range codeTokenPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}

	symbols := 0
	total := 0
	for _, r := range line {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			symbols++
		}
	}
	if total == 0 {
		return false
	}
	return float64(symbols)/float64(total) > codeSymbolDensity
}

// readableFraction returns the fraction of runes that are word
// characters (letters including CJK ideographs, digits, underscore),
// whitespace, or common punctuation. OCR garbage scores low on this.
func readableFraction(s string) float64 {
	if s == "" {
		return 0
	}
	readable := 0
	total := 0
	for _, r := range s {
		total++
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			readable++
		case unicode.IsSpace(r):
			readable++
		case strings.ContainsRune(`.,!?;:'"()-/@#$%&+=`, r):
			readable++
		}
	}
	return float64(readable) / float64(total)
}
