package rule

func IsWhitespace(r rune) bool {
	for _, ws := range Whitespaces {
		if r == rune(ws) {
			return true
		}
	}
	return false
}

func IsAlpha(r rune) bool { return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') }
func IsDigit(r rune) bool { return '0' <= r && r <= '9' }
func IsHexDigit(r rune) bool {
	return IsDigit(r) || ('a' <= r && r <= 'f') || ('A' <= r && r <= 'F')
}

// IsNumber reports whether s is a non-empty run of decimal digits.
func IsNumber(s string) bool { return isAll(s, IsDigit) }

// IsHexNumber reports whether s is a non-empty run of hex digits.
func IsHexNumber(s string) bool { return isAll(s, IsHexDigit) }

func isAll(s string, fn func(rune) bool) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !fn(r) {
			return false
		}
	}
	return true
}

func lower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// IndexFold returns the index of the first ASCII case-insensitive
// occurrence of sep in s, or -1.
func IndexFold(s, sep []byte) int {
	n := len(sep)
	if n == 0 {
		return 0
	}
	for i := 0; i+n <= len(s); i++ {
		j := 0
		for ; j < n; j++ {
			if lower(s[i+j]) != lower(sep[j]) {
				break
			}
		}
		if j == n {
			return i
		}
	}
	return -1
}

// ContainsFold reports whether substr is within s, ignoring ASCII case.
func ContainsFold(s, substr string) bool {
	return IndexFold([]byte(s), []byte(substr)) >= 0
}
