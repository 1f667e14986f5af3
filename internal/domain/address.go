package domain

// address.go — validación de direcciones y helpers de enmascarado para logs.

import "strings"

// IsHexAddress reports whether s is a 0x wallet address (42 chars, hex body).
func IsHexAddress(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// MaskAddress returns a short form for logging (0x1234...abcd).
func MaskAddress(addr string) string {
	if len(addr) < 10 {
		return "***"
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
