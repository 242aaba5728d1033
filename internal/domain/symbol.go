package domain

import "math/rand"

const symbolLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateSymbols produces n unique random 3-letter uppercase stock
// codes. Symbols are generated by the exchange at startup, never chosen
// by callers.
func GenerateSymbols(n int, rnd *rand.Rand) []string {
	seen := make(map[string]bool, n)
	symbols := make([]string, 0, n)
	for len(symbols) < n {
		b := make([]byte, 3)
		for i := range b {
			b[i] = symbolLetters[rnd.Intn(len(symbolLetters))]
		}
		code := string(b)
		if seen[code] {
			continue
		}
		seen[code] = true
		symbols = append(symbols, code)
	}
	return symbols
}
