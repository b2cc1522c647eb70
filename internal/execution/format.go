package execution

import (
	"fmt"
	"math/big"
)

// Pluralize renders "1 vote" or "5 votes".
func Pluralize(count *big.Int, singular, plural string) string {
	if count == nil {
		count = new(big.Int)
	}
	word := plural
	if count.Cmp(big.NewInt(1)) == 0 {
		word = singular
	}
	return fmt.Sprintf("%s %s", count.String(), word)
}
