package draw

import (
	"fmt"
	"strings"
)

var ones = []string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}

var teens = []string{"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen", "seventeen", "eighteen", "nineteen"}

var tens = []string{"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety"}

// Announcement renders the spoken confirmation for a called number, in the
// housie caller style: single digits get the short "single number" form,
// larger numbers are read digit by digit, then in full, then repeated.
// Out-of-range input yields the empty string so callers can skip audio and
// keep the numeric draw.
func Announcement(number int) string {
	if number < 1 || number > MaxNumber {
		return ""
	}
	if number < 10 {
		return fmt.Sprintf("Single number %s.", numberWords(number))
	}
	phrase := fmt.Sprintf("%s, %s", digitWords(number), numberWords(number))
	text := fmt.Sprintf("%s. I repeat, %s.", phrase, phrase)
	return strings.ToUpper(text[:1]) + text[1:]
}

// numberWords spells a number in [1, 99] in full ("forty seven").
func numberWords(number int) string {
	switch {
	case number < 10:
		return ones[number]
	case number < 20:
		return teens[number-10]
	default:
		if number%10 == 0 {
			return tens[number/10]
		}
		return tens[number/10] + " " + ones[number%10]
	}
}

// digitWords spells a number digit by digit ("four seven").
func digitWords(number int) string {
	s := fmt.Sprintf("%d", number)
	words := make([]string, 0, len(s))
	for _, d := range s {
		words = append(words, ones[d-'0'])
	}
	return strings.Join(words, " ")
}
