package dialog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"carevox/pkg/util"
)

var (
	numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	clockRe  = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?)?(?:\s|$|[,.;!?])`)
)

var unitWords = map[string]int{
	"zero": 0, "oh": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11,
	"twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15, "sixteen": 16,
	"seventeen": 17, "eighteen": 18, "nineteen": 19,
}

var tensWords = map[string]int{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

// words lower-cases s and splits it into letter/digit runs. Apostrophes stay
// inside words and hyphens separate them.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func hasWord(s string, want ...string) bool {
	for _, w := range words(s) {
		for _, x := range want {
			if w == x {
				return true
			}
		}
	}
	return false
}

// IsNegative reports an explicit rejection ("no", "not right", "wrong").
func IsNegative(s string) bool {
	return hasWord(s, "no", "nope", "nah", "not", "wrong", "incorrect", "don't", "dont")
}

func IsAffirmative(s string) bool {
	return hasWord(s, "yes", "yeah", "yep", "yup", "sure", "correct", "right", "ok", "okay")
}

// ParseNumber finds the first number in s. Digits win; otherwise simple
// spoken numbers are understood ("one hundred and twenty", "one forty five",
// "six and a half"). A leading minus is kept so range checks see it.
// Sequences with no single reading, such as "one two", are rejected.
func ParseNumber(s string) (float64, bool) {
	if loc := numberRe.FindStringIndex(s); loc != nil {
		m := s[loc[0]:loc[1]]
		// A hyphen joined to a word ("blood-5") is not a sign.
		if m[0] == '-' && loc[0] > 0 && isWordByte(s[loc[0]-1]) {
			m = m[1:]
		}
		v, err := strconv.ParseFloat(m, 64)
		return v, err == nil
	}
	return parseNumberWords(words(s))
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func parseNumberWords(ws []string) (float64, bool) {
	var (
		// total holds thousands, hund the hundreds of the current group and
		// low the part below a hundred.
		total, hund, low int
		// unitTaken is set once low has its ones digit.
		unitTaken bool
		frac      float64
		seen, neg bool
	)
	result := func() (float64, bool) {
		v := float64(total+hund+low) + frac
		if neg {
			v = -v
		}
		return v, true
	}

	for i := 0; i < len(ws); i++ {
		w := ws[i]

		if v, ok := unitWords[w]; ok && w != "oh" {
			switch {
			case v >= 10:
				// A teen after a lone unit is a digit group: "one fifteen".
				if low != 0 && (low > 9 || hund != 0) {
					return 0, false
				}
				if low != 0 {
					hund, low = low*100, 0
				}
				low, unitTaken = v, true
			case unitTaken:
				return 0, false
			default:
				low += v
				unitTaken = true
			}
			seen = true
			continue
		}
		if v, ok := tensWords[w]; ok {
			// A tens word after a lone unit is a digit group: "one forty".
			if low != 0 && (low > 9 || hund != 0) {
				return 0, false
			}
			if low != 0 {
				hund = low * 100
			}
			low, unitTaken = v, false
			seen = true
			continue
		}

		switch w {
		case "a", "and":
			continue
		case "minus", "negative":
			if seen {
				return result()
			}
			neg = true
		case "hundred":
			n := hund + low
			if n == 0 {
				n = 1
			}
			hund, low, unitTaken = n*100, 0, false
			seen = true
		case "thousand":
			n := hund + low
			if n == 0 {
				n = 1
			}
			total += n * 1000
			hund, low, unitTaken = 0, 0, false
			seen = true
		case "half":
			if seen {
				frac = 0.5
			}
		case "point":
			if !seen {
				continue
			}
			var digits strings.Builder
			for i+1 < len(ws) {
				v, ok := unitWords[ws[i+1]]
				if !ok || v > 9 {
					break
				}
				digits.WriteByte(byte('0' + v))
				i++
			}
			if digits.Len() > 0 {
				frac, _ = strconv.ParseFloat("0."+digits.String(), 64)
			}
			return result()
		default:
			if seen {
				return result()
			}
		}
	}

	if !seen {
		return 0, false
	}
	return result()
}

// ExtractDigits collects every digit in s, including spoken digits
// ("three one zero" gives "310").
func ExtractDigits(s string) string {
	var b strings.Builder
	for _, w := range words(s) {
		if v, ok := unitWords[w]; ok && v < 10 {
			b.WriteByte(byte('0' + v))
			continue
		}
		if w == "o" {
			b.WriteByte('0')
			continue
		}
		for _, r := range w {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// FormatPhone renders the first ten digits as XXX-XXX-XXXX.
func FormatPhone(digits string) string {
	return digits[:3] + "-" + digits[3:6] + "-" + digits[6:10]
}

// SpellPhone reads the first ten digits back one at a time in 3-3-4 groups.
func SpellPhone(digits string) string {
	group := func(s string) string {
		return strings.Join(strings.Split(s, ""), ", ")
	}
	return group(digits[:3]) + ", " + group(digits[3:6]) + ", " + group(digits[6:10])
}

var partsOfDay = []struct {
	at      string
	phrases []string
}{
	{"08:00", []string{"morning", "breakfast"}},
	{"14:00", []string{"noon", "afternoon", "lunch"}},
	{"18:00", []string{"evening", "dinner"}},
	{"22:00", []string{"night", "bedtime"}},
}

// ParseTimes extracts medication times from an answer. Both parts of the day
// ("morning and bedtime") and clock times ("8 pm", "20:30") are understood.
// The result is sorted and free of duplicates; nil means nothing was
// recognized.
func ParseTimes(s string) []string {
	lower := strings.ToLower(s)

	var out []string
	for _, p := range partsOfDay {
		for _, phrase := range p.phrases {
			if strings.Contains(lower, phrase) {
				out = append(out, p.at)
				break
			}
		}
	}

	for _, m := range clockRe.FindAllStringSubmatch(lower, -1) {
		if m[2] == "" && m[3] == "" {
			// A bare number is not a time.
			continue
		}
		h, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		switch {
		case strings.HasPrefix(m[3], "p") && h < 12:
			h += 12
		case strings.HasPrefix(m[3], "a") && h == 12:
			h = 0
		}
		if h > 23 || minute > 59 {
			continue
		}
		out = append(out, fmt.Sprintf("%02d:%02d", h, minute))
	}

	return util.SortedUnique(out)
}

// PartOfDay names the part of the day an HH:MM time falls in.
func PartOfDay(hhmm string) string {
	h, _ := strconv.Atoi(hhmm[:2])
	switch {
	case h < 12:
		return "morning"
	case h < 17:
		return "afternoon"
	case h < 21:
		return "evening"
	default:
		return "bedtime"
	}
}

// SpokenClock renders an HH:MM time for speech: "8 AM", "noon", "8:30 PM".
func SpokenClock(hhmm string) string {
	h, _ := strconv.Atoi(hhmm[:2])
	m, _ := strconv.Atoi(hhmm[3:])
	if h == 12 && m == 0 {
		return "noon"
	}
	period := "AM"
	if h >= 12 {
		period = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	if m == 0 {
		return fmt.Sprintf("%d %s", h, period)
	}
	return fmt.Sprintf("%d:%02d %s", h, m, period)
}

// CleanName keeps letters, spaces, hyphens and apostrophes and capitalizes
// every letter that starts a word part ("mary-ann o'neil" gives
// "Mary-Ann O'Neil").
func CleanName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsSpace(r) || r == '-' || r == '\'' {
			b.WriteRune(r)
		}
	}

	rs := []rune(strings.Join(strings.Fields(b.String()), " "))
	for i, r := range rs {
		if i == 0 || !unicode.IsLetter(rs[i-1]) {
			rs[i] = unicode.ToUpper(r)
		} else {
			rs[i] = unicode.ToLower(r)
		}
	}
	return string(rs)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
