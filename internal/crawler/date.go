package crawler

import (
	"strconv"
	"strings"
)

const dateSeparator = "/"

// ParseDate parses a D/M/Y token. Day and month ranges are not checked; the
// archive is trusted.
func ParseDate(token string) (ParsedDate, error) {
	parts := strings.Split(token, dateSeparator)
	if len(parts) != 3 {
		return ParsedDate{}, &MalformedDateError{
			Input:  token,
			Reason: "expected 3 fields separated by " + dateSeparator,
		}
	}
	var fields [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return ParsedDate{}, &MalformedDateError{Input: token, Reason: "non-numeric field " + strconv.Quote(p)}
		}
		fields[i] = n
	}
	return ParsedDate{Day: fields[0], Month: fields[1], Year: fields[2]}, nil
}

// ParseAltText extracts the date from alt text of the form "<label> <date>".
func ParseAltText(alt string) (ParsedDate, error) {
	tokens := strings.Fields(alt)
	if len(tokens) != 2 {
		return ParsedDate{}, &MalformedDateError{Input: alt, Reason: "expected \"<label> <date>\""}
	}
	return ParseDate(tokens[1])
}
