package alias

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Category classifies a sensitive value. Its string value is the prefix used
// in the token surface form.
type Category string

const (
	CategoryPerson       Category = "Client"
	CategoryOrganization Category = "Company"
	CategoryEntity       Category = "Entity"
	CategoryEmail        Category = "Email"
	CategoryCardNumber   Category = "Card"
	CategoryNationalID   Category = "ID"
	CategoryCustom       Category = "Redacted"
)

// Categories lists every category in token-pattern order.
var Categories = []Category{
	CategoryPerson,
	CategoryOrganization,
	CategoryEntity,
	CategoryEmail,
	CategoryCardNumber,
	CategoryNationalID,
	CategoryCustom,
}

var domainNames = map[string]Category{
	"person":       CategoryPerson,
	"organization": CategoryOrganization,
	"entity":       CategoryEntity,
	"email":        CategoryEmail,
	"cardnumber":   CategoryCardNumber,
	"card_number":  CategoryCardNumber,
	"nationalid":   CategoryNationalID,
	"national_id":  CategoryNationalID,
	"custom":       CategoryCustom,
}

// ParseCategory accepts a surface prefix ("Client") or a domain name
// ("person"), case-insensitively.
func ParseCategory(s string) (Category, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if strings.ToLower(string(c)) == name {
			return c, nil
		}
	}
	if c, ok := domainNames[name]; ok {
		return c, nil
	}
	return "", fmt.Errorf("unknown category: %q", s)
}

// TokenPattern matches any well-formed token.
var TokenPattern = regexp.MustCompile(`\[(Client|Company|Entity|Email|Card|ID|Redacted)_([1-9][0-9]*)\]`)

// FormatToken renders the surface form of the n-th token of a category.
func FormatToken(c Category, n int) string {
	return "[" + string(c) + "_" + strconv.Itoa(n) + "]"
}

// ParseToken splits a token into category and sequence number.
func ParseToken(token string) (Category, int, bool) {
	m := TokenPattern.FindStringSubmatch(token)
	if m == nil || m[0] != token {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return Category(m[1]), n, true
}

// IsToken reports whether s is exactly one well-formed token.
func IsToken(s string) bool {
	_, _, ok := ParseToken(s)
	return ok
}
