// Package cite renders a human-readable legal citation for one acórdão.
package cite

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/juristools/stjsearch/internal/record"
)

// pubRe pulls the venue and date out of a data_publicacao value like
// "DJe DATA: 05/03/2020".
var pubRe = regexp.MustCompile(`^(\S+)\s+DATA:\s*(\d{2}/\d{2}/\d{4})`)

// Format builds a citation in the conventional Brazilian style:
// "(STJ., REsp n. 1.234.567, relator Ministro Fulano De Tal, Quarta
// Turma, julgado em 15/1/2020, DJe de 5/3/2020).". Fields that are
// absent are simply omitted.
func Format(a *record.Acordao) string {
	parts := []string{"STJ."}

	if a.SiglaClasse != "" && a.NumeroProcesso != "" {
		parts = append(parts, fmt.Sprintf("%s n. %s", a.SiglaClasse, groupDigits(a.NumeroProcesso)))
	}
	if a.MinistroRelator != "" {
		parts = append(parts, "relator Ministro "+titleCase(a.MinistroRelator))
	}
	if a.OrgaoJulgador != "" {
		parts = append(parts, titleCase(a.OrgaoJulgador))
	}
	if len(a.DataDecisao) == 8 {
		if d, m, y, ok := splitCompactDate(a.DataDecisao); ok {
			parts = append(parts, fmt.Sprintf("julgado em %d/%d/%s", d, m, y))
		}
	}
	if m := pubRe.FindStringSubmatch(a.DataPublicacao); m != nil {
		fields := strings.Split(m[2], "/")
		d, _ := strconv.Atoi(fields[0])
		mo, _ := strconv.Atoi(fields[1])
		parts = append(parts, fmt.Sprintf("%s de %d/%d/%s", m[1], d, mo, fields[2]))
	}

	return "(" + strings.Join(parts, ", ") + ")."
}

// groupDigits formats a numeric process number with dots as thousands
// separators. Non-numeric values pass through untouched.
func groupDigits(s string) string {
	if _, err := strconv.ParseUint(s, 10, 64); err != nil {
		return s
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		s = "0"
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// splitCompactDate parses YYYYMMDD into its components.
func splitCompactDate(s string) (day, month int, year string, ok bool) {
	y, errY := strconv.Atoi(s[:4])
	m, errM := strconv.Atoi(s[4:6])
	d, errD := strconv.Atoi(s[6:])
	if errY != nil || errM != nil || errD != nil || y == 0 {
		return 0, 0, "", false
	}
	return d, m, s[:4], true
}

// titleCase lowercases a name and capitalizes each word. Judicial names
// arrive fully uppercased in the catalog.
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
