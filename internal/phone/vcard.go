package phone

import (
	"bufio"
	"strings"
)

// Card is the subset of a vCard the bot cares about.
type Card struct {
	Name  string
	Phone string
	Email string
}

// ParseVCard reads FN, TEL and EMAIL from vCard 3.0/4.0 content. A CELL or
// MOBILE number wins over other TEL entries. Phone is empty when no TEL
// line holds a valid number.
func ParseVCard(content, region string) Card {
	var card Card
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		upper := strings.ToUpper(key)
		switch {
		case upper == "FN" || strings.HasPrefix(upper, "FN;"):
			card.Name = strings.TrimSpace(value)
		case strings.HasPrefix(upper, "TEL"):
			// vCard 4.0 writes "TEL;TYPE=cell:tel:+1..." or "TEL;VALUE=uri:tel:+1..."
			value = strings.TrimPrefix(strings.TrimSpace(value), "tel:")
			p, err := Normalize(value, region)
			if err != nil {
				continue
			}
			mobile := strings.Contains(upper, "CELL") || strings.Contains(upper, "MOBILE")
			if mobile || card.Phone == "" {
				card.Phone = p
			}
		case strings.HasPrefix(upper, "EMAIL"):
			card.Email = strings.TrimSpace(value)
		}
	}
	return card
}
