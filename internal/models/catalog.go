package models

import "strings"

// CardSet is a booster set as listed by the pricing backend
type CardSet struct {
	SetName    string `json:"set_name"`
	SetCode    string `json:"set_code"`
	NumOfCards int    `json:"num_of_cards"`
	TCGDate    string `json:"tcg_date"`
	SetImage   string `json:"set_image,omitempty"`
}

// CardPrinting is one printing of a card inside a set
type CardPrinting struct {
	SetName   string `json:"set_name"`
	SetCode   string `json:"set_code"`
	SetRarity string `json:"set_rarity"`
	SetPrice  string `json:"set_price,omitempty"`
}

// CardImage holds the image URLs for one artwork of a card
type CardImage struct {
	ID            int64  `json:"id"`
	ImageURL      string `json:"image_url"`
	ImageURLSmall string `json:"image_url_small"`
}

// CatalogCard is a card in a set's catalog
type CatalogCard struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type,omitempty"`
	Race       string         `json:"race,omitempty"`
	CardSets   []CardPrinting `json:"card_sets,omitempty"`
	CardImages []CardImage    `json:"card_images,omitempty"`
}

// PrintingsIn returns the printings of the card in the set with the given
// code prefix (e.g. "LOB" matches "LOB-EN001"). An empty prefix returns all.
func (c *CatalogCard) PrintingsIn(setCode string) []CardPrinting {
	if setCode == "" {
		return c.CardSets
	}
	prefix := strings.ToUpper(setCode)
	var out []CardPrinting
	for _, p := range c.CardSets {
		if strings.HasPrefix(strings.ToUpper(p.SetCode), prefix) {
			out = append(out, p)
		}
	}
	return out
}

// Printing picks the printing for the given set and rarity. Rarity matching
// is case-insensitive and accepts containment in either direction ("ultra"
// matches "Ultra Rare"). With no rarity the first printing in the set wins.
func (c *CatalogCard) Printing(setCode, rarity string) (CardPrinting, bool) {
	printings := c.PrintingsIn(setCode)
	if len(printings) == 0 {
		return CardPrinting{}, false
	}
	want := strings.ToLower(strings.TrimSpace(rarity))
	if want == "" {
		return printings[0], true
	}
	for _, p := range printings {
		if strings.ToLower(p.SetRarity) == want {
			return p, true
		}
	}
	for _, p := range printings {
		have := strings.ToLower(p.SetRarity)
		if strings.Contains(have, want) || strings.Contains(want, have) {
			return p, true
		}
	}
	return CardPrinting{}, false
}

// ImageURL returns the first artwork URL, small or full size
func (c *CatalogCard) ImageURL(small bool) string {
	if len(c.CardImages) == 0 {
		return ""
	}
	if small && c.CardImages[0].ImageURLSmall != "" {
		return c.CardImages[0].ImageURLSmall
	}
	return c.CardImages[0].ImageURL
}

// CatalogNames returns the card names in catalog order
func CatalogNames(cards []CatalogCard) []string {
	names := make([]string, len(cards))
	for i, c := range cards {
		names[i] = c.Name
	}
	return names
}
