package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed discounts.yaml
var defaultDiscounts []byte

type Discount struct {
	Percent int    `yaml:"percent" json:"percent"`
	Code    string `yaml:"code" json:"code"`
}

// DiscountTable maps an ISO country code to its regional discount.
type DiscountTable map[string]Discount

// LoadDiscounts reads the table from path, or the embedded default when
// path is empty.
func LoadDiscounts(path string) (DiscountTable, error) {
	data := defaultDiscounts
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read discounts file: %w", err)
		}
		data = b
	}
	return ParseDiscounts(data)
}

func ParseDiscounts(data []byte) (DiscountTable, error) {
	raw := map[string]Discount{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse discounts: %w", err)
	}

	table := make(DiscountTable, len(raw))
	for country, d := range raw {
		if d.Code == "" {
			return nil, fmt.Errorf("discount for %s has no code", country)
		}
		if d.Percent <= 0 || d.Percent >= 100 {
			return nil, fmt.Errorf("discount for %s has invalid percent %d", country, d.Percent)
		}
		table[strings.ToUpper(strings.TrimSpace(country))] = d
	}
	return table, nil
}

func (t DiscountTable) Lookup(country string) (Discount, bool) {
	if country == "" {
		return Discount{}, false
	}
	d, ok := t[strings.ToUpper(strings.TrimSpace(country))]
	return d, ok
}
