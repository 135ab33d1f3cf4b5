package plan

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/starpay/types"
)

// file is the on-disk YAML layout of a catalog.
type file struct {
	Plans []filePlan `yaml:"plans"`
}

type filePlan struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Price       int64    `yaml:"price"`
	Currency    string   `yaml:"currency"`
	Period      string   `yaml:"period"`
	Commands    []string `yaml:"commands"`
	Features    []string `yaml:"features"`
}

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plan: read catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a Catalog from YAML.
//
//	plans:
//	  - id: weekly
//	    name: Basic
//	    description: Full access for 7 days
//	    price: 750
//	    period: 7d
//	    commands: [/weekly]
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("plan: decode catalog: %w", err)
	}

	plans := make([]*Plan, 0, len(f.Plans))
	for _, fp := range f.Plans {
		period, err := ParsePeriod(fp.Period)
		if err != nil {
			return nil, fmt.Errorf("plan: plan %q: %w", fp.ID, err)
		}
		currency := fp.Currency
		if currency == "" {
			currency = types.CurrencyStars
		}
		plans = append(plans, &Plan{
			ID:          fp.ID,
			Name:        fp.Name,
			Description: fp.Description,
			Price:       types.Money{Amount: fp.Price, Currency: currency},
			Period:      period,
			Commands:    fp.Commands,
			Features:    fp.Features,
		})
	}

	return NewCatalog(plans...)
}

// ParsePeriod accepts Go duration strings ("168h") and whole days ("7d").
func ParsePeriod(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("period is required")
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid period %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return d, nil
}
