// Package catalog loads the food table behind the admin search box.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/xuri/excelize/v2"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("food not found")

// ---------- Data model: Foods ----------

type Food struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	MealType         string   `json:"meal_type,omitempty"`
	Calories         float64  `json:"calories"`
	Protein          float64  `json:"protein"`
	Fat              float64  `json:"fat"`
	Carbs            float64  `json:"carbs"`
	PreparationTime  string   `json:"preparation_time,omitempty"`
	Description      string   `json:"description,omitempty"`
	HealthBenefits   string   `json:"health_benefits,omitempty"`
	Ingredients      []string `json:"ingredients,omitempty"`
	PreparationSteps []string `json:"preparation_steps,omitempty"`
}

type Catalog struct {
	Foods []Food
	byID  map[string]int
	norm  []string // normKey(Foods[i].Name)
}

var requiredColumns = []string{"name"}

// Load reads a .csv or .xlsx food table.
func Load(path string) (*Catalog, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return LoadXLSX(path)
	case ".csv":
		return LoadCSV(path)
	}
	return nil, fmt.Errorf("unsupported food table %s: want .csv or .xlsx", path)
}

// ---------- CSV load ----------

func LoadCSV(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

func ReadCSV(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return fromRecords(records)
}

// ---------- XLSX load ----------

func LoadXLSX(path string) (*Catalog, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read xlsx: %w", err)
	}
	return fromRecords(rows)
}

func fromRecords(records [][]string) (*Catalog, error) {
	if len(records) == 0 {
		return nil, errors.New("food table has no rows")
	}

	headers := map[string]int{}
	for i, h := range records[0] {
		headers[strings.TrimSpace(strings.ToLower(h))] = i
	}
	for _, r := range requiredColumns {
		if _, ok := headers[r]; !ok {
			return nil, fmt.Errorf("missing required column: %s", r)
		}
	}

	var foods []Food
	for _, row := range records[1:] {
		get := func(name string) string {
			if idx, ok := headers[name]; ok && idx < len(row) {
				return strings.TrimSpace(row[idx])
			}
			return ""
		}
		name := get("name")
		if name == "" {
			continue
		}
		foods = append(foods, Food{
			Name:             name,
			MealType:         get("meal_type"),
			Calories:         number(get("calories")),
			Protein:          number(get("protein")),
			Fat:              number(get("fat")),
			Carbs:            number(get("carbs")),
			PreparationTime:  get("preparation_time"),
			Description:      get("description"),
			HealthBenefits:   get("health_benefits"),
			Ingredients:      splitList(get("ingredients")),
			PreparationSteps: splitList(get("preparation_steps")),
		})
	}
	return New(foods), nil
}

// New indexes foods. Items without an ID get one derived from the name.
func New(foods []Food) *Catalog {
	c := &Catalog{byID: make(map[string]int, len(foods))}
	for _, f := range foods {
		if f.ID == "" {
			f.ID = foodID(f.Name)
		}
		if _, dup := c.byID[f.ID]; dup {
			continue
		}
		c.byID[f.ID] = len(c.Foods)
		c.Foods = append(c.Foods, f)
		c.norm = append(c.norm, normKey(f.Name))
	}
	return c
}

// Len is the number of foods.
func (c *Catalog) Len() int { return len(c.Foods) }

// Get returns the food with id.
func (c *Catalog) Get(id string) (Food, error) {
	i, ok := c.byID[id]
	if !ok {
		return Food{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.Foods[i], nil
}

// MealTypes returns the distinct meal types, sorted.
func (c *Catalog) MealTypes() []string {
	set := map[string]struct{}{}
	for _, f := range c.Foods {
		if f.MealType != "" {
			set[f.MealType] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func number(s string) float64 {
	s = strings.TrimSpace(strings.TrimRight(strings.ToLower(s), "gkcal "))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0
	}
	return v
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	sep := ","
	if strings.Contains(s, "|") {
		sep = "|"
	} else if strings.Contains(s, ";") {
		sep = ";"
	}
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// foodID hashes the normalized name, so ids survive re-imports.
func foodID(name string) string {
	return strconv.FormatUint(xxhash.Sum64String(normKey(name)), 36)
}
