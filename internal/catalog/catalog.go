// Package catalog holds the static course content the ledger consumes:
// lessons, shop items, achievements, daily quest templates and the balance
// wheel categories. The default catalog is embedded from catalog.yaml.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
)

//go:embed catalog.yaml
var embedded []byte

// Catalog is an immutable, validated course catalog. It implements ledger.Catalog.
type Catalog struct {
	lessons      []ledger.LessonDef
	items        []ledger.ItemDef
	achievements []ledger.AchievementDef
	quests       []ledger.QuestTemplate
	categories   []string

	lessonByID      map[string]ledger.LessonDef
	itemByID        map[string]ledger.ItemDef
	achievementByID map[string]ledger.AchievementDef
}

var _ ledger.Catalog = (*Catalog)(nil)

type document struct {
	Lessons      []ledger.LessonDef      `yaml:"lessons"`
	Shop         []ledger.ItemDef        `yaml:"shop"`
	Achievements []ledger.AchievementDef `yaml:"achievements"`
	Quests       []ledger.QuestTemplate  `yaml:"daily_quests"`
	Categories   []string                `yaml:"balance_categories"`
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns the embedded catalog, parsed once.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = Parse(embedded)
	})
	return defaultCat, defaultErr
}

// MustDefault is Default that panics on a broken embedded catalog.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// LoadFile parses and validates a catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML and validates the result.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	c := &Catalog{
		lessons:         doc.Lessons,
		items:           doc.Shop,
		achievements:    doc.Achievements,
		quests:          doc.Quests,
		categories:      doc.Categories,
		lessonByID:      make(map[string]ledger.LessonDef, len(doc.Lessons)),
		itemByID:        make(map[string]ledger.ItemDef, len(doc.Shop)),
		achievementByID: make(map[string]ledger.AchievementDef, len(doc.Achievements)),
	}
	for _, l := range doc.Lessons {
		c.lessonByID[l.ID] = l
	}
	for _, it := range doc.Shop {
		c.itemByID[it.ID] = it
	}
	for _, a := range doc.Achievements {
		c.achievementByID[a.ID] = a
	}
	return c, nil
}

func (d document) validate() error {
	var errs []error

	seen := map[string]struct{}{}
	unique := func(section, id string) {
		key := section + "/" + id
		if id == "" {
			errs = append(errs, fmt.Errorf("%s: empty id", section))
			return
		}
		if _, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate id %q", section, id))
		}
		seen[key] = struct{}{}
	}

	if len(d.Lessons) == 0 {
		errs = append(errs, errors.New("lessons: at least one lesson is required"))
	}
	for _, l := range d.Lessons {
		unique("lessons", l.ID)
		if !l.Reward.IsValid() {
			errs = append(errs, fmt.Errorf("lessons: %q has a negative reward", l.ID))
		}
	}

	for _, it := range d.Shop {
		unique("shop", it.ID)
		if !it.Price.Currency.IsValid() {
			errs = append(errs, fmt.Errorf("shop: %q has unknown currency %q", it.ID, it.Price.Currency))
		}
		if it.Price.Amount <= 0 {
			errs = append(errs, fmt.Errorf("shop: %q must have a positive price", it.ID))
		}
		if !it.Effect.IsValid() {
			errs = append(errs, fmt.Errorf("shop: %q has unknown effect %q", it.ID, it.Effect))
		}
	}

	for _, a := range d.Achievements {
		unique("achievements", a.ID)
		if !a.Metric.IsValid() || a.Metric == ledger.MetricXPEarned {
			errs = append(errs, fmt.Errorf("achievements: %q has unsupported metric %q", a.ID, a.Metric))
		}
		if a.Target <= 0 {
			errs = append(errs, fmt.Errorf("achievements: %q must have a positive target", a.ID))
		}
		if !a.Reward.IsValid() {
			errs = append(errs, fmt.Errorf("achievements: %q has a negative reward", a.ID))
		}
	}

	for _, q := range d.Quests {
		unique("daily_quests", q.ID)
		if !q.Metric.IsValid() || q.Metric == ledger.MetricManual {
			errs = append(errs, fmt.Errorf("daily_quests: %q has unsupported metric %q", q.ID, q.Metric))
		}
		if q.Target <= 0 {
			errs = append(errs, fmt.Errorf("daily_quests: %q must have a positive target", q.ID))
		}
		if !q.Reward.IsValid() {
			errs = append(errs, fmt.Errorf("daily_quests: %q has a negative reward", q.ID))
		}
	}

	if len(d.Categories) == 0 {
		errs = append(errs, errors.New("balance_categories: at least one category is required"))
	}
	for _, c := range d.Categories {
		unique("balance_categories", c)
	}

	return errors.Join(errs...)
}

// Lesson implements ledger.Catalog.
func (c *Catalog) Lesson(id string) (ledger.LessonDef, bool) {
	l, ok := c.lessonByID[id]
	return l, ok
}

// Item implements ledger.Catalog.
func (c *Catalog) Item(id string) (ledger.ItemDef, bool) {
	it, ok := c.itemByID[id]
	return it, ok
}

// Achievement implements ledger.Catalog.
func (c *Catalog) Achievement(id string) (ledger.AchievementDef, bool) {
	a, ok := c.achievementByID[id]
	return a, ok
}

// Achievements implements ledger.Catalog.
func (c *Catalog) Achievements() []ledger.AchievementDef {
	return append([]ledger.AchievementDef(nil), c.achievements...)
}

// QuestTemplates implements ledger.Catalog.
func (c *Catalog) QuestTemplates() []ledger.QuestTemplate {
	return append([]ledger.QuestTemplate(nil), c.quests...)
}

// BalanceCategories implements ledger.Catalog.
func (c *Catalog) BalanceCategories() []string {
	return append([]string(nil), c.categories...)
}

// Lessons returns all lessons in course order.
func (c *Catalog) Lessons() []ledger.LessonDef {
	return append([]ledger.LessonDef(nil), c.lessons...)
}

// Items returns the shop assortment.
func (c *Catalog) Items() []ledger.ItemDef {
	return append([]ledger.ItemDef(nil), c.items...)
}

// Modules returns the distinct module numbers in ascending order.
func (c *Catalog) Modules() []int {
	set := map[int]struct{}{}
	for _, l := range c.lessons {
		set[l.Module] = struct{}{}
	}
	mods := make([]int, 0, len(set))
	for m := range set {
		mods = append(mods, m)
	}
	sort.Ints(mods)
	return mods
}

// ModuleLessons returns the lessons of one module.
func (c *Catalog) ModuleLessons(module int) []ledger.LessonDef {
	var out []ledger.LessonDef
	for _, l := range c.lessons {
		if l.Module == module {
			out = append(out, l)
		}
	}
	return out
}
