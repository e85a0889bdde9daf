// Package discover finds which case serial numbers exist for a year.
//
// The court portal has no listing of case numbers, only an exact-number
// lookup, so the valid serial ranges are found by bisection with a remote
// existence check as the only oracle.
//
// Known limitation: existence is assumed to be a clean step function over
// each category's search window (true on [start, end), false from end up to
// the ceiling). This is not verified. If the remote data has a hole followed
// by a resumption, the returned boundary may not be the last existing serial.
package discover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DefaultCeiling is the highest serial observed to be reachable by any category.
const DefaultCeiling = 9999

// DefaultFirstSerial is the first serial of a year. {year}-A-1 always exists.
const DefaultFirstSerial = 1

var (
	// ErrOracle wraps any failure returned by an Oracle.
	ErrOracle = errors.New("existence oracle failed")
	// ErrInvalidInput is returned before any oracle call when the request is malformed.
	ErrInvalidInput = errors.New("invalid discovery input")
)

// Category is a case number grouping label such as "A" or "I".
type Category string

// Default category layout for Davidson County criminal cases.
var (
	DefaultChained     = []Category{"A", "B", "C", "D"}
	DefaultIndependent = Category("I")
)

// CaseKey identifies one case number.
type CaseKey struct {
	Year     int
	Category Category
	Serial   int
}

// String formats the key the way the portal expects: {year}-{category}-{serial}.
func (k CaseKey) String() string {
	return strconv.Itoa(k.Year) + "-" + string(k.Category) + "-" + strconv.Itoa(k.Serial)
}

// ParseCaseKey parses a "{year}-{category}-{serial}" string.
func ParseCaseKey(s string) (CaseKey, error) {
	first, rest, ok := strings.Cut(s, "-")
	if !ok {
		return CaseKey{}, fmt.Errorf("%w: case number %q", ErrInvalidInput, s)
	}
	cat, serialStr, ok := strings.Cut(rest, "-")
	if !ok || cat == "" {
		return CaseKey{}, fmt.Errorf("%w: case number %q", ErrInvalidInput, s)
	}
	year, err := strconv.Atoi(first)
	if err != nil || year <= 0 {
		return CaseKey{}, fmt.Errorf("%w: year in %q", ErrInvalidInput, s)
	}
	serial, err := strconv.Atoi(serialStr)
	if err != nil || serial <= 0 {
		return CaseKey{}, fmt.Errorf("%w: serial in %q", ErrInvalidInput, s)
	}
	return CaseKey{Year: year, Category: Category(cat), Serial: serial}, nil
}

// SerialRange is the half-open interval [Start, End) of existing serials.
type SerialRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of serials in the range.
func (r SerialRange) Len() int {
	return r.End - r.Start
}

// Oracle answers whether a case number exists. Implementations must give a
// definitive answer or an error; there is no unknown state.
type Oracle interface {
	Exists(ctx context.Context, key CaseKey) (bool, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, key CaseKey) (bool, error)

// Exists calls f.
func (f OracleFunc) Exists(ctx context.Context, key CaseKey) (bool, error) {
	return f(ctx, key)
}

// Bisect returns the smallest n in [low, high] for which pred is false,
// assuming pred is true on [low, n) and false on [n, high]. high itself is
// never queried, so an all-true window returns high. Each step makes exactly
// one pred call; low == high returns without calling pred.
func Bisect(ctx context.Context, low, high int, pred func(context.Context, int) (bool, error)) (int, error) {
	for low < high {
		mid := low + (high-low)/2

		ok, err := pred(ctx, mid)
		if err != nil {
			return 0, err
		}
		if ok {
			low = mid + 1
		} else {
			high = mid
		}
	}
	return low, nil
}

// Config describes the category layout and search window.
type Config struct {
	Chained     []Category
	Independent Category
	FirstSerial int
	Ceiling     int
}

// DefaultConfig returns the Davidson County layout.
func DefaultConfig() Config {
	return Config{
		Chained:     append([]Category(nil), DefaultChained...),
		Independent: DefaultIndependent,
		FirstSerial: DefaultFirstSerial,
		Ceiling:     DefaultCeiling,
	}
}

func (c Config) validate() error {
	if c.FirstSerial < 1 {
		return fmt.Errorf("%w: first serial %d", ErrInvalidInput, c.FirstSerial)
	}
	if c.Ceiling < c.FirstSerial {
		return fmt.Errorf("%w: ceiling %d below first serial %d", ErrInvalidInput, c.Ceiling, c.FirstSerial)
	}

	seen := make(map[Category]bool, len(c.Chained)+1)
	all := c.Chained
	if c.Independent != "" {
		all = append(append([]Category(nil), c.Chained...), c.Independent)
	}
	if len(all) == 0 {
		return fmt.Errorf("%w: no categories", ErrInvalidInput)
	}
	for _, cat := range all {
		if cat == "" {
			return fmt.Errorf("%w: empty category label", ErrInvalidInput)
		}
		if seen[cat] {
			return fmt.Errorf("%w: duplicate category %q", ErrInvalidInput, cat)
		}
		seen[cat] = true
	}
	return nil
}

// Ranges maps each category to its discovered range, in discovery order.
type Ranges struct {
	Year   int
	order  []Category
	ranges map[Category]SerialRange
}

func newRanges(year int, n int) *Ranges {
	return &Ranges{
		Year:   year,
		order:  make([]Category, 0, n),
		ranges: make(map[Category]SerialRange, n),
	}
}

func (r *Ranges) set(cat Category, sr SerialRange) {
	if _, ok := r.ranges[cat]; !ok {
		r.order = append(r.order, cat)
	}
	r.ranges[cat] = sr
}

// Get returns the range for a category.
func (r *Ranges) Get(cat Category) (SerialRange, bool) {
	sr, ok := r.ranges[cat]
	return sr, ok
}

// Categories returns the categories in discovery order.
func (r *Ranges) Categories() []Category {
	return append([]Category(nil), r.order...)
}

// Total returns the number of serials across all categories.
func (r *Ranges) Total() int {
	total := 0
	for _, sr := range r.ranges {
		total += sr.Len()
	}
	return total
}

// Keys expands every range into case keys, category by category.
func (r *Ranges) Keys() []CaseKey {
	keys := make([]CaseKey, 0, r.Total())
	for _, cat := range r.order {
		sr := r.ranges[cat]
		for serial := sr.Start; serial < sr.End; serial++ {
			keys = append(keys, CaseKey{Year: r.Year, Category: cat, Serial: serial})
		}
	}
	return keys
}

type rangeEntry struct {
	Category Category `json:"category"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
}

// MarshalJSON encodes the ranges as an ordered list.
func (r *Ranges) MarshalJSON() ([]byte, error) {
	entries := make([]rangeEntry, 0, len(r.order))
	for _, cat := range r.order {
		sr := r.ranges[cat]
		entries = append(entries, rangeEntry{Category: cat, Start: sr.Start, End: sr.End})
	}
	return json.Marshal(struct {
		Year   int          `json:"year"`
		Ranges []rangeEntry `json:"ranges"`
	}{Year: r.Year, Ranges: entries})
}

// Discoverer runs the range discovery against an Oracle.
type Discoverer struct {
	oracle Oracle
	cfg    Config
	logger *zap.Logger
}

// NewDiscoverer creates a Discoverer. A nil logger disables logging.
func NewDiscoverer(oracle Oracle, cfg Config, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{
		oracle: oracle,
		cfg:    cfg,
		logger: logger,
	}
}

// Discover returns the serial range of every configured category for year.
//
// Chained categories share one serial counter: each category starts where
// the previous one ended. The independent category is searched on its own
// over the whole window. Any oracle failure aborts the discovery.
func (d *Discoverer) Discover(ctx context.Context, year int) (*Ranges, error) {
	if year <= 0 {
		return nil, fmt.Errorf("%w: year %d", ErrInvalidInput, year)
	}
	if err := d.cfg.validate(); err != nil {
		return nil, err
	}

	ranges := newRanges(year, len(d.cfg.Chained)+1)

	start := d.cfg.FirstSerial
	for _, cat := range d.cfg.Chained {
		end, err := d.boundary(ctx, year, cat, start)
		if err != nil {
			return nil, err
		}
		ranges.set(cat, SerialRange{Start: start, End: end})
		start = end
	}

	if d.cfg.Independent != "" {
		end, err := d.boundary(ctx, year, d.cfg.Independent, d.cfg.FirstSerial)
		if err != nil {
			return nil, err
		}
		ranges.set(d.cfg.Independent, SerialRange{Start: d.cfg.FirstSerial, End: end})
	}

	return ranges, nil
}

// boundary finds the first serial of cat at or after start that does not exist.
func (d *Discoverer) boundary(ctx context.Context, year int, cat Category, start int) (int, error) {
	calls := 0
	pred := func(ctx context.Context, serial int) (bool, error) {
		key := CaseKey{Year: year, Category: cat, Serial: serial}
		calls++
		ok, err := d.oracle.Exists(ctx, key)
		if err != nil {
			return false, fmt.Errorf("%w: %s: %w", ErrOracle, key, err)
		}
		d.logger.Debug("oracle answered", zap.Stringer("case", key), zap.Bool("exists", ok))
		return ok, nil
	}

	end, err := Bisect(ctx, start, d.cfg.Ceiling, pred)
	if err != nil {
		return 0, err
	}

	d.logger.Info("category range discovered",
		zap.Int("year", year),
		zap.String("category", string(cat)),
		zap.Int("start", start),
		zap.Int("end", end),
		zap.Int("oracle_calls", calls),
	)
	if end == d.cfg.Ceiling && start < end {
		d.logger.Warn("category range reached the ceiling, true range may be larger",
			zap.String("category", string(cat)),
			zap.Int("ceiling", d.cfg.Ceiling),
		)
	}
	return end, nil
}
