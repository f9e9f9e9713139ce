package model

import (
	"cmp"
	"errors"
	"math"
	"math/rand/v2"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortField is the attribute a watchlist is ordered by.
type SortField string

const (
	SortByAddedAt SortField = "added_at"
	SortByTitle   SortField = "title"
	SortByYear    SortField = "year"
	SortByRating  SortField = "rating"
	SortByRandom  SortField = "random"
)

// SortOrder is the direction of a sort.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// SortSpec describes how a watchlist is ordered for presentation.
type SortSpec struct {
	By    SortField
	Order SortOrder
}

// DefaultSortSpec is used whenever no valid sort option is available.
var DefaultSortSpec = SortSpec{By: SortByAddedAt, Order: OrderAsc}

var (
	ErrInvalidIdentifier = errors.New("invalid IMDb user identifier")
	ErrInvalidSortOption = errors.New("invalid sort option")
)

var sortOptionPattern = regexp.MustCompile(`^(?:(added_at|title|year|rating)-(asc|desc)|random)$`)

// ParseSortSpec parses a "field-order" option such as "title-desc".
// The bare "random" sentinel is accepted.
func ParseSortSpec(option string) (SortSpec, error) {
	m := sortOptionPattern.FindStringSubmatch(strings.TrimSpace(option))
	if m == nil {
		return SortSpec{}, ErrInvalidSortOption
	}
	if m[0] == string(SortByRandom) {
		return SortSpec{By: SortByRandom, Order: OrderAsc}, nil
	}
	return SortSpec{By: SortField(m[1]), Order: SortOrder(m[2])}, nil
}

// SortSpecOrDefault parses option and falls back to DefaultSortSpec on any error.
func SortSpecOrDefault(option string) SortSpec {
	spec, err := ParseSortSpec(option)
	if err != nil {
		return DefaultSortSpec
	}
	return spec
}

// String renders the sort back into its "field-order" option form.
func (s SortSpec) String() string {
	if s.By == SortByRandom {
		return string(SortByRandom)
	}
	return string(s.By) + "-" + string(s.Order)
}

type indexedItem struct {
	item MediaItem
	idx  int
}

// SortItems returns a new slice ordered according to spec. The input is never modified.
// seed drives the random order so that a given cache entry always shuffles the same way.
// Ties on the sort key keep their original relative order.
func SortItems(items []MediaItem, spec SortSpec, seed int64) []MediaItem {
	out := make([]MediaItem, len(items))
	copy(out, items)

	switch spec.By {
	case SortByRandom:
		r := rand.New(rand.NewPCG(uint64(seed), uint64(len(out))))
		r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	case SortByAddedAt:
		if spec.Order == OrderDesc {
			slices.Reverse(out)
		}
		return out
	}

	keyed := make([]indexedItem, len(out))
	for i, item := range out {
		keyed[i] = indexedItem{item: item, idx: i}
	}

	compareKey := keyComparator(spec.By)
	slices.SortStableFunc(keyed, func(a, b indexedItem) int {
		c := compareKey(a.item, b.item)
		if spec.Order == OrderDesc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.idx, b.idx)
	})

	for i, k := range keyed {
		out[i] = k.item
	}
	return out
}

func keyComparator(field SortField) func(a, b MediaItem) int {
	switch field {
	case SortByTitle:
		// Collators keep internal buffers and are not safe for concurrent use.
		c := collate.New(language.English, collate.IgnoreCase)
		return func(a, b MediaItem) int {
			return c.CompareString(a.Name, b.Name)
		}
	case SortByYear:
		return func(a, b MediaItem) int {
			return cmp.Compare(ParseYear(a.ReleaseInfo), ParseYear(b.ReleaseInfo))
		}
	case SortByRating:
		return func(a, b MediaItem) int {
			return cmp.Compare(ParseRating(a.IMDbRating), ParseRating(b.IMDbRating))
		}
	default:
		return func(MediaItem, MediaItem) int { return 0 }
	}
}

var yearPattern = regexp.MustCompile(`\d{4}`)

// ParseYear extracts the first four-digit year of a release string ("2019", "2019–2022").
// Returns 0 when none is present.
func ParseYear(releaseInfo string) int {
	m := yearPattern.FindString(releaseInfo)
	if m == "" {
		return 0
	}
	year, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return year
}

// ParseRating parses an IMDb rating string. Returns 0 when unparsable.
func ParseRating(rating string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(rating), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
