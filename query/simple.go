package query

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bookn/propertysearch/datastore"
	"github.com/bookn/propertysearch/oracle"
	"github.com/bookn/propertysearch/propdoc"
)

// tempTTL bounds how long a SimpleSearch scratch key can survive if the
// executor crashes before its own cleanup runs.
const tempTTL = 30 * time.Second

// SimpleStrategy implements spec §4.6's SimpleSearch algorithm: no text,
// no dates, at most two active filters.
type SimpleStrategy struct{}

func (SimpleStrategy) Name() string { return "simple" }

func sortIndexFor(sortBy SortBy) string {
	switch sortBy {
	case SortPriceAsc, SortPriceDesc:
		return propdoc.IdxPrice
	case SortNewest:
		return propdoc.IdxCreated
	case SortPopularity:
		return propdoc.IdxPopularity
	default:
		return propdoc.IdxRating
	}
}

func newTempKey(op string) string {
	return propdoc.TempKey(op, uuid.NewString())
}

func (SimpleStrategy) Execute(ctx context.Context, req Request, store datastore.Store, oracles oracle.Oracles) (Result, error) {
	var scratch []string
	defer func() {
		if len(scratch) > 0 {
			store.Del(ctx, scratch...)
		}
	}()
	trackTemp := func(key string) string {
		scratch = append(scratch, key)
		store.Expire(ctx, key, tempTTL)
		return key
	}

	candidateKeys := []string{propdoc.AllPropertiesKey}
	if req.City != "" {
		candidateKeys = append(candidateKeys, propdoc.TagCityKey(req.City))
	}
	if req.PropertyType != "" {
		candidateKeys = append(candidateKeys, propdoc.TagTypeKey(req.PropertyType))
	}
	for _, amenity := range req.RequiredAmenityIDs {
		candidateKeys = append(candidateKeys, propdoc.TagAmenityKey(amenity))
	}
	for field, value := range req.DynamicFieldFilters {
		candidateKeys = append(candidateKeys, propdoc.DynamicValueKey(field, value))
	}

	candidates := trackTemp(newTempKey("simple-candidates"))
	if _, err := store.SInterStore(ctx, candidates, candidateKeys...); err != nil {
		return Result{}, err
	}

	sortIndex := sortIndexFor(req.SortBy)
	sorted := trackTemp(newTempKey("simple-sorted"))
	if _, err := store.ZInterStore(ctx, sorted, []float64{0, 1}, candidates, sortIndex); err != nil {
		return Result{}, err
	}

	for _, f := range numericFilters(req) {
		// Preserve the range index's own score so out-of-range members can
		// be trimmed by value, then intersect back against `sorted`
		// preserving ITS score so the final set keeps its sort ordering.
		ranged := trackTemp(newTempKey("simple-range"))
		if _, err := store.ZInterStore(ctx, ranged, []float64{0, 1}, sorted, f.indexKey); err != nil {
			return Result{}, err
		}
		if f.min > 0 {
			if _, err := store.ZRemRangeByScore(ctx, ranged, 0, f.min-smallestStep); err != nil {
				return Result{}, err
			}
		}
		if f.hasMax {
			if _, err := store.ZRemRangeByScore(ctx, ranged, f.max+smallestStep, maxScore); err != nil {
				return Result{}, err
			}
		}
		next := trackTemp(newTempKey("simple-sorted"))
		if _, err := store.ZInterStore(ctx, next, []float64{0, 1}, ranged, sorted); err != nil {
			return Result{}, err
		}
		sorted = next
	}

	ids, err := readSortedPage(ctx, store, sorted, req.SortBy)
	if err != nil {
		return Result{}, err
	}

	docs, err := fetchDocuments(ctx, store, ids)
	if err != nil {
		return Result{}, err
	}

	Sort(ctx, docs, req.SortBy, req.PreferredCurrency, oracles.Currency, req.Latitude, req.Longitude)
	page, totalPages := Paginate(docs, req.PageNumber, req.PageSize)
	return Result{Items: page, TotalCount: int64(len(docs)), PageNumber: req.PageNumber, PageSize: req.PageSize, TotalPages: totalPages}, nil
}

const smallestStep = 0.000001
const maxScore = 1e18

type numericFilter struct {
	indexKey string
	min      float64
	max      float64
	hasMax   bool
}

func numericFilters(req Request) []numericFilter {
	var filters []numericFilter
	if req.HasPriceRange {
		filters = append(filters, numericFilter{indexKey: propdoc.IdxPrice, min: req.MinPrice.Float64(), max: req.MaxPrice.Float64(), hasMax: true})
	}
	if req.MinRating > 0 {
		filters = append(filters, numericFilter{indexKey: propdoc.IdxRating, min: req.MinRating})
	}
	if req.MinAdults > 0 {
		filters = append(filters, numericFilter{indexKey: propdoc.IdxMaxAdults, min: float64(req.MinAdults)})
	}
	if req.MinChildren > 0 {
		filters = append(filters, numericFilter{indexKey: propdoc.IdxMaxChildren, min: float64(req.MinChildren)})
	}
	if req.GuestsCount > 0 {
		filters = append(filters, numericFilter{indexKey: propdoc.IdxMaxCapacity, min: float64(req.GuestsCount)})
	}
	return filters
}

// readSortedPage reads the candidate ids from the final sorted set in the
// direction sortBy implies; the caller still re-sorts after fetching
// documents to apply cross-currency / haversine ordering exactly.
func readSortedPage(ctx context.Context, store datastore.Store, key string, sortBy SortBy) ([]string, error) {
	if sortBy == SortPriceAsc {
		return store.ZRange(ctx, key, 0, -1)
	}
	return store.ZRevRange(ctx, key, 0, -1)
}

// fetchDocuments materializes PropertyDocuments for ids in a single
// pipelined-shaped batch (sequential HGetAll calls over one multiplexed
// connection — go-redis pools the round trips internally).
func fetchDocuments(ctx context.Context, store datastore.Store, ids []string) ([]*propdoc.PropertyDocument, error) {
	docs := make([]*propdoc.PropertyDocument, 0, len(ids))
	for _, id := range ids {
		fields, err := store.HGetAll(ctx, propdoc.PropertyKey(id))
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		doc, err := propdoc.FromFields(fields)
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
