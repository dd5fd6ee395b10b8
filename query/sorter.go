package query

import (
	"context"
	"math"
	"sort"

	"github.com/bookn/propertysearch/oracle"
)

// earthRadiusKM is the haversine constant named in spec §4.6.
const earthRadiusKM = 6371.0

// haversineKM computes great-circle distance between two coordinates.
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// priceInBaseCurrency converts a document's MinPrice into baseCurrency
// using the currency oracle. A missing rate is reported via ok=false so
// callers can sort the document last, per spec §4.6.
func priceInBaseCurrency(ctx context.Context, d *Document, baseCurrency string, currency oracle.CurrencyExchangeRepository) (float64, bool) {
	if d.Currency == "" || d.Currency == baseCurrency {
		return d.MinPrice.Float64(), true
	}
	if currency == nil {
		return 0, false
	}
	rate, ok, err := currency.Rate(ctx, d.Currency, baseCurrency)
	if err != nil || !ok {
		return 0, false
	}
	return d.MinPrice.Float64() * rate, true
}

// Sort orders docs in place per sortBy. For SortPriceAsc/Desc, baseCurrency
// and currency normalize across mixed-currency documents; for
// SortDistance, originLat/originLon anchor the haversine computation.
func Sort(ctx context.Context, docs []*Document, sortBy SortBy, baseCurrency string, currency oracle.CurrencyExchangeRepository, originLat, originLon float64) {
	switch sortBy {
	case SortPriceAsc, SortPriceDesc:
		type priced struct {
			doc   *Document
			price float64
			ok    bool
		}
		rows := make([]priced, len(docs))
		for i, d := range docs {
			price, ok := priceInBaseCurrency(ctx, d, baseCurrency, currency)
			rows[i] = priced{doc: d, price: price, ok: ok}
		}
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].ok != rows[j].ok {
				return rows[i].ok // missing rate sorts last
			}
			if sortBy == SortPriceAsc {
				return rows[i].price < rows[j].price
			}
			return rows[i].price > rows[j].price
		})
		for i, r := range rows {
			docs[i] = r.doc
		}
	case SortNewest:
		sort.SliceStable(docs, func(i, j int) bool { return docs[i].CreatedAt > docs[j].CreatedAt })
	case SortPopularity:
		sort.SliceStable(docs, func(i, j int) bool {
			if docs[i].PopularityScore != docs[j].PopularityScore {
				return docs[i].PopularityScore > docs[j].PopularityScore
			}
			if docs[i].BookingCount != docs[j].BookingCount {
				return docs[i].BookingCount > docs[j].BookingCount
			}
			return docs[i].ViewCount > docs[j].ViewCount
		})
	case SortDistance:
		sort.SliceStable(docs, func(i, j int) bool {
			di := haversineKM(originLat, originLon, docs[i].Latitude, docs[i].Longitude)
			dj := haversineKM(originLat, originLon, docs[j].Latitude, docs[j].Longitude)
			return di < dj
		})
	default: // SortRating
		sort.SliceStable(docs, func(i, j int) bool {
			if docs[i].AverageRating != docs[j].AverageRating {
				return docs[i].AverageRating > docs[j].AverageRating
			}
			return docs[i].ReviewsCount > docs[j].ReviewsCount
		})
	}
}

// Paginate slices items into the requested page, returning the page and
// the total page count.
func Paginate[T any](items []T, pageNumber, pageSize int) ([]T, int64) {
	total := int64(len(items))
	totalPages := (total + int64(pageSize) - 1) / int64(pageSize)
	if totalPages < 1 {
		totalPages = 1
	}
	start := (pageNumber - 1) * pageSize
	if start >= len(items) {
		return nil, totalPages
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], totalPages
}
