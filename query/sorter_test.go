package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bookn/propertysearch/propdoc"
)

type fakeRates struct{ rates map[string]float64 }

func (f fakeRates) Rate(ctx context.Context, from, to string) (float64, bool, error) {
	rate, ok := f.rates[from+">"+to]
	return rate, ok, nil
}

func TestSortPriceAscConvertsCurrencyAndSortsMissingRateLast(t *testing.T) {
	docs := []*Document{
		{ID: "eur-cheap", Currency: "EUR", MinPrice: propdoc.MoneyFromFloat(10)},
		{ID: "usd", Currency: "USD", MinPrice: propdoc.MoneyFromFloat(20)},
		{ID: "xyz-norate", Currency: "XYZ", MinPrice: propdoc.MoneyFromFloat(1)},
	}
	rates := fakeRates{rates: map[string]float64{"EUR>USD": 1.1}}

	Sort(context.Background(), docs, SortPriceAsc, "USD", rates, 0, 0)

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"eur-cheap", "usd", "xyz-norate"}, ids)
}

func TestSortRatingBreaksTiesByReviewCount(t *testing.T) {
	docs := []*Document{
		{ID: "a", AverageRating: 4.0, ReviewsCount: 5},
		{ID: "b", AverageRating: 4.5, ReviewsCount: 1},
		{ID: "c", AverageRating: 4.0, ReviewsCount: 50},
	}
	Sort(context.Background(), docs, SortRating, "", nil, 0, 0)
	assert.Equal(t, "b", docs[0].ID)
	assert.Equal(t, "c", docs[1].ID)
	assert.Equal(t, "a", docs[2].ID)
}

func TestSortDistanceOrdersByHaversine(t *testing.T) {
	docs := []*Document{
		{ID: "far", Latitude: 20.0, Longitude: 50.0},
		{ID: "near", Latitude: 15.31, Longitude: 44.21},
	}
	Sort(context.Background(), docs, SortDistance, "", nil, 15.3, 44.2)
	assert.Equal(t, "near", docs[0].ID)
}

func TestPaginateSlicesAndReportsTotalPages(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	page, total := Paginate(items, 2, 2)
	assert.Equal(t, []int{3, 4}, page)
	assert.Equal(t, int64(3), total)

	page, total = Paginate(items, 10, 2)
	assert.Nil(t, page)
	assert.Equal(t, int64(3), total)
}
