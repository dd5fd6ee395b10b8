package searchcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/bookn/propertysearch/query"
)

// Fingerprint returns a stable hash over a canonicalized search request and
// the index-version epoch current at the time of the search, so a bump of
// the epoch invalidates every previously cached page without needing to
// touch the cache itself.
func Fingerprint(req query.Request, epoch int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "epoch=%d\n", epoch)
	fmt.Fprintf(&b, "text=%s\n", req.SearchText)
	fmt.Fprintf(&b, "city=%s\n", req.City)
	fmt.Fprintf(&b, "type=%s\n", req.PropertyType)
	fmt.Fprintf(&b, "unit_type=%s\n", req.UnitTypeID)
	fmt.Fprintf(&b, "price=%t:%d:%d:%s\n", req.HasPriceRange, req.MinPrice, req.MaxPrice, req.PreferredCurrency)
	fmt.Fprintf(&b, "rating=%g\n", req.MinRating)
	fmt.Fprintf(&b, "adults=%d\n", req.MinAdults)
	fmt.Fprintf(&b, "children=%d\n", req.MinChildren)
	fmt.Fprintf(&b, "guests=%d\n", req.GuestsCount)
	fmt.Fprintf(&b, "dates=%t:%d:%d\n", req.HasDateRange, req.CheckIn, req.CheckOut)
	fmt.Fprintf(&b, "geo=%t:%g:%g:%g\n", req.HasCoordinates, req.Latitude, req.Longitude, req.RadiusKM)
	fmt.Fprintf(&b, "sort=%s\n", req.SortBy)
	fmt.Fprintf(&b, "page=%d:%d\n", req.PageNumber, req.PageSize)

	amenities := append([]string(nil), req.RequiredAmenityIDs...)
	sort.Strings(amenities)
	fmt.Fprintf(&b, "amenities=%s\n", strings.Join(amenities, ","))

	services := append([]string(nil), req.ServiceIDs...)
	sort.Strings(services)
	fmt.Fprintf(&b, "services=%s\n", strings.Join(services, ","))

	fields := make([]string, 0, len(req.DynamicFieldFilters))
	for k, v := range req.DynamicFieldFilters {
		fields = append(fields, k+"="+v)
	}
	sort.Strings(fields)
	fmt.Fprintf(&b, "dynamic=%s\n", strings.Join(fields, ","))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
