package query

import (
	"context"
	"strings"

	"github.com/bookn/propertysearch/datastore"
	"github.com/bookn/propertysearch/oracle"
	"github.com/bookn/propertysearch/propdoc"
)

// textScanBatch is the SCAN count hint for the manual-scan fallback over
// property:* keys, and the LIMIT of the native FT.SEARCH query.
const textScanBatch = 200

// TextStrategy implements spec §4.6's TextSearch algorithm: a native
// full-text query when the server exposes one, falling back to a manual
// scan-and-match over the normalized name/description/dynamic fields.
type TextStrategy struct{}

func (TextStrategy) Name() string { return "text" }

func (TextStrategy) Execute(ctx context.Context, req Request, store datastore.Store, oracles oracle.Oracles) (Result, error) {
	tokens := propdoc.Tokenize(propdoc.Normalize(req.SearchText))
	if len(tokens) == 0 {
		return Result{}, nil
	}

	caps := store.Capabilities(ctx)
	var docs []*propdoc.PropertyDocument
	var err error
	if caps.NativeFullText {
		docs, err = nativeTextSearch(ctx, store, tokens, req)
		if err != nil {
			return Result{}, err
		}
	}
	if len(docs) == 0 {
		docs, err = manualTextScan(ctx, store, tokens, req)
		if err != nil {
			return Result{}, err
		}
	}

	Sort(ctx, docs, req.SortBy, req.PreferredCurrency, oracles.Currency, req.Latitude, req.Longitude)
	page, totalPages := Paginate(docs, req.PageNumber, req.PageSize)
	return Result{Items: page, TotalCount: int64(len(docs)), PageNumber: req.PageNumber, PageSize: req.PageSize, TotalPages: totalPages}, nil
}

// nativeTextSearch issues the AND-of-tokens prefix query against the
// server's full-text index, constrained only by city and property-type
// tags; price, rating, amenity, dynamic-field and active/approved bounds
// are not added to the query. The index name mirrors the one
// the maintainer would have created out-of-band; a missing index simply
// yields zero hits and the caller falls back to the manual scan.
func nativeTextSearch(ctx context.Context, store datastore.Store, tokens []string, req Request) ([]*propdoc.PropertyDocument, error) {
	var clauses []string
	for _, tok := range tokens {
		clauses = append(clauses, "("+tok+"*)")
	}
	query := strings.Join(clauses, " ")
	if req.City != "" {
		query += " @city:{" + req.City + "}"
	}
	if req.PropertyType != "" {
		query += " @property_type_id:{" + req.PropertyType + "}"
	}

	reply, err := store.Do(ctx, "FT.SEARCH", propdoc.TextIndexName, query, "LIMIT", 0, textScanBatch)
	if err != nil {
		// Missing index, unsupported command, or a transient server error:
		// fall back to the manual scan rather than fail the request.
		return nil, nil
	}

	return fetchDocuments(ctx, store, parseSearchIDs(reply))
}

// parseSearchIDs extracts property ids from an FT.SEARCH reply, which
// go-redis decodes as []interface{}{totalCount, id1, fields1, id2, ...}
// when RETURN/NOCONTENT options aren't set; this query asks for ids only
// via the default reply shape, so every odd-indexed element past the
// count is an id.
func parseSearchIDs(reply any) []string {
	items, ok := reply.([]any)
	if !ok || len(items) < 1 {
		return nil
	}
	var ids []string
	for _, item := range items[1:] {
		if id, ok := item.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// manualTextScan walks the property:* hash keys in SCAN batches, decoding each
// document and keeping the ones whose normalized name, description, city,
// or dynamic field values contain every search token.
func manualTextScan(ctx context.Context, store datastore.Store, tokens []string, req Request) ([]*propdoc.PropertyDocument, error) {
	var matches []*propdoc.PropertyDocument

	var cursor uint64
	for {
		page, err := store.Scan(ctx, cursor, "property:*", textScanBatch)
		if err != nil {
			return nil, err
		}

		for _, key := range page.Keys {
			id := strings.TrimPrefix(key, "property:")
			if strings.Contains(id, ":") {
				continue // skip property:{id}:bin / property:{id}:meta
			}
			fields, err := store.HGetAll(ctx, key)
			if err != nil || len(fields) == 0 {
				continue
			}
			doc, err := propdoc.FromFields(fields)
			if err != nil {
				continue
			}
			if !doc.IsActive || !doc.IsApproved {
				continue
			}
			if !matchesAllTokens(doc, tokens) {
				continue
			}
			if req.City != "" && doc.City != req.City {
				continue
			}
			if req.PropertyType != "" && doc.PropertyTypeID != req.PropertyType && doc.PropertyTypeName != req.PropertyType {
				continue
			}
			if req.HasPriceRange && (doc.MinPrice < req.MinPrice || doc.MinPrice > req.MaxPrice) {
				continue
			}
			if req.MinRating > 0 && doc.AverageRating < req.MinRating {
				continue
			}
			if !hasAllAmenities(doc, req.RequiredAmenityIDs) {
				continue
			}
			if !matchesDynamicFields(doc, req.DynamicFieldFilters) {
				continue
			}
			matches = append(matches, doc)
		}

		cursor = page.Cursor
		if page.Done || cursor == 0 {
			break
		}
	}

	return matches, nil
}

// matchesAllTokens reports whether every search token appears as a
// substring of the document's normalized searchable text.
func matchesAllTokens(doc *propdoc.PropertyDocument, tokens []string) bool {
	haystack := doc.NameNormalized + " " + propdoc.Normalize(doc.Description) + " " + propdoc.Normalize(doc.City)
	for _, v := range doc.DynamicFields {
		haystack += " " + propdoc.Normalize(v)
	}
	for _, tok := range tokens {
		if !strings.Contains(haystack, tok) {
			return false
		}
	}
	return true
}
