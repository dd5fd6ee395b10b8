package maintainer

import "github.com/bookn/propertysearch/propdoc"

// tagSet computes every tag-family key a property document currently
// belongs to. Diffing two calls to tagSet (old vs new) tells the maintainer
// exactly which tag sets need a member added or removed, without ever
// reading the tag sets themselves back from the datastore.
func tagSet(d *propdoc.PropertyDocument) map[string]struct{} {
	set := make(map[string]struct{})
	if d.PropertyTypeID != "" {
		set[propdoc.TagTypeKey(d.PropertyTypeID)] = struct{}{}
	}
	if d.City != "" {
		set[propdoc.TagCityKey(d.City)] = struct{}{}
	}
	for _, a := range d.AmenityIDs {
		set[propdoc.TagAmenityKey(a)] = struct{}{}
	}
	for _, s := range d.ServiceIDs {
		set[propdoc.TagServiceKey(s)] = struct{}{}
	}
	if d.IsFeatured {
		set[propdoc.TagFeaturedKey] = struct{}{}
	}
	if d.HasAdultsAttribute() {
		set[propdoc.TagPropertyHasAdultsKey] = struct{}{}
	}
	if d.HasChildrenAttribute() {
		set[propdoc.TagPropertyHasChildrenKey] = struct{}{}
	}
	for field, value := range d.DynamicFields {
		set[propdoc.DynamicValueKey(field, value)] = struct{}{}
	}
	return set
}

// diffTags returns the tag keys old no longer belongs to (removals) and
// the ones new newly belongs to (additions), so the maintainer only
// touches tag sets whose membership actually changed.
func diffTags(old, updated *propdoc.PropertyDocument) (removals, additions []string) {
	var oldSet, newSet map[string]struct{}
	if old != nil {
		oldSet = tagSet(old)
	}
	if updated != nil {
		newSet = tagSet(updated)
	}
	for k := range oldSet {
		if _, ok := newSet[k]; !ok {
			removals = append(removals, k)
		}
	}
	for k := range newSet {
		if _, ok := oldSet[k]; !ok {
			additions = append(additions, k)
		}
	}
	return removals, additions
}

// sortIndexMemberships returns the (key, score) pairs every sorted index
// this document participates in should hold.
func sortIndexMemberships(d *propdoc.PropertyDocument) map[string]float64 {
	return map[string]float64{
		propdoc.IdxPrice:       d.MinPrice.Float64(),
		propdoc.IdxRating:      d.AverageRating,
		propdoc.IdxCreated:     float64(d.CreatedAt),
		propdoc.IdxBookings:    float64(d.BookingCount),
		propdoc.IdxPopularity:  d.PopularityScore,
		propdoc.IdxMaxAdults:   float64(d.MaxCapacity),
		propdoc.IdxMaxChildren: float64(d.MaxCapacity),
		propdoc.IdxMaxCapacity: float64(d.MaxCapacity),
	}
}
