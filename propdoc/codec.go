package propdoc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bookn/propertysearch/apperr"
)

// dynamicFieldPrefix is the prefix dynamic fields are inlined under when a
// PropertyDocument is flattened into its hash representation.
const dynamicFieldPrefix = "df_"

// ToFields flattens a PropertyDocument into the string->string map stored
// under the property:{id} hash. Collections other than dynamic_fields are
// NOT included here — they live in their own set/sorted-set/geo keys.
func ToFields(d *PropertyDocument) map[string]string {
	f := map[string]string{
		"id":                  d.ID,
		"owner_id":            d.OwnerID,
		"name":                d.Name,
		"name_normalized":     d.NameNormalized,
		"description":         d.Description,
		"address":             d.Address,
		"city":                d.City,
		"property_type_name":  d.PropertyTypeName,
		"property_type_id":    d.PropertyTypeID,
		"min_price":           formatMoney(d.MinPrice),
		"max_price":           formatMoney(d.MaxPrice),
		"currency":            d.Currency,
		"star_rating":         strconv.FormatFloat(d.StarRating, 'f', -1, 64),
		"average_rating":      strconv.FormatFloat(d.AverageRating, 'f', -1, 64),
		"reviews_count":       strconv.FormatInt(d.ReviewsCount, 10),
		"view_count":          strconv.FormatInt(d.ViewCount, 10),
		"booking_count":       strconv.FormatInt(d.BookingCount, 10),
		"max_capacity":        strconv.FormatInt(d.MaxCapacity, 10),
		"units_count":         strconv.FormatInt(d.UnitsCount, 10),
		"popularity_score":    strconv.FormatFloat(d.PopularityScore, 'f', -1, 64),
		"latitude":            strconv.FormatFloat(d.Latitude, 'f', -1, 64),
		"longitude":           strconv.FormatFloat(d.Longitude, 'f', -1, 64),
		"is_active":           boolField(d.IsActive),
		"is_approved":         boolField(d.IsApproved),
		"is_featured":         boolField(d.IsFeatured),
		"is_indexed":          boolField(d.IsIndexed),
		"created_at":          strconv.FormatInt(int64(d.CreatedAt), 10),
		"updated_at":          strconv.FormatInt(int64(d.UpdatedAt), 10),
		"last_modified_ticks": strconv.FormatInt(int64(d.LastModifiedTicks), 10),
	}
	for k, v := range d.DynamicFields {
		f[dynamicFieldPrefix+k] = v
	}
	return f
}

func boolField(b bool) string {
	if b {
		return ActiveFlagValue
	}
	return "0"
}

func formatMoney(m Money) string {
	return strconv.FormatInt(int64(m), 10)
}

func parseMoney(s string) (Money, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Money(v), nil
}

// FromFields reverses ToFields, reconstructing a PropertyDocument from its
// flat-field map. Dynamic fields are split back out of their df_ prefix.
func FromFields(f map[string]string) (*PropertyDocument, error) {
	d := &PropertyDocument{DynamicFields: map[string]string{}}
	var err error

	d.ID = f["id"]
	d.OwnerID = f["owner_id"]
	d.Name = f["name"]
	d.NameNormalized = f["name_normalized"]
	d.Description = f["description"]
	d.Address = f["address"]
	d.City = f["city"]
	d.PropertyTypeName = f["property_type_name"]
	d.PropertyTypeID = f["property_type_id"]
	d.Currency = f["currency"]

	if d.MinPrice, err = parseMoney(f["min_price"]); err != nil {
		return nil, apperr.Wrap(apperr.EncodingError, "decode min_price", err)
	}
	if d.MaxPrice, err = parseMoney(f["max_price"]); err != nil {
		return nil, apperr.Wrap(apperr.EncodingError, "decode max_price", err)
	}
	d.StarRating = parseFloat(f["star_rating"])
	d.AverageRating = parseFloat(f["average_rating"])
	d.ReviewsCount = parseInt(f["reviews_count"])
	d.ViewCount = parseInt(f["view_count"])
	d.BookingCount = parseInt(f["booking_count"])
	d.MaxCapacity = parseInt(f["max_capacity"])
	d.UnitsCount = parseInt(f["units_count"])
	d.PopularityScore = parseFloat(f["popularity_score"])
	d.Latitude = parseFloat(f["latitude"])
	d.Longitude = parseFloat(f["longitude"])
	d.IsActive = f["is_active"] == ActiveFlagValue
	d.IsApproved = f["is_approved"] == ApprovedFlagValue
	d.IsFeatured = f["is_featured"] == "1"
	d.IsIndexed = f["is_indexed"] == "1"
	d.CreatedAt = Ticks(parseInt(f["created_at"]))
	d.UpdatedAt = Ticks(parseInt(f["updated_at"]))
	d.LastModifiedTicks = Ticks(parseInt(f["last_modified_ticks"]))

	for k, v := range f {
		if name, ok := strings.CutPrefix(k, dynamicFieldPrefix); ok {
			d.DynamicFields[name] = v
		}
	}
	return d, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

// Binary snapshot codec — a compact, length-prefixed, self-describing
// encoding for the property:{id}:bin key, used for fast whole-document
// reads that skip the hash's per-field overhead.
//
// Layout: uint32 magic, uint32 field-count, then per field: uint16 key length, key
// bytes, uint32 value length, value bytes. Collections (unit ids etc.)
// are encoded as a single newline-joined string field so the snapshot
// round-trips the full document, not just the flat map.

const snapshotMagic uint32 = 0x50524f50 // "PROP"

func EncodeSnapshot(d *PropertyDocument) ([]byte, error) {
	fields := ToFields(d)
	fields["__unit_ids"] = strings.Join(d.UnitIDs, "\n")
	fields["__unit_type_ids"] = strings.Join(d.UnitTypeIDs, "\n")
	fields["__amenity_ids"] = strings.Join(d.AmenityIDs, "\n")
	fields["__service_ids"] = strings.Join(d.ServiceIDs, "\n")
	fields["__image_urls"] = strings.Join(d.ImageURLs, "\n")

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, snapshotMagic); err != nil {
		return nil, apperr.Wrap(apperr.EncodingError, "write magic", err)
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(keys))); err != nil {
		return nil, apperr.Wrap(apperr.EncodingError, "write field count", err)
	}
	for _, k := range keys {
		v := fields[k]
		if len(k) > 0xFFFF {
			return nil, apperr.New(apperr.EncodingError, "field key too long: "+k)
		}
		binary.Write(&buf, binary.BigEndian, uint16(len(k)))
		buf.WriteString(k)
		binary.Write(&buf, binary.BigEndian, uint32(len(v)))
		buf.WriteString(v)
	}
	return buf.Bytes(), nil
}

func DecodeSnapshot(raw []byte) (*PropertyDocument, error) {
	r := bytes.NewReader(raw)
	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, apperr.Wrap(apperr.EncodingError, "read magic", err)
	}
	if magic != snapshotMagic {
		return nil, apperr.New(apperr.EncodingError, "bad snapshot magic")
	}
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, apperr.Wrap(apperr.EncodingError, "read field count", err)
	}
	fields := make(map[string]string, count)
	for i := uint32(0); i < count; i++ {
		var klen uint16
		if err := binary.Read(r, binary.BigEndian, &klen); err != nil {
			return nil, apperr.Wrap(apperr.EncodingError, "read key length", err)
		}
		kbuf := make([]byte, klen)
		if _, err := r.Read(kbuf); err != nil {
			return nil, apperr.Wrap(apperr.EncodingError, "read key", err)
		}
		var vlen uint32
		if err := binary.Read(r, binary.BigEndian, &vlen); err != nil {
			return nil, apperr.Wrap(apperr.EncodingError, "read value length", err)
		}
		vbuf := make([]byte, vlen)
		if _, err := r.Read(vbuf); err != nil {
			return nil, apperr.Wrap(apperr.EncodingError, "read value", err)
		}
		fields[string(kbuf)] = string(vbuf)
	}

	d, err := FromFields(fields)
	if err != nil {
		return nil, err
	}
	d.UnitIDs = splitNonEmpty(fields["__unit_ids"])
	d.UnitTypeIDs = splitNonEmpty(fields["__unit_type_ids"])
	d.AmenityIDs = splitNonEmpty(fields["__amenity_ids"])
	d.ServiceIDs = splitNonEmpty(fields["__service_ids"])
	d.ImageURLs = splitNonEmpty(fields["__image_urls"])
	delete(d.DynamicFields, "unit_ids")
	return d, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// validateFieldKey guards against malformed dynamic field names that could
// collide with the df_ prefix boundary or contain key-delimiting runes.
func validateFieldKey(name string) error {
	if name == "" {
		return apperr.New(apperr.InvalidInput, "dynamic field name must not be empty")
	}
	if strings.ContainsAny(name, ":\n") {
		return apperr.New(apperr.InvalidInput, fmt.Sprintf("dynamic field name %q contains reserved characters", name))
	}
	return nil
}
