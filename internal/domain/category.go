package domain

// Category classifies a place. The set is fixed; CategoryOther is the
// catch-all for anything that does not fit the named categories.
type Category string

const (
	CategoryRestaurant Category = "restaurant"
	CategoryCafe       Category = "cafe"
	CategoryPark       Category = "park"
	CategoryMuseum     Category = "museum"
	CategoryBeach      Category = "beach"
	CategoryLandmark   Category = "landmark"
	CategoryShopping   Category = "shopping"
	CategoryNightlife  Category = "nightlife"
	CategoryOther      Category = "other"
)

// Categories lists every valid category, in display order.
var Categories = []Category{
	CategoryRestaurant,
	CategoryCafe,
	CategoryPark,
	CategoryMuseum,
	CategoryBeach,
	CategoryLandmark,
	CategoryShopping,
	CategoryNightlife,
	CategoryOther,
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}
