package domain

type Restaurant struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	ImageRef         string  `json:"image"`
	Cuisine          string  `json:"cuisine"`
	Rating           float64 `json:"rating"`
	DeliveryTime     string  `json:"deliveryTime"`
	DeliveryFeeCents int64   `json:"deliveryFeeCents"`
	Featured         bool    `json:"featured"`
}

type MenuItem struct {
	ID           string `json:"id"`
	RestaurantID string `json:"restaurantId"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	PriceCents   int64  `json:"priceCents"`
	ImageRef     string `json:"image"`
	Category     string `json:"category"`
	Popular      bool   `json:"popular"`
	Vegetarian   bool   `json:"vegetarian"`
}

// RestaurantFilter narrows the restaurant listing. Zero value lists all.
type RestaurantFilter struct {
	Cuisine string
	Query   string
}
