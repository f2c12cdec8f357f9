package dto

// MenuItemResponse is one orderable menu line. Price is minor units of the
// platform base currency.
type MenuItemResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// StorefrontResponse is the public view of a restaurant and its menu.
type StorefrontResponse struct {
	ID              string             `json:"id"`
	Slug            string             `json:"slug"`
	Name            string             `json:"name"`
	Address         string             `json:"address,omitempty"`
	PreparationTime int                `json:"preparation_time"`
	Menu            []MenuItemResponse `json:"menu"`
}
