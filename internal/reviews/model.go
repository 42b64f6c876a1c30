package reviews

import "time"

// Review is a customer review attached to a product.
type Review struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"productId"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Message    string    `json:"message"`
	Rating     int       `json:"rating"`
	Approved   bool      `json:"approved"`
	InHomePage bool      `json:"inHomePage"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Stats aggregates approved reviews of a product.
type Stats struct {
	Count   int64   `json:"count"`
	Average float64 `json:"average"`
}
