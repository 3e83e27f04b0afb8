package model

import "time"

// Listing は出品（商品）。画像は ListingImage として別テーブルに保持する
type Listing struct {
	ID        string    `json:"id"`
	SellerID  string    `json:"seller_id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Images []ListingImage `json:"images,omitempty"`
}

// ListingImage は出品に紐付くコミット済み画像
type ListingImage struct {
	ListingID string    `json:"listing_id"`
	URL       string    `json:"url"`
	Position  int       `json:"position"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	ByteSize  int64     `json:"byte_size"`
	CreatedAt time.Time `json:"created_at"`
}
