package content

// Banner is the scrolling announcement bar shown above the storefront header.
type Banner struct {
	Messages []string `json:"messages"`
}

// Link points somewhere from a promotion.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Promotion is the pop-up advertising the current campaign.
type Promotion struct {
	ImageURL string `json:"imageUrl"`
	Link     *Link  `json:"link,omitempty"`
	Active   bool   `json:"active"`
}

// Document names in site_globals.
const (
	DocBanner    = "banner"
	DocPromotion = "promotion"
)
