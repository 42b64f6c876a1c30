package cache

import (
	"fmt"
	"strings"
)

// KeyCategories caches the category list.
const KeyCategories = "catalog:categories"

// KeyCatalogList returns the key of one page of a filtered product listing.
// bestSeller is "true", "false" or "any".
func KeyCatalogList(category, bestSeller string, page, limit int) string {
	return fmt.Sprintf("catalog:products:list:%s:%s:%d:%d", strings.ToLower(category), bestSeller, page, limit)
}

// KeyProduct returns the key of a product detail by slug.
func KeyProduct(slug string) string {
	return "catalog:products:detail:" + slug
}

// KeyContent returns the key of a site-wide content document such as "banner".
func KeyContent(name string) string {
	return "content:" + name
}
