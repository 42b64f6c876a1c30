package reviews

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-giftshop/internal/catalog"
	"github.com/noah-isme/backend-giftshop/internal/common"
)

// DefaultRating is applied when a review is submitted without a rating.
const DefaultRating = 5

// Store is the persistence required by Service.
type Store interface {
	Create(ctx context.Context, r Review) error
	ListApproved(ctx context.Context, productID string, limit, offset int) ([]Review, error)
	Stats(ctx context.Context, productID string) (Stats, error)
	ListFeatured(ctx context.Context, limit int) ([]Review, error)
}

// ProductFinder resolves products by slug.
type ProductFinder interface {
	GetProduct(ctx context.Context, slug string) (catalog.Product, error)
}

// Input is the body of POST /api/v1/products/{slug}/reviews.
type Input struct {
	Author  string `json:"author" validate:"required,max=120"`
	Message string `json:"message" validate:"required,max=2000"`
	Rating  int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Title   string `json:"title" validate:"max=200"`
}

// ListResult is a page of approved reviews plus product-wide stats.
type ListResult struct {
	Items []Review
	Stats Stats
	Page  int
	Limit int
}

// Service creates and lists product reviews.
type Service struct {
	Store    Store
	Products ProductFinder
	Now      func() time.Time
	NewID    func() string
}

// Create stores a review awaiting moderation.
func (s *Service) Create(ctx context.Context, slug string, in Input) (Review, error) {
	in.Author = strings.TrimSpace(in.Author)
	in.Message = strings.TrimSpace(in.Message)
	in.Title = strings.TrimSpace(in.Title)
	if err := common.ValidateStruct(in); err != nil {
		return Review{}, err
	}
	product, err := s.Products.GetProduct(ctx, slug)
	if err != nil {
		return Review{}, err
	}
	rating := in.Rating
	if rating == 0 {
		rating = DefaultRating
	}
	title := in.Title
	if title == "" {
		title = in.Author
	}
	review := Review{
		ID:        s.newID(),
		ProductID: product.ID,
		Title:     title,
		Author:    in.Author,
		Message:   in.Message,
		Rating:    rating,
		CreatedAt: s.now(),
	}
	if err := s.Store.Create(ctx, review); err != nil {
		return Review{}, err
	}
	return review, nil
}

// List returns approved reviews of the product, newest first.
func (s *Service) List(ctx context.Context, slug string, page, limit int) (ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	product, err := s.Products.GetProduct(ctx, slug)
	if err != nil {
		return ListResult{}, err
	}
	items, err := s.Store.ListApproved(ctx, product.ID, limit, (page-1)*limit)
	if err != nil {
		return ListResult{}, err
	}
	stats, err := s.Store.Stats(ctx, product.ID)
	if err != nil {
		return ListResult{}, err
	}
	stats.Average = math.Round(stats.Average*10) / 10
	return ListResult{Items: items, Stats: stats, Page: page, Limit: limit}, nil
}

// Featured returns approved reviews picked for the home page.
func (s *Service) Featured(ctx context.Context, limit int) ([]Review, error) {
	if limit < 1 || limit > 50 {
		limit = 12
	}
	return s.Store.ListFeatured(ctx, limit)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}
