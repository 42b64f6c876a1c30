package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/backend-giftshop/internal/cache"
)

// Store reads and writes raw JSON documents.
type Store interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
}

// Service serves banner and promotion content through the layered cache.
type Service struct {
	Store Store
	Cache *cache.Layered
}

// Banner returns the announcement messages. A banner that was never saved is empty.
func (s *Service) Banner(ctx context.Context) (Banner, error) {
	var b Banner
	if err := s.load(ctx, DocBanner, &b); err != nil && !errors.Is(err, ErrNotFound) {
		return Banner{}, err
	}
	msgs := make([]string, 0, len(b.Messages))
	for _, m := range b.Messages {
		if m = strings.TrimSpace(m); m != "" {
			msgs = append(msgs, m)
		}
	}
	b.Messages = msgs
	return b, nil
}

// ActivePromotion returns the promotion and whether it should be shown.
func (s *Service) ActivePromotion(ctx context.Context) (Promotion, bool, error) {
	var p Promotion
	if err := s.load(ctx, DocPromotion, &p); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Promotion{}, false, nil
		}
		return Promotion{}, false, err
	}
	if !p.Active || strings.TrimSpace(p.ImageURL) == "" {
		return p, false, nil
	}
	return p, true, nil
}

// SaveBanner replaces the banner and drops its cached copy.
func (s *Service) SaveBanner(ctx context.Context, b Banner) error {
	return s.save(ctx, DocBanner, b)
}

// SavePromotion replaces the promotion and drops its cached copy.
func (s *Service) SavePromotion(ctx context.Context, p Promotion) error {
	return s.save(ctx, DocPromotion, p)
}

func (s *Service) load(ctx context.Context, name string, dst any) error {
	key := cache.KeyContent(name)
	if ok, err := s.Cache.GetJSON(ctx, key, dst); err == nil && ok {
		return nil
	}
	if s.Store == nil {
		return errors.New("content: store not configured")
	}
	data, err := s.Store.Get(ctx, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	_ = s.Cache.SetJSON(ctx, key, dst)
	return nil
}

func (s *Service) save(ctx context.Context, name string, v any) error {
	if s.Store == nil {
		return errors.New("content: store not configured")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.Store.Put(ctx, name, data); err != nil {
		return err
	}
	return s.Cache.Invalidate(ctx, cache.KeyContent(name))
}
