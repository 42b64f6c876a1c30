package main

import (
	"context"
	_ "embed"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/backend-giftshop/internal/catalog"
	"github.com/noah-isme/backend-giftshop/internal/content"
	"github.com/noah-isme/backend-giftshop/internal/db"
)

//go:embed seed.yaml
var seedFile []byte

type seedProduct struct {
	Title            string   `yaml:"title"`
	Slug             string   `yaml:"slug"`
	ShortDescription string   `yaml:"shortDescription"`
	Price            float64  `yaml:"price"`
	PromoPrice       *float64 `yaml:"promoPrice"`
	PriceRange       string   `yaml:"priceRange"`
	Quantity         int      `yaml:"quantity"`
	Category         string   `yaml:"category"`
	SubCategory      string   `yaml:"subCategory"`
	ImageURLs        []string `yaml:"imageUrls"`
	BestSeller       bool     `yaml:"bestSeller"`
	ShowInquiryForm  bool     `yaml:"showInquiryForm"`
}

type seedLink struct {
	Label string `yaml:"label"`
	URL   string `yaml:"url"`
}

type seedData struct {
	Banner struct {
		Messages []string `yaml:"messages"`
	} `yaml:"banner"`
	Promotion struct {
		Active   bool      `yaml:"active"`
		ImageURL string    `yaml:"imageUrl"`
		Link     *seedLink `yaml:"link"`
	} `yaml:"promotion"`
	Products []seedProduct `yaml:"products"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	var data seedData
	if err := yaml.Unmarshal(seedFile, &data); err != nil {
		log.Fatalf("Failed to parse seed data: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := db.RunMigrations(dbURL); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}
	pool, err := db.Connect(ctx, dbURL, "giftshop-seeder")
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	products := &catalog.PGStore{DB: pool}
	log.Println("Seeding products...")
	for _, p := range data.Products {
		id, err := products.UpsertProduct(ctx, p.product())
		if err != nil {
			log.Fatalf("Failed to seed product %s: %v", p.Slug, err)
		}
		log.Printf("  %s -> %s", p.Slug, id)
	}

	log.Println("Seeding site content...")
	site := &content.Service{Store: &content.PGStore{DB: pool}}
	if err := site.SaveBanner(ctx, content.Banner{Messages: data.Banner.Messages}); err != nil {
		log.Fatalf("Failed to seed banner: %v", err)
	}
	promo := content.Promotion{Active: data.Promotion.Active, ImageURL: data.Promotion.ImageURL}
	if data.Promotion.Link != nil {
		promo.Link = &content.Link{Label: data.Promotion.Link.Label, URL: data.Promotion.Link.URL}
	}
	if err := site.SavePromotion(ctx, promo); err != nil {
		log.Fatalf("Failed to seed promotion: %v", err)
	}

	log.Println("Seeding completed successfully!")
}

func (p seedProduct) product() catalog.Product {
	return catalog.Product{
		Title:            p.Title,
		Slug:             p.Slug,
		ShortDescription: p.ShortDescription,
		Price:            p.Price,
		PromoPrice:       p.PromoPrice,
		PriceRange:       p.PriceRange,
		Quantity:         p.Quantity,
		Category:         p.Category,
		SubCategory:      p.SubCategory,
		ImageURLs:        p.ImageURLs,
		BestSeller:       p.BestSeller,
		ShowInquiryForm:  p.ShowInquiryForm,
	}
}
