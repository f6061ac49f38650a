package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/threadline/storefront/internal/domain/coupon"
	"github.com/threadline/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Variants    []variantJSON   `json:"variants"`
}

type variantJSON struct {
	SKU           string           `json:"sku"`
	Size          string           `json:"size"`
	Color         string           `json:"color"`
	Stock         int              `json:"stock"`
	PriceOverride *decimal.Decimal `json:"priceOverride"`
}

const (
	upsertProductSQL = `INSERT INTO products (id, name, description, price, category, image, stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			image = EXCLUDED.image,
			stock = EXCLUDED.stock`

	upsertVariantSQL = `INSERT INTO product_variants (product_id, sku, size, color, stock, price_override)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (product_id, size, color) DO UPDATE SET
			sku = EXCLUDED.sku,
			stock = EXCLUDED.stock,
			price_override = EXCLUDED.price_override`
)

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		total := 0
		for _, v := range p.Variants {
			total += v.Stock
		}

		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Description, p.Price, p.Category, p.Image, total,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		for _, v := range p.Variants {
			if _, err := pool.Exec(ctx, upsertVariantSQL,
				p.ID, v.SKU, v.Size, v.Color, v.Stock, v.PriceOverride,
			); err != nil {
				return errors.Wrapf(err, "upsert variant %s/%s/%s", p.ID, v.Size, v.Color)
			}
		}

		slog.Info("upserted product",
			slog.String("id", p.ID),
			slog.String("name", p.Name),
			slog.Int("variants", len(p.Variants)),
		)
	}

	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding default coupons")

	repo := postgres.NewCouponRepository(pool)
	until := time.Now().AddDate(1, 0, 0)

	rules := []coupon.Rule{
		{
			Code:        "SAVE10",
			PercentOff:  decimal.NewFromInt(10),
			Description: "10% off entire order",
			ValidUntil:  &until,
			Active:      true,
		},
		{
			Code:        "SAVE20",
			PercentOff:  decimal.NewFromInt(20),
			Description: "20% off entire order",
			ValidUntil:  &until,
			Active:      true,
		},
		{
			Code:        "WELCOME",
			PercentOff:  decimal.NewFromInt(15),
			Description: "Welcome: 15% off your first order",
			Active:      true,
		},
	}

	for i := range rules {
		if err := repo.Upsert(ctx, &rules[i]); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", rules[i].Code)
		}

		slog.Info("upserted coupon",
			slog.String("code", rules[i].Code),
			slog.String("description", rules[i].Description),
		)
	}

	return nil
}
