package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedSettings(db)
	seedProducts(db)
	seedCoupons(db)

	log.Println("Seeding completed successfully!")
}

func seedSettings(db *sql.DB) {
	fmt.Println("Seeding site settings...")
	_, err := db.Exec(`
		INSERT INTO site_settings (id, vat_rate, shipping_fee, free_shipping_threshold)
		VALUES (1, 18, 29.90, 500)
		ON CONFLICT (id) DO NOTHING;
	`)
	if err != nil {
		log.Printf("Failed to seed site settings: %v", err)
	}
}

func seedProducts(db *sql.DB) {
	// A zero VAT rate falls back to the site-wide rate.
	products := []struct {
		Name    string
		Slug    string
		Price   string
		VatRate string
	}{
		{"Electric Kettle", "electric-kettle", "100.00", "20"},
		{"Ceramic Mug", "ceramic-mug", "50.00", "10"},
		{"Turkish Coffee Pot", "turkish-coffee-pot", "249.90", "0"},
		{"Tea Glass Set (6)", "tea-glass-set", "189.50", "0"},
		{"Linen Table Cloth", "linen-table-cloth", "420.00", "20"},
		{"Children's Picture Book", "picture-book", "85.00", "0"},
		{"Olive Oil Soap", "olive-oil-soap", "39.99", "1"},
	}

	fmt.Println("Seeding products...")
	for _, p := range products {
		_, err := db.Exec(`
			INSERT INTO products (name, slug, price, vat_rate, is_active)
			VALUES ($1, $2, $3, $4, TRUE)
			ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, vat_rate = EXCLUDED.vat_rate;
		`, p.Name, p.Slug, p.Price, p.VatRate)
		if err != nil {
			log.Printf("Failed to upsert product %s: %v", p.Slug, err)
		}
	}
}

func seedCoupons(db *sql.DB) {
	now := time.Now()
	coupons := []struct {
		Code     string
		Type     string
		Value    string
		Minimum  sql.NullString
		Start    time.Time
		End      time.Time
		IsActive bool
	}{
		{"WELCOME10", "percentage", "10", sql.NullString{}, now.AddDate(0, -1, 0), now.AddDate(1, 0, 0), true},
		{"SAVE50", "fixed", "50", sql.NullString{String: "250", Valid: true}, now.AddDate(0, -1, 0), now.AddDate(0, 6, 0), true},
		{"BIGSPENDER", "percentage", "15", sql.NullString{String: "1000", Valid: true}, now, now.AddDate(0, 3, 0), true},
		{"EXPIRED5", "percentage", "5", sql.NullString{}, now.AddDate(-1, 0, 0), now.AddDate(0, -1, 0), true},
		{"PAUSED20", "percentage", "20", sql.NullString{}, now.AddDate(0, -1, 0), now.AddDate(1, 0, 0), false},
	}

	fmt.Println("Seeding coupons...")
	for _, c := range coupons {
		_, err := db.Exec(`
			INSERT INTO coupons (code, discount_type, discount_value, min_cart_amount, start_date, end_date, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (code) DO NOTHING;
		`, c.Code, c.Type, c.Value, c.Minimum, c.Start, c.End, c.IsActive)
		if err != nil {
			log.Printf("Failed to seed coupon %s: %v", c.Code, err)
		}
	}
}
