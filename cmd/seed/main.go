package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/ikkim/storefront-backend/config"
	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/internal/app/repository"
	"github.com/ikkim/storefront-backend/internal/db"
	"github.com/ikkim/storefront-backend/pkg/util"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// Catalog sheet columns: sku, name, price, stock, category, image_url, description.
const (
	colSKU = iota
	colName
	colPrice
	colStock
	colCategory
	colImageURL
	colDescription
	minColumns = colStock + 1
)

type catalogRow struct {
	Product  model.Product
	Category string
}

func main() {
	yes := flag.Bool("y", false, "import without asking for confirmation")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Usage: go run cmd/seed/main.go [-y] <catalog.xlsx>")
	}
	filePath := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	if err := db.Initialize(&cfg.Database); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	fmt.Printf("Reading XLSX file: %s\n", filePath)
	rows, skipped, err := readCatalogFromXLSX(filePath)
	if err != nil {
		log.Fatal("Failed to read XLSX:", err)
	}
	fmt.Printf("Products to import: %d (skipped rows: %d)\n", len(rows), skipped)

	if !*yes {
		fmt.Print("Do you want to proceed with the import? (yes/no): ")
		var confirm string
		fmt.Scanln(&confirm)
		if confirm != "yes" && confirm != "y" {
			fmt.Println("Import cancelled.")
			return
		}
	}

	imported, err := importCatalog(db.GetDB(), rows)
	if err != nil {
		log.Fatal("Failed to import catalog:", err)
	}
	fmt.Printf("Import completed: %d products upserted\n", imported)

	email := os.Getenv("SEED_ADMIN_EMAIL")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if email != "" && password != "" {
		created, err := ensureAdmin(repository.NewUserRepository(db.GetDB()), email, password)
		if err != nil {
			log.Fatal("Failed to create admin user:", err)
		}
		if created {
			fmt.Printf("Admin user created: %s\n", email)
		} else {
			fmt.Printf("Admin user already exists: %s\n", email)
		}
	}
}

func readCatalogFromXLSX(filePath string) ([]catalogRow, int, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, 0, fmt.Errorf("no sheets found in XLSX file")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, 0, fmt.Errorf("no data found in XLSX file")
	}

	products, skipped := parseCatalogRows(rows[1:]) // header row
	return products, skipped, nil
}

// parseCatalogRows converts sheet rows into products. Rows that are short,
// unpriced or repeat an earlier SKU are skipped.
func parseCatalogRows(rows [][]string) ([]catalogRow, int) {
	var out []catalogRow
	seen := make(map[string]bool)
	skipped := 0

	cell := func(row []string, i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	for _, row := range rows {
		if len(row) < minColumns {
			skipped++
			continue
		}

		sku := strings.ToUpper(cell(row, colSKU))
		name := cell(row, colName)
		if sku == "" || name == "" || seen[sku] {
			skipped++
			continue
		}

		price, err := strconv.ParseFloat(cell(row, colPrice), 64)
		if err != nil || price <= 0 {
			skipped++
			continue
		}
		stock, err := strconv.Atoi(cell(row, colStock))
		if err != nil || stock < 0 {
			skipped++
			continue
		}

		seen[sku] = true
		out = append(out, catalogRow{
			Product: model.Product{
				SKU:         sku,
				Name:        name,
				Price:       util.RoundMoney(price),
				Stock:       stock,
				ImageURL:    cell(row, colImageURL),
				Description: cell(row, colDescription),
			},
			Category: cell(row, colCategory),
		})
	}
	return out, skipped
}

func importCatalog(conn *gorm.DB, rows []catalogRow) (int, error) {
	products := repository.NewProductRepository(conn)
	categories := make(map[string]uint)

	for i := range rows {
		row := &rows[i]
		if row.Category != "" {
			id, ok := categories[row.Category]
			if !ok {
				category := model.Category{Name: row.Category}
				if err := conn.Where("name = ?", row.Category).FirstOrCreate(&category).Error; err != nil {
					return i, fmt.Errorf("category %q: %w", row.Category, err)
				}
				id = category.ID
				categories[row.Category] = id
			}
			row.Product.CategoryID = &id
		}
		if err := products.UpsertBySKU(&row.Product); err != nil {
			return i, fmt.Errorf("product %s: %w", row.Product.SKU, err)
		}
	}
	return len(rows), nil
}

// ensureAdmin creates the back-office account unless the email is taken.
func ensureAdmin(users repository.UserRepository, email, password string) (bool, error) {
	if _, err := users.FindByEmail(email); err == nil {
		return false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return false, err
	}
	admin := &model.User{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		Name:         "Administrator",
		Role:         model.RoleAdmin,
	}
	if err := users.Create(admin); err != nil {
		return false, err
	}
	return true, nil
}
