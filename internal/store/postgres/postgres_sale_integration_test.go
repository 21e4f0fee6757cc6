package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Ramivz11/aurum-gestion/internal/domain"
	"github.com/Ramivz11/aurum-gestion/internal/store"
)

func TestSaleDebitsAndShortfallRollsBack(t *testing.T) {
	databaseURL := os.Getenv("AURUM_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set AURUM_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productName := fmt.Sprintf("Producto IT %d", stamp)
	branchName := fmt.Sprintf("Sucursal IT %d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE product_id IN (SELECT id FROM products WHERE name = $1)`, productName)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM purchases WHERE product_id IN (SELECT id FROM products WHERE name = $1)`, productName)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_levels WHERE product_id IN (SELECT id FROM products WHERE name = $1)`, productName)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE name = $1`, productName)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM branches WHERE name = $1`, branchName)
	})

	if _, err := s.CreateProduct(ctx, domain.Product{Name: productName, CostCents: 100000, PriceCents: 180000, Active: true}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := s.CreateBranch(ctx, branchName); err != nil {
		t.Fatalf("create branch: %v", err)
	}

	if _, err := s.CreatePurchase(ctx, domain.Purchase{
		Product:        productName,
		Branch:         branchName,
		Qty:            5,
		TotalCostCents: 500000,
		Method:         domain.PayCash,
		RecordedAt:     time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	sale, err := s.CreateSale(ctx, domain.Sale{
		Product:        productName,
		Branch:         branchName,
		Qty:            3,
		UnitPriceCents: 180000,
		TotalCents:     540000,
		Method:         domain.PayCash,
		RecordedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.TotalCents != 540000 {
		t.Fatalf("expected total 540000, got %d", sale.TotalCents)
	}

	qty, err := s.GetQuantity(ctx, productName, "", branchName)
	if err != nil {
		t.Fatalf("get quantity: %v", err)
	}
	if qty != 2 {
		t.Fatalf("expected 2 units after sale, got %d", qty)
	}

	_, err = s.CreateSale(ctx, domain.Sale{
		Product:        productName,
		Branch:         branchName,
		Qty:            10,
		UnitPriceCents: 180000,
		TotalCents:     1800000,
		Method:         domain.PayCash,
		RecordedAt:     time.Now().UTC(),
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected shortfall, got %v", err)
	}
	var shortfall *store.InsufficientStockError
	if !errors.As(err, &shortfall) || shortfall.Requested != 10 || shortfall.Available != 2 {
		t.Fatalf("expected requested=10 available=2, got %v", err)
	}

	qty, err = s.GetQuantity(ctx, productName, "", branchName)
	if err != nil {
		t.Fatalf("get quantity after rollback: %v", err)
	}
	if qty != 2 {
		t.Fatalf("expected stock unchanged at 2 after rollback, got %d", qty)
	}
}
