package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ramivz11/aurum-gestion/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateName     = errors.New("duplicate name")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
)

// InsufficientStockError carries the requested and available quantities of a
// rejected debit. It matches ErrInsufficientStock under errors.Is.
type InsufficientStockError struct {
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %d, available %d", e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Repository is the persistence contract shared by the postgres and in-memory
// stores. Every mutation that touches the stock ledger together with a sale or
// purchase record applies both in one atomic unit: either the ledger and the
// record change together, or neither does.
type Repository interface {
	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	GetProductByName(ctx context.Context, name string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, productID string, name string, costCents int64, priceCents int64) (*domain.Product, error)
	SoftDeleteProduct(ctx context.Context, productID string) error
	CreateVariant(ctx context.Context, productID string, name string) (*domain.Variant, error)
	RenameVariant(ctx context.Context, productID string, variantID string, name string) (*domain.Variant, error)

	ListBranches(ctx context.Context) ([]domain.Branch, error)
	CreateBranch(ctx context.Context, name string) (*domain.Branch, error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, customerID string) error

	// GetQuantity reports the ledger quantity for a (product, variant, branch)
	// triple addressed by display names. A missing row reads as zero.
	GetQuantity(ctx context.Context, product string, variant string, branch string) (int, error)
	ListStockLevels(ctx context.Context) ([]domain.StockLevel, error)

	ListSales(ctx context.Context, limit int) ([]domain.Sale, error)
	GetSaleByID(ctx context.Context, saleID string) (*domain.Sale, error)
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	UpdateSale(ctx context.Context, saleID string, qty int, unitPriceCents int64, method string, note string) (*domain.Sale, error)
	DeleteSale(ctx context.Context, saleID string) error

	ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error)
	GetPurchaseByID(ctx context.Context, purchaseID string) (*domain.Purchase, error)
	CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)
	UpdatePurchase(ctx context.Context, purchaseID string, qty int, totalCostCents int64, supplier string, method string, note string) (*domain.Purchase, error)
	DeletePurchase(ctx context.Context, purchaseID string) error

	BalanceSummaries(ctx context.Context) ([]domain.BalanceSummary, error)
	RecalibrateBalance(ctx context.Context, method string, observedCents int64) (*domain.BalanceSummary, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
