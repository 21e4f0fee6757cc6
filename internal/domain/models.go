package domain

import "time"

// Payment methods for sales, purchases and balance accounts.
const (
	PayCash     = "cash"
	PayTransfer = "transfer"
)

func IsPaymentMethod(method string) bool {
	return method == PayCash || method == PayTransfer
}

// PaymentMethods lists every method a balance account exists for.
var PaymentMethods = []string{PayCash, PayTransfer}

const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CostCents  int64     `json:"cost_cents"`
	PriceCents int64     `json:"price_cents"`
	Active     bool      `json:"active"`
	Variants   []Variant `json:"variants,omitempty"`
}

type Variant struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
}

type Branch struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
}

// StockLevel is one row of the ledger: quantity on hand for a
// (product, variant, branch) triple. Variant is empty for the base SKU.
type StockLevel struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	BranchID  string `json:"branch_id"`
	Product   string `json:"product"`
	Variant   string `json:"variant,omitempty"`
	Branch    string `json:"branch"`
	Qty       int    `json:"qty"`
}

type Sale struct {
	ID             string    `json:"id"`
	RecordedAt     time.Time `json:"recorded_at"`
	ProductID      string    `json:"product_id"`
	VariantID      string    `json:"variant_id,omitempty"`
	BranchID       string    `json:"branch_id"`
	Product        string    `json:"product"`
	Variant        string    `json:"variant,omitempty"`
	Branch         string    `json:"branch"`
	Qty            int       `json:"qty"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	TotalCents     int64     `json:"total_cents"`
	Method         string    `json:"method"`
	Note           string    `json:"note,omitempty"`
	CustomerID     string    `json:"customer_id,omitempty"`
	Customer       string    `json:"customer,omitempty"`
}

type Purchase struct {
	ID             string    `json:"id"`
	RecordedAt     time.Time `json:"recorded_at"`
	ProductID      string    `json:"product_id"`
	VariantID      string    `json:"variant_id,omitempty"`
	BranchID       string    `json:"branch_id"`
	Product        string    `json:"product"`
	Variant        string    `json:"variant,omitempty"`
	Branch         string    `json:"branch"`
	Qty            int       `json:"qty"`
	TotalCostCents int64     `json:"total_cost_cents"`
	Supplier       string    `json:"supplier,omitempty"`
	Method         string    `json:"method"`
	Note           string    `json:"note,omitempty"`
}

// BalanceSummary is the derived cash position for one payment method:
// current = base + sales - purchases over the full history.
type BalanceSummary struct {
	Method         string `json:"method"`
	BaseCents      int64  `json:"base_cents"`
	SalesCents     int64  `json:"sales_cents"`
	PurchasesCents int64  `json:"purchases_cents"`
	CurrentCents   int64  `json:"current_cents"`
}

type ProductCreateRequest struct {
	Name       string `json:"name" validate:"required"`
	CostCents  int64  `json:"cost_cents" validate:"min=0"`
	PriceCents int64  `json:"price_cents" validate:"min=0"`
}

// ProductUpdateRequest renames a product and refreshes its cost/price.
type ProductUpdateRequest struct {
	Name       string `json:"name" validate:"required"`
	CostCents  int64  `json:"cost_cents" validate:"min=0"`
	PriceCents int64  `json:"price_cents" validate:"min=0"`
}

type VariantCreateRequest struct {
	Name string `json:"name" validate:"required"`
}

type VariantUpdateRequest struct {
	Name string `json:"name" validate:"required"`
}

type BranchCreateRequest struct {
	Name string `json:"name" validate:"required"`
}

type CustomerCreateRequest struct {
	Name     string `json:"name" validate:"required"`
	Location string `json:"location"`
}

type SaleCreateRequest struct {
	Product        string `json:"product" validate:"required"`
	Variant        string `json:"variant"`
	Branch         string `json:"branch" validate:"required"`
	Qty            int    `json:"qty" validate:"gt=0"`
	UnitPriceCents int64  `json:"unit_price_cents" validate:"min=0"`
	Method         string `json:"method" validate:"required,oneof=cash transfer"`
	Note           string `json:"note"`
	CustomerID     string `json:"customer_id"`
}

// SaleUpdateRequest edits an existing sale. Product, variant and branch
// are fixed once a sale is recorded.
type SaleUpdateRequest struct {
	Qty            int    `json:"qty" validate:"gt=0"`
	UnitPriceCents int64  `json:"unit_price_cents" validate:"min=0"`
	Method         string `json:"method" validate:"required,oneof=cash transfer"`
	Note           string `json:"note"`
}

type PurchaseCreateRequest struct {
	Product        string `json:"product" validate:"required"`
	Variant        string `json:"variant"`
	Branch         string `json:"branch" validate:"required"`
	Qty            int    `json:"qty" validate:"gt=0"`
	TotalCostCents int64  `json:"total_cost_cents" validate:"min=0"`
	Supplier       string `json:"supplier"`
	Method         string `json:"method" validate:"required,oneof=cash transfer"`
	Note           string `json:"note"`
}

type PurchaseUpdateRequest struct {
	Qty            int    `json:"qty" validate:"gt=0"`
	TotalCostCents int64  `json:"total_cost_cents" validate:"min=0"`
	Supplier       string `json:"supplier"`
	Method         string `json:"method" validate:"required,oneof=cash transfer"`
	Note           string `json:"note"`
}

type RecalibrateRequest struct {
	Method        string `json:"method" validate:"required,oneof=cash transfer"`
	ObservedCents int64  `json:"observed_cents"`
}

// DashboardRow is one product line of the stock overview: quantity per
// branch plus the row total.
type DashboardRow struct {
	Product    string         `json:"product"`
	Variant    string         `json:"variant,omitempty"`
	CostCents  int64          `json:"cost_cents"`
	PriceCents int64          `json:"price_cents"`
	ByBranch   map[string]int `json:"by_branch"`
	TotalQty   int            `json:"total_qty"`
}

type DashboardReport struct {
	GeneratedAt          time.Time        `json:"generated_at"`
	Rows                 []DashboardRow   `json:"rows"`
	TotalUnits           int              `json:"total_units"`
	InventoryCostCents   int64            `json:"inventory_cost_cents"`
	InventoryRetailCents int64            `json:"inventory_retail_cents"`
	Balances             []BalanceSummary `json:"balances"`
	PatrimonyCents       int64            `json:"patrimony_cents"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type UserCreateRequest struct {
	Username string `json:"username" validate:"required,min=4"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,oneof=admin seller"`
}

// UserInfo is the public view of an account, without the credential.
type UserInfo struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
