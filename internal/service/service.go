package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Ramivz11/aurum-gestion/internal/cache"
	"github.com/Ramivz11/aurum-gestion/internal/domain"
	"github.com/Ramivz11/aurum-gestion/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo         store.Repository
	dashCache    cache.DashboardCache
	dashboardTTL time.Duration
}

func New(repo store.Repository, dashCache cache.DashboardCache, dashboardTTL time.Duration) *Service {
	if dashCache == nil {
		dashCache = cache.NoopDashboardCache{}
	}
	if dashboardTTL < time.Second {
		dashboardTTL = 30 * time.Second
	}

	return &Service{
		repo:         repo,
		dashCache:    dashCache,
		dashboardTTL: dashboardTTL,
	}
}

func (s *Service) requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}
	return nil
}

// --- catalog ---

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, includeInactive)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.CostCents < 0 || req.PriceCents < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:       req.Name,
		CostCents:  req.CostCents,
		PriceCents: req.PriceCents,
		Active:     true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateDashboard(ctx)
	return *created, nil
}

// UpdateProduct renames and reprices the product identified by its current
// name. Sales, purchases and stock rows reference the product id, so history
// follows the rename.
func (s *Service) UpdateProduct(ctx context.Context, name string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	name = strings.TrimSpace(name)
	req.Name = strings.TrimSpace(req.Name)
	if name == "" || req.Name == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.CostCents < 0 || req.PriceCents < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetProductByName(ctx, name)
	if err != nil {
		return domain.Product{}, err
	}

	updated, err := s.repo.UpdateProduct(ctx, existing.ID, req.Name, req.CostCents, req.PriceCents)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateDashboard(ctx)
	return *updated, nil
}

// DeactivateProduct hides the product from pickers and dashboards. Its sales,
// purchases and stock rows are kept.
func (s *Service) DeactivateProduct(ctx context.Context, name string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return store.ErrInvalidInput
	}

	existing, err := s.repo.GetProductByName(ctx, name)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDeleteProduct(ctx, existing.ID); err != nil {
		return err
	}

	s.invalidateDashboard(ctx)
	return nil
}

func (s *Service) AddVariant(ctx context.Context, productName string, req domain.VariantCreateRequest) (domain.Variant, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Variant{}, err
	}

	productName = strings.TrimSpace(productName)
	req.Name = strings.TrimSpace(req.Name)
	if productName == "" || req.Name == "" {
		return domain.Variant{}, store.ErrInvalidInput
	}

	product, err := s.repo.GetProductByName(ctx, productName)
	if err != nil {
		return domain.Variant{}, err
	}

	created, err := s.repo.CreateVariant(ctx, product.ID, req.Name)
	if err != nil {
		return domain.Variant{}, err
	}
	return *created, nil
}

func (s *Service) RenameVariant(ctx context.Context, productName string, variantName string, req domain.VariantUpdateRequest) (domain.Variant, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Variant{}, err
	}

	productName = strings.TrimSpace(productName)
	variantName = strings.TrimSpace(variantName)
	req.Name = strings.TrimSpace(req.Name)
	if productName == "" || variantName == "" || req.Name == "" {
		return domain.Variant{}, store.ErrInvalidInput
	}

	product, err := s.repo.GetProductByName(ctx, productName)
	if err != nil {
		return domain.Variant{}, err
	}

	var variantID string
	for _, v := range product.Variants {
		if v.Name == variantName {
			variantID = v.ID
			break
		}
	}
	if variantID == "" {
		return domain.Variant{}, store.ErrNotFound
	}

	renamed, err := s.repo.RenameVariant(ctx, product.ID, variantID, req.Name)
	if err != nil {
		return domain.Variant{}, err
	}

	s.invalidateDashboard(ctx)
	return *renamed, nil
}

// --- branches ---

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	return s.repo.ListBranches(ctx)
}

func (s *Service) CreateBranch(ctx context.Context, req domain.BranchCreateRequest) (domain.Branch, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Branch{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Branch{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateBranch(ctx, req.Name)
	if err != nil {
		return domain.Branch{}, err
	}
	return *created, nil
}

// --- customers ---

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Location = strings.TrimSpace(req.Location)
	if req.Name == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:     req.Name,
		Location: req.Location,
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, customerID string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}

	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return store.ErrInvalidInput
	}
	return s.repo.DeleteCustomer(ctx, customerID)
}

// --- stock ---

func (s *Service) GetQuantity(ctx context.Context, product string, variant string, branch string) (int, error) {
	product = strings.TrimSpace(product)
	if product == "" || strings.TrimSpace(branch) == "" {
		return 0, store.ErrInvalidInput
	}
	return s.repo.GetQuantity(ctx, product, strings.TrimSpace(variant), strings.TrimSpace(branch))
}

func (s *Service) ListStockLevels(ctx context.Context) ([]domain.StockLevel, error) {
	return s.repo.ListStockLevels(ctx)
}

// --- sales ---

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, limit)
}

// RegisterSale debits stock and records the sale as one unit: a shortfall
// leaves both the ledger and the history untouched.
func (s *Service) RegisterSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	req.Product = strings.TrimSpace(req.Product)
	req.Variant = strings.TrimSpace(req.Variant)
	req.Branch = strings.TrimSpace(req.Branch)
	req.Note = strings.TrimSpace(req.Note)
	if req.Product == "" || req.Branch == "" {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if req.Qty < 1 || req.UnitPriceCents < 0 || !domain.IsPaymentMethod(req.Method) {
		return domain.Sale{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateSale(ctx, domain.Sale{
		Product:        req.Product,
		Variant:        req.Variant,
		Branch:         req.Branch,
		Qty:            req.Qty,
		UnitPriceCents: req.UnitPriceCents,
		Method:         req.Method,
		Note:           req.Note,
		CustomerID:     strings.TrimSpace(req.CustomerID),
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateDashboard(ctx)
	return *created, nil
}

// EditSale adjusts the quantity, price, payment method and note of an
// existing sale. Product, variant and branch are fixed at registration; the
// stock ledger absorbs only the quantity delta.
func (s *Service) EditSale(ctx context.Context, saleID string, req domain.SaleUpdateRequest) (domain.Sale, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Sale{}, err
	}

	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if req.Qty < 1 || req.UnitPriceCents < 0 || !domain.IsPaymentMethod(req.Method) {
		return domain.Sale{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateSale(ctx, saleID, req.Qty, req.UnitPriceCents, req.Method, strings.TrimSpace(req.Note))
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateDashboard(ctx)
	return *updated, nil
}

// DeleteSale removes the record and returns its units to stock.
func (s *Service) DeleteSale(ctx context.Context, saleID string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}

	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteSale(ctx, saleID); err != nil {
		return err
	}

	s.invalidateDashboard(ctx)
	return nil
}

// --- purchases ---

func (s *Service) ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error) {
	return s.repo.ListPurchases(ctx, limit)
}

func (s *Service) RegisterPurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.Purchase, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Purchase{}, err
	}

	req.Product = strings.TrimSpace(req.Product)
	req.Variant = strings.TrimSpace(req.Variant)
	req.Branch = strings.TrimSpace(req.Branch)
	req.Supplier = strings.TrimSpace(req.Supplier)
	req.Note = strings.TrimSpace(req.Note)
	if req.Product == "" || req.Branch == "" {
		return domain.Purchase{}, store.ErrInvalidInput
	}
	if req.Qty < 1 || req.TotalCostCents < 0 || !domain.IsPaymentMethod(req.Method) {
		return domain.Purchase{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreatePurchase(ctx, domain.Purchase{
		Product:        req.Product,
		Variant:        req.Variant,
		Branch:         req.Branch,
		Qty:            req.Qty,
		TotalCostCents: req.TotalCostCents,
		Supplier:       req.Supplier,
		Method:         req.Method,
		Note:           req.Note,
	})
	if err != nil {
		return domain.Purchase{}, err
	}

	s.invalidateDashboard(ctx)
	return *created, nil
}

func (s *Service) EditPurchase(ctx context.Context, purchaseID string, req domain.PurchaseUpdateRequest) (domain.Purchase, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Purchase{}, err
	}

	purchaseID = strings.TrimSpace(purchaseID)
	if purchaseID == "" {
		return domain.Purchase{}, store.ErrInvalidInput
	}
	if req.Qty < 1 || req.TotalCostCents < 0 || !domain.IsPaymentMethod(req.Method) {
		return domain.Purchase{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdatePurchase(ctx, purchaseID, req.Qty, req.TotalCostCents, strings.TrimSpace(req.Supplier), req.Method, strings.TrimSpace(req.Note))
	if err != nil {
		return domain.Purchase{}, err
	}

	s.invalidateDashboard(ctx)
	return *updated, nil
}

// DeletePurchase takes the purchased units back out of stock. When later
// sales already consumed them the delete is refused rather than driving the
// ledger negative.
func (s *Service) DeletePurchase(ctx context.Context, purchaseID string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}

	purchaseID = strings.TrimSpace(purchaseID)
	if purchaseID == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeletePurchase(ctx, purchaseID); err != nil {
		return err
	}

	s.invalidateDashboard(ctx)
	return nil
}

// --- finance ---

func (s *Service) Balances(ctx context.Context) ([]domain.BalanceSummary, error) {
	return s.repo.BalanceSummaries(ctx)
}

// Recalibrate resets the base balance of one payment method so the derived
// current balance equals the observed count. Sale and purchase history is
// untouched.
func (s *Service) Recalibrate(ctx context.Context, req domain.RecalibrateRequest) (domain.BalanceSummary, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.BalanceSummary{}, err
	}

	if !domain.IsPaymentMethod(req.Method) {
		return domain.BalanceSummary{}, store.ErrInvalidInput
	}

	summary, err := s.repo.RecalibrateBalance(ctx, req.Method, req.ObservedCents)
	if err != nil {
		return domain.BalanceSummary{}, err
	}

	s.invalidateDashboard(ctx)
	return *summary, nil
}

// --- dashboard ---

// Dashboard aggregates the stock ledger into a per-product matrix with
// branch columns, inventory valuations and the derived balances. The report
// is served from cache within the TTL; mutations drop the cached copy.
func (s *Service) Dashboard(ctx context.Context) (domain.DashboardReport, error) {
	if cached, ok, err := s.dashCache.Get(ctx); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: dashboard cache read failed: %v", err)
	}

	report, err := s.buildDashboard(ctx)
	if err != nil {
		return domain.DashboardReport{}, err
	}

	if err := s.dashCache.Set(ctx, &report, s.dashboardTTL); err != nil {
		log.Printf("[service] WARN: failed to cache dashboard report: %v", err)
	}
	return report, nil
}

func (s *Service) buildDashboard(ctx context.Context) (domain.DashboardReport, error) {
	levels, err := s.repo.ListStockLevels(ctx)
	if err != nil {
		return domain.DashboardReport{}, err
	}
	products, err := s.repo.ListProducts(ctx, false)
	if err != nil {
		return domain.DashboardReport{}, err
	}
	balances, err := s.repo.BalanceSummaries(ctx)
	if err != nil {
		return domain.DashboardReport{}, err
	}

	active := make(map[string]domain.Product, len(products))
	for _, p := range products {
		active[p.ID] = p
	}

	rowIndex := make(map[string]int, len(levels))
	rows := make([]domain.DashboardRow, 0, len(levels))
	for _, level := range levels {
		product, ok := active[level.ProductID]
		if !ok {
			continue
		}
		key := level.ProductID + "\x00" + level.VariantID
		idx, exists := rowIndex[key]
		if !exists {
			rows = append(rows, domain.DashboardRow{
				Product:    product.Name,
				Variant:    level.Variant,
				CostCents:  product.CostCents,
				PriceCents: product.PriceCents,
				ByBranch:   make(map[string]int, 4),
			})
			idx = len(rows) - 1
			rowIndex[key] = idx
		}
		rows[idx].ByBranch[level.Branch] += level.Qty
		rows[idx].TotalQty += level.Qty
	}

	report := domain.DashboardReport{
		GeneratedAt: time.Now().UTC(),
		Rows:        rows,
		Balances:    balances,
	}
	for _, row := range rows {
		report.TotalUnits += row.TotalQty
		report.InventoryCostCents += int64(row.TotalQty) * row.CostCents
		report.InventoryRetailCents += int64(row.TotalQty) * row.PriceCents
	}
	for _, balance := range balances {
		report.PatrimonyCents += balance.CurrentCents
	}
	report.PatrimonyCents += report.InventoryCostCents

	return report, nil
}

func (s *Service) invalidateDashboard(ctx context.Context) {
	if err := s.dashCache.Invalidate(ctx); err != nil {
		log.Printf("[service] WARN: failed to invalidate dashboard cache: %v", err)
	}
}
