package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Ramivz11/aurum-gestion/internal/domain"
	"github.com/Ramivz11/aurum-gestion/internal/store"
	"github.com/Ramivz11/aurum-gestion/internal/xid"
)

// Store is a mutex-guarded in-memory Repository used for dev mode and tests.
// The coarse lock gives every operation the same all-or-nothing semantics the
// postgres store gets from transactions: state is only mutated after every
// validation has passed.
type Store struct {
	mu           sync.RWMutex
	products     map[string]domain.Product
	variants     map[string]domain.Variant
	branches     map[string]domain.Branch
	customers    map[string]domain.Customer
	stock        map[stockKey]int
	sales        map[string]domain.Sale
	purchases    map[string]domain.Purchase
	baseBalances map[string]int64
	users        map[string]domain.UserAccount
}

type stockKey struct {
	productID string
	variantID string
	branchID  string
}

func New() *Store {
	return &Store{
		products:     make(map[string]domain.Product),
		variants:     make(map[string]domain.Variant),
		branches:     make(map[string]domain.Branch),
		customers:    make(map[string]domain.Customer),
		stock:        make(map[stockKey]int),
		sales:        make(map[string]domain.Sale),
		purchases:    make(map[string]domain.Purchase),
		baseBalances: make(map[string]int64),
		users:        make(map[string]domain.UserAccount),
	}
}

// NewSeeded builds a store pre-loaded with a small supplement-shop catalog,
// two branches, a walk-in customer and dev user accounts.
func NewSeeded() *Store {
	s := New()

	branches := []string{"Cordoba", "Rio Tercero"}
	branchIDs := make([]string, 0, len(branches))
	for _, name := range branches {
		b := domain.Branch{ID: xid.New("branch"), Name: name}
		s.branches[b.ID] = b
		branchIDs = append(branchIDs, b.ID)
	}

	type seedProduct struct {
		name     string
		cost     int64
		price    int64
		variants []string
	}
	catalog := []seedProduct{
		{name: "Proteina Whey 1kg", cost: 2400000, price: 3600000, variants: []string{"Chocolate", "Vainilla", "Frutilla"}},
		{name: "Creatina Monohidrato 300g", cost: 1500000, price: 2300000},
		{name: "Pre Entreno 30 serv", cost: 1800000, price: 2800000, variants: []string{"Fruit Punch", "Limonada"}},
		{name: "Shaker 600ml", cost: 250000, price: 500000},
	}
	for _, item := range catalog {
		p := domain.Product{
			ID:         xid.New("prod"),
			Name:       item.name,
			CostCents:  item.cost,
			PriceCents: item.price,
			Active:     true,
		}
		s.products[p.ID] = p
		variantIDs := []string{""}
		for _, vname := range item.variants {
			v := domain.Variant{ID: xid.New("var"), ProductID: p.ID, Name: vname}
			s.variants[v.ID] = v
			variantIDs = append(variantIDs, v.ID)
		}
		// Products with variants are stocked per variant, not as the base SKU.
		if len(item.variants) > 0 {
			variantIDs = variantIDs[1:]
		}
		for _, branchID := range branchIDs {
			for _, variantID := range variantIDs {
				s.stock[stockKey{p.ID, variantID, branchID}] = 20
			}
		}
	}

	walkIn := domain.Customer{
		ID:        xid.New("cust"),
		Name:      "Consumidor Final",
		Location:  "General",
		CreatedAt: time.Now().UTC(),
	}
	s.customers[walkIn.ID] = walkIn

	s.users = seedUsers()
	return s
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. The in-memory store
// is never used in production (the backend uses PostgreSQL when DATABASE_URL
// is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "seller123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"seller", sellerPwd, domain.RoleSeller},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// --- catalog ---

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active && !includeInactive {
			continue
		}
		p.Variants = s.variantsOfLocked(p.ID)
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProductByName(_ context.Context, name string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.productByNameLocked(name)
	if !ok {
		return nil, store.ErrNotFound
	}
	p.Variants = s.variantsOfLocked(p.ID)
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.CostCents < 0 || product.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productByNameLocked(product.Name); exists {
		return nil, store.ErrDuplicateName
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	product.Active = true
	product.Variants = nil
	s.products[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, productID string, name string, costCents int64, priceCents int64) (*domain.Product, error) {
	if name == "" || costCents < 0 || priceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if other, exists := s.productByNameLocked(name); exists && other.ID != productID {
		return nil, store.ErrDuplicateName
	}
	p.Name = name
	p.CostCents = costCents
	p.PriceCents = priceCents
	s.products[productID] = p

	updated := p
	updated.Variants = s.variantsOfLocked(productID)
	return &updated, nil
}

func (s *Store) SoftDeleteProduct(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	p.Active = false
	s.products[productID] = p
	return nil
}

func (s *Store) CreateVariant(_ context.Context, productID string, name string) (*domain.Variant, error) {
	if name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, exists := s.variantByNameLocked(productID, name); exists {
		return nil, store.ErrDuplicateName
	}
	v := domain.Variant{ID: xid.New("var"), ProductID: productID, Name: name}
	s.variants[v.ID] = v

	created := v
	return &created, nil
}

func (s *Store) RenameVariant(_ context.Context, productID string, variantID string, name string) (*domain.Variant, error) {
	if name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.variants[variantID]
	if !ok || v.ProductID != productID {
		return nil, store.ErrNotFound
	}
	if other, exists := s.variantByNameLocked(productID, name); exists && other.ID != variantID {
		return nil, store.ErrDuplicateName
	}
	v.Name = name
	s.variants[variantID] = v

	renamed := v
	return &renamed, nil
}

// --- branches ---

func (s *Store) ListBranches(_ context.Context) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branches := make([]domain.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		branches = append(branches, b)
	}
	slices.SortFunc(branches, func(a, b domain.Branch) int {
		return strings.Compare(a.Name, b.Name)
	})
	return branches, nil
}

func (s *Store) CreateBranch(_ context.Context, name string) (*domain.Branch, error) {
	if name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.branchByNameLocked(name); exists {
		return nil, store.ErrDuplicateName
	}
	b := domain.Branch{ID: xid.New("branch"), Name: name}
	s.branches[b.ID] = b

	created := b
	return &created, nil
}

// --- customers ---

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.customers {
		if existing.Name == customer.Name {
			return nil, store.ErrDuplicateName
		}
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = customer

	created := customer
	return &created, nil
}

// DeleteCustomer removes the customer and clears the reference on every sale
// that pointed at it; the sales themselves stay.
func (s *Store) DeleteCustomer(_ context.Context, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[customerID]; !ok {
		return store.ErrNotFound
	}
	for id, sale := range s.sales {
		if sale.CustomerID == customerID {
			sale.CustomerID = ""
			sale.Customer = ""
			s.sales[id] = sale
		}
	}
	delete(s.customers, customerID)
	return nil
}

// --- stock ledger ---

func (s *Store) GetQuantity(_ context.Context, product string, variant string, branch string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.resolveStockKeyLocked(product, variant, branch)
	if !ok {
		return 0, nil
	}
	return s.stock[key], nil
}

func (s *Store) ListStockLevels(_ context.Context) ([]domain.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	levels := make([]domain.StockLevel, 0, len(s.stock))
	for key, qty := range s.stock {
		product, ok := s.products[key.productID]
		if !ok {
			continue
		}
		branch, ok := s.branches[key.branchID]
		if !ok {
			continue
		}
		variantName := ""
		if key.variantID != "" {
			variantName = s.variants[key.variantID].Name
		}
		levels = append(levels, domain.StockLevel{
			ProductID: key.productID,
			VariantID: key.variantID,
			BranchID:  key.branchID,
			Product:   product.Name,
			Variant:   variantName,
			Branch:    branch.Name,
			Qty:       qty,
		})
	}
	slices.SortFunc(levels, func(a, b domain.StockLevel) int {
		if a.Product != b.Product {
			return strings.Compare(a.Product, b.Product)
		}
		if a.Variant != b.Variant {
			return strings.Compare(a.Variant, b.Variant)
		}
		return strings.Compare(a.Branch, b.Branch)
	})
	return levels, nil
}

// --- sales ---

func (s *Store) ListSales(_ context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return b.RecordedAt.Compare(a.RecordedAt)
	})
	if len(sales) > limit {
		sales = sales[:limit]
	}
	for i := range sales {
		s.resolveSaleNamesLocked(&sales[i])
	}
	return sales, nil
}

func (s *Store) GetSaleByID(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := sale
	s.resolveSaleNamesLocked(&found)
	return &found, nil
}

// resolveSaleNamesLocked refreshes the display names from the referenced
// rows so renames show up in history, matching the joins the postgres store
// does.
func (s *Store) resolveSaleNamesLocked(sale *domain.Sale) {
	if p, ok := s.products[sale.ProductID]; ok {
		sale.Product = p.Name
	}
	if sale.VariantID != "" {
		if v, ok := s.variants[sale.VariantID]; ok {
			sale.Variant = v.Name
		}
	}
	if b, ok := s.branches[sale.BranchID]; ok {
		sale.Branch = b.Name
	}
	if sale.CustomerID != "" {
		if c, ok := s.customers[sale.CustomerID]; ok {
			sale.Customer = c.Name
		}
	}
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.Qty < 1 || sale.UnitPriceCents < 0 || !domain.IsPaymentMethod(sale.Method) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.productByNameLocked(sale.Product)
	if !ok || !product.Active {
		return nil, store.ErrNotFound
	}
	branch, ok := s.branchByNameLocked(sale.Branch)
	if !ok {
		return nil, store.ErrNotFound
	}
	variantID := ""
	if sale.Variant != "" {
		variant, ok := s.variantByNameLocked(product.ID, sale.Variant)
		if !ok {
			return nil, store.ErrNotFound
		}
		variantID = variant.ID
	}
	if sale.CustomerID != "" {
		customer, ok := s.customers[sale.CustomerID]
		if !ok {
			return nil, store.ErrNotFound
		}
		sale.Customer = customer.Name
	}

	key := stockKey{product.ID, variantID, branch.ID}
	available := s.stock[key]
	if available < sale.Qty {
		return nil, &store.InsufficientStockError{Requested: sale.Qty, Available: available}
	}
	s.stock[key] = available - sale.Qty

	sale.ProductID = product.ID
	sale.VariantID = variantID
	sale.BranchID = branch.ID
	sale.TotalCents = int64(sale.Qty) * sale.UnitPriceCents
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.RecordedAt.IsZero() {
		sale.RecordedAt = time.Now().UTC()
	}
	s.sales[sale.ID] = sale

	created := sale
	return &created, nil
}

func (s *Store) UpdateSale(_ context.Context, saleID string, qty int, unitPriceCents int64, method string, note string) (*domain.Sale, error) {
	if qty < 1 || unitPriceCents < 0 || !domain.IsPaymentMethod(method) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}

	key := stockKey{sale.ProductID, sale.VariantID, sale.BranchID}
	delta := qty - sale.Qty
	if delta > 0 {
		available := s.stock[key]
		if available < delta {
			return nil, &store.InsufficientStockError{Requested: delta, Available: available}
		}
	}
	s.stock[key] -= delta

	sale.Qty = qty
	sale.UnitPriceCents = unitPriceCents
	sale.TotalCents = int64(qty) * unitPriceCents
	sale.Method = method
	sale.Note = note
	s.sales[saleID] = sale

	updated := sale
	return &updated, nil
}

func (s *Store) DeleteSale(_ context.Context, saleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return store.ErrNotFound
	}
	s.stock[stockKey{sale.ProductID, sale.VariantID, sale.BranchID}] += sale.Qty
	delete(s.sales, saleID)
	return nil
}

// --- purchases ---

func (s *Store) ListPurchases(_ context.Context, limit int) ([]domain.Purchase, error) {
	if limit < 1 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	purchases := make([]domain.Purchase, 0, len(s.purchases))
	for _, p := range s.purchases {
		purchases = append(purchases, p)
	}
	slices.SortFunc(purchases, func(a, b domain.Purchase) int {
		return b.RecordedAt.Compare(a.RecordedAt)
	})
	if len(purchases) > limit {
		purchases = purchases[:limit]
	}
	for i := range purchases {
		s.resolvePurchaseNamesLocked(&purchases[i])
	}
	return purchases, nil
}

func (s *Store) GetPurchaseByID(_ context.Context, purchaseID string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchase, ok := s.purchases[purchaseID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := purchase
	s.resolvePurchaseNamesLocked(&found)
	return &found, nil
}

func (s *Store) resolvePurchaseNamesLocked(purchase *domain.Purchase) {
	if p, ok := s.products[purchase.ProductID]; ok {
		purchase.Product = p.Name
	}
	if purchase.VariantID != "" {
		if v, ok := s.variants[purchase.VariantID]; ok {
			purchase.Variant = v.Name
		}
	}
	if b, ok := s.branches[purchase.BranchID]; ok {
		purchase.Branch = b.Name
	}
}

func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if purchase.Qty < 1 || purchase.TotalCostCents < 0 || !domain.IsPaymentMethod(purchase.Method) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.productByNameLocked(purchase.Product)
	if !ok || !product.Active {
		return nil, store.ErrNotFound
	}
	branch, ok := s.branchByNameLocked(purchase.Branch)
	if !ok {
		return nil, store.ErrNotFound
	}
	variantID := ""
	if purchase.Variant != "" {
		variant, ok := s.variantByNameLocked(product.ID, purchase.Variant)
		if !ok {
			return nil, store.ErrNotFound
		}
		variantID = variant.ID
	}

	// First purchase of a never-before-stocked SKU creates the ledger row.
	s.stock[stockKey{product.ID, variantID, branch.ID}] += purchase.Qty

	purchase.ProductID = product.ID
	purchase.VariantID = variantID
	purchase.BranchID = branch.ID
	if purchase.ID == "" {
		purchase.ID = xid.New("purch")
	}
	if purchase.RecordedAt.IsZero() {
		purchase.RecordedAt = time.Now().UTC()
	}
	s.purchases[purchase.ID] = purchase

	created := purchase
	return &created, nil
}

func (s *Store) UpdatePurchase(_ context.Context, purchaseID string, qty int, totalCostCents int64, supplier string, method string, note string) (*domain.Purchase, error) {
	if qty < 1 || totalCostCents < 0 || !domain.IsPaymentMethod(method) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	purchase, ok := s.purchases[purchaseID]
	if !ok {
		return nil, store.ErrNotFound
	}

	key := stockKey{purchase.ProductID, purchase.VariantID, purchase.BranchID}
	delta := qty - purchase.Qty
	if delta < 0 {
		// Shrinking a purchase removes stock; intervening sales may already
		// have consumed it.
		available := s.stock[key]
		if available < -delta {
			return nil, &store.InsufficientStockError{Requested: -delta, Available: available}
		}
	}
	s.stock[key] += delta

	purchase.Qty = qty
	purchase.TotalCostCents = totalCostCents
	purchase.Supplier = supplier
	purchase.Method = method
	purchase.Note = note
	s.purchases[purchaseID] = purchase

	updated := purchase
	return &updated, nil
}

func (s *Store) DeletePurchase(_ context.Context, purchaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchase, ok := s.purchases[purchaseID]
	if !ok {
		return store.ErrNotFound
	}
	key := stockKey{purchase.ProductID, purchase.VariantID, purchase.BranchID}
	available := s.stock[key]
	if available < purchase.Qty {
		return &store.InsufficientStockError{Requested: purchase.Qty, Available: available}
	}
	s.stock[key] = available - purchase.Qty
	delete(s.purchases, purchaseID)
	return nil
}

// --- balances ---

func (s *Store) BalanceSummaries(_ context.Context) ([]domain.BalanceSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]domain.BalanceSummary, 0, len(domain.PaymentMethods))
	for _, method := range domain.PaymentMethods {
		summaries = append(summaries, s.balanceSummaryLocked(method))
	}
	return summaries, nil
}

func (s *Store) RecalibrateBalance(_ context.Context, method string, observedCents int64) (*domain.BalanceSummary, error) {
	if !domain.IsPaymentMethod(method) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.balanceSummaryLocked(method)
	s.baseBalances[method] = observedCents - current.SalesCents + current.PurchasesCents

	recalibrated := s.balanceSummaryLocked(method)
	return &recalibrated, nil
}

func (s *Store) balanceSummaryLocked(method string) domain.BalanceSummary {
	summary := domain.BalanceSummary{
		Method:    method,
		BaseCents: s.baseBalances[method],
	}
	for _, sale := range s.sales {
		if sale.Method == method {
			summary.SalesCents += sale.TotalCents
		}
	}
	for _, purchase := range s.purchases {
		if purchase.Method == method {
			summary.PurchasesCents += purchase.TotalCostCents
		}
	}
	summary.CurrentCents = summary.BaseCents + summary.SalesCents - summary.PurchasesCents
	return summary
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.Username]; exists {
		return store.ErrDuplicateName
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	if password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

// --- lookup helpers (callers hold s.mu) ---

func (s *Store) productByNameLocked(name string) (domain.Product, bool) {
	for _, p := range s.products {
		if p.Name == name {
			return p, true
		}
	}
	return domain.Product{}, false
}

func (s *Store) branchByNameLocked(name string) (domain.Branch, bool) {
	for _, b := range s.branches {
		if b.Name == name {
			return b, true
		}
	}
	return domain.Branch{}, false
}

func (s *Store) variantByNameLocked(productID string, name string) (domain.Variant, bool) {
	for _, v := range s.variants {
		if v.ProductID == productID && v.Name == name {
			return v, true
		}
	}
	return domain.Variant{}, false
}

func (s *Store) variantsOfLocked(productID string) []domain.Variant {
	variants := make([]domain.Variant, 0, 4)
	for _, v := range s.variants {
		if v.ProductID == productID {
			variants = append(variants, v)
		}
	}
	slices.SortFunc(variants, func(a, b domain.Variant) int {
		return strings.Compare(a.Name, b.Name)
	})
	if len(variants) == 0 {
		return nil
	}
	return variants
}

func (s *Store) resolveStockKeyLocked(product string, variant string, branch string) (stockKey, bool) {
	p, ok := s.productByNameLocked(product)
	if !ok {
		return stockKey{}, false
	}
	b, ok := s.branchByNameLocked(branch)
	if !ok {
		return stockKey{}, false
	}
	variantID := ""
	if variant != "" {
		v, ok := s.variantByNameLocked(p.ID, variant)
		if !ok {
			return stockKey{}, false
		}
		variantID = v.ID
	}
	return stockKey{p.ID, variantID, b.ID}, true
}
