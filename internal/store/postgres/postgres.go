package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Ramivz11/aurum-gestion/internal/domain"
	"github.com/Ramivz11/aurum-gestion/internal/store"
	"github.com/Ramivz11/aurum-gestion/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := seedDefaults(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// seedDefaults guarantees one balance row per payment method and the walk-in
// customer every install starts with.
func seedDefaults(ctx context.Context, db *sql.DB) error {
	for _, method := range domain.PaymentMethods {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO balances (method, base_cents)
			VALUES ($1, 0)
			ON CONFLICT (method) DO NOTHING
		`, method); err != nil {
			return err
		}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO customers (id, name, location)
		VALUES ($1, 'Consumidor Final', 'General')
		ON CONFLICT (name) DO NOTHING
	`, xid.New("cust"))
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- catalog ---

func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, cost_cents, price_cents, active
		FROM products
		WHERE active = true OR $1
		ORDER BY name
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	index := make(map[string]int, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.CostCents, &p.PriceCents, &p.Active); err != nil {
			return nil, err
		}
		index[p.ID] = len(products)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	variantRows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, name
		FROM variants
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer variantRows.Close()

	for variantRows.Next() {
		var v domain.Variant
		if err := variantRows.Scan(&v.ID, &v.ProductID, &v.Name); err != nil {
			return nil, err
		}
		if idx, ok := index[v.ProductID]; ok {
			products[idx].Variants = append(products[idx].Variants, v)
		}
	}
	if err := variantRows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByName(ctx context.Context, name string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, cost_cents, price_cents, active
		FROM products
		WHERE name = $1
	`, name).Scan(&product.ID, &product.Name, &product.CostCents, &product.PriceCents, &product.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, name
		FROM variants
		WHERE product_id = $1
		ORDER BY name
	`, product.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name); err != nil {
			return nil, err
		}
		product.Variants = append(product.Variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.CostCents < 0 || product.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, cost_cents, price_cents, active)
		VALUES ($1,$2,$3,$4,$5)
	`, product.ID, product.Name, product.CostCents, product.PriceCents, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, err
	}

	created := product
	created.Variants = nil
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, productID string, name string, costCents int64, priceCents int64) (*domain.Product, error) {
	if name == "" || costCents < 0 || priceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, cost_cents = $3, price_cents = $4, updated_at = now()
		WHERE id = $1
	`, productID, name, costCents, priceCents)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProductByName(ctx, name)
}

func (s *Store) SoftDeleteProduct(ctx context.Context, productID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET active = false, updated_at = now()
		WHERE id = $1
	`, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateVariant(ctx context.Context, productID string, name string) (*domain.Variant, error) {
	if name == "" {
		return nil, store.ErrInvalidInput
	}

	variant := domain.Variant{ID: xid.New("var"), ProductID: productID, Name: name}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO variants (id, product_id, name)
		VALUES ($1,$2,$3)
	`, variant.ID, variant.ProductID, variant.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	created := variant
	return &created, nil
}

func (s *Store) RenameVariant(ctx context.Context, productID string, variantID string, name string) (*domain.Variant, error) {
	if name == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE variants
		SET name = $3
		WHERE id = $1 AND product_id = $2
	`, variantID, productID, name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return &domain.Variant{ID: variantID, ProductID: productID, Name: name}, nil
}

// --- branches ---

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name
		FROM branches
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0, 8)
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return branches, nil
}

func (s *Store) CreateBranch(ctx context.Context, name string) (*domain.Branch, error) {
	if name == "" {
		return nil, store.ErrInvalidInput
	}

	branch := domain.Branch{ID: xid.New("branch"), Name: name}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, name)
		VALUES ($1,$2)
	`, branch.ID, branch.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, err
	}

	created := branch
	return &created, nil
}

// --- customers ---

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, location, created_at
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Location, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, location, created_at)
		VALUES ($1,$2,$3,$4)
	`, customer.ID, customer.Name, customer.Location, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, customerID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE sales
		SET customer_id = NULL
		WHERE customer_id = $1
	`, customerID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM customers
		WHERE id = $1
	`, customerID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	return tx.Commit()
}

// --- stock ledger ---

func (s *Store) GetQuantity(ctx context.Context, product string, variant string, branch string) (int, error) {
	var qty int
	err := s.db.QueryRowContext(ctx, `
		SELECT sl.qty
		FROM stock_levels sl
		JOIN products p ON p.id = sl.product_id
		JOIN branches b ON b.id = sl.branch_id
		LEFT JOIN variants v ON v.id = sl.variant_id
		WHERE p.name = $1 AND b.name = $3 AND COALESCE(v.name, '') = $2
	`, product, variant, branch).Scan(&qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A SKU that was never stocked reads as zero.
			return 0, nil
		}
		return 0, err
	}
	return qty, nil
}

func (s *Store) ListStockLevels(ctx context.Context) ([]domain.StockLevel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sl.product_id, sl.variant_id, sl.branch_id,
		       p.name, COALESCE(v.name, ''), b.name, sl.qty
		FROM stock_levels sl
		JOIN products p ON p.id = sl.product_id
		JOIN branches b ON b.id = sl.branch_id
		LEFT JOIN variants v ON v.id = sl.variant_id
		ORDER BY p.name, COALESCE(v.name, ''), b.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := make([]domain.StockLevel, 0, 128)
	for rows.Next() {
		var level domain.StockLevel
		if err := rows.Scan(&level.ProductID, &level.VariantID, &level.BranchID,
			&level.Product, &level.Variant, &level.Branch, &level.Qty); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return levels, nil
}

// --- sales ---

const saleColumns = `
	s.id, s.recorded_at, s.product_id, s.variant_id, s.branch_id,
	p.name, COALESCE(v.name, ''), b.name,
	s.qty, s.unit_price_cents, s.total_cents, s.method, s.note,
	COALESCE(s.customer_id, ''), COALESCE(c.name, '')`

const saleJoins = `
	FROM sales s
	JOIN products p ON p.id = s.product_id
	JOIN branches b ON b.id = s.branch_id
	LEFT JOIN variants v ON v.id = s.variant_id
	LEFT JOIN customers c ON c.id = s.customer_id`

func scanSale(scanner interface{ Scan(...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	err := scanner.Scan(&sale.ID, &sale.RecordedAt, &sale.ProductID, &sale.VariantID, &sale.BranchID,
		&sale.Product, &sale.Variant, &sale.Branch,
		&sale.Qty, &sale.UnitPriceCents, &sale.TotalCents, &sale.Method, &sale.Note,
		&sale.CustomerID, &sale.Customer)
	sale.RecordedAt = sale.RecordedAt.UTC()
	return sale, err
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+saleJoins+`
		ORDER BY s.recorded_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetSaleByID(ctx context.Context, saleID string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+saleJoins+`
		WHERE s.id = $1
	`, saleID)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

// CreateSale debits the stock ledger and inserts the sale inside one
// serializable transaction. Any failure, including a shortfall, rolls both
// back.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.Qty < 1 || sale.UnitPriceCents < 0 || !domain.IsPaymentMethod(sale.Method) {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	productID, variantID, branchID, err := resolveSKU(ctx, tx, sale.Product, sale.Variant, sale.Branch)
	if err != nil {
		return nil, err
	}

	if sale.CustomerID != "" {
		err := tx.QueryRowContext(ctx, `
			SELECT name FROM customers WHERE id = $1
		`, sale.CustomerID).Scan(&sale.Customer)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
	}

	available, err := lockQuantity(ctx, tx, productID, variantID, branchID)
	if err != nil {
		return nil, err
	}
	if available < sale.Qty {
		return nil, &store.InsufficientStockError{Requested: sale.Qty, Available: available}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE stock_levels
		SET qty = qty - $4
		WHERE product_id = $1 AND variant_id = $2 AND branch_id = $3 AND qty >= $4
	`, productID, variantID, branchID, sale.Qty)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, &store.InsufficientStockError{Requested: sale.Qty, Available: available}
	}

	sale.ProductID = productID
	sale.VariantID = variantID
	sale.BranchID = branchID
	sale.TotalCents = int64(sale.Qty) * sale.UnitPriceCents
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.RecordedAt.IsZero() {
		sale.RecordedAt = time.Now().UTC()
	}

	var customerID any
	if sale.CustomerID != "" {
		customerID = sale.CustomerID
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sales (id, recorded_at, product_id, variant_id, branch_id, qty, unit_price_cents, total_cents, method, note, customer_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, sale.RecordedAt, sale.ProductID, sale.VariantID, sale.BranchID,
		sale.Qty, sale.UnitPriceCents, sale.TotalCents, sale.Method, sale.Note, customerID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

// UpdateSale applies the quantity delta to the ledger and rewrites the sale
// row atomically. Growing the sale needs enough remaining stock to cover the
// extra units.
func (s *Store) UpdateSale(ctx context.Context, saleID string, qty int, unitPriceCents int64, method string, note string) (*domain.Sale, error) {
	if qty < 1 || unitPriceCents < 0 || !domain.IsPaymentMethod(method) {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var productID, variantID, branchID string
	var oldQty int
	err = tx.QueryRowContext(ctx, `
		SELECT product_id, variant_id, branch_id, qty
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, saleID).Scan(&productID, &variantID, &branchID, &oldQty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	delta := qty - oldQty
	if delta != 0 {
		available, err := lockQuantity(ctx, tx, productID, variantID, branchID)
		if err != nil {
			return nil, err
		}
		if delta > 0 && available < delta {
			return nil, &store.InsufficientStockError{Requested: delta, Available: available}
		}
		if err := adjustQuantity(ctx, tx, productID, variantID, branchID, -delta); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sales
		SET qty = $2, unit_price_cents = $3, total_cents = $4, method = $5, note = $6
		WHERE id = $1
	`, saleID, qty, unitPriceCents, int64(qty)*unitPriceCents, method, note); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetSaleByID(ctx, saleID)
}

// DeleteSale credits the sold units back to the ledger and removes the row.
func (s *Store) DeleteSale(ctx context.Context, saleID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var productID, variantID, branchID string
	var qty int
	err = tx.QueryRowContext(ctx, `
		SELECT product_id, variant_id, branch_id, qty
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, saleID).Scan(&productID, &variantID, &branchID, &qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	if err := adjustQuantity(ctx, tx, productID, variantID, branchID, qty); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID); err != nil {
		return err
	}

	return tx.Commit()
}

// --- purchases ---

const purchaseColumns = `
	pu.id, pu.recorded_at, pu.product_id, pu.variant_id, pu.branch_id,
	p.name, COALESCE(v.name, ''), b.name,
	pu.qty, pu.total_cost_cents, pu.supplier, pu.method, pu.note`

const purchaseJoins = `
	FROM purchases pu
	JOIN products p ON p.id = pu.product_id
	JOIN branches b ON b.id = pu.branch_id
	LEFT JOIN variants v ON v.id = pu.variant_id`

func scanPurchase(scanner interface{ Scan(...any) error }) (domain.Purchase, error) {
	var purchase domain.Purchase
	err := scanner.Scan(&purchase.ID, &purchase.RecordedAt, &purchase.ProductID, &purchase.VariantID, &purchase.BranchID,
		&purchase.Product, &purchase.Variant, &purchase.Branch,
		&purchase.Qty, &purchase.TotalCostCents, &purchase.Supplier, &purchase.Method, &purchase.Note)
	purchase.RecordedAt = purchase.RecordedAt.UTC()
	return purchase, err
}

func (s *Store) ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+purchaseColumns+purchaseJoins+`
		ORDER BY pu.recorded_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, limit)
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, purchase)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return purchases, nil
}

func (s *Store) GetPurchaseByID(ctx context.Context, purchaseID string) (*domain.Purchase, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+purchaseColumns+purchaseJoins+`
		WHERE pu.id = $1
	`, purchaseID)
	purchase, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &purchase, nil
}

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if purchase.Qty < 1 || purchase.TotalCostCents < 0 || !domain.IsPaymentMethod(purchase.Method) {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	productID, variantID, branchID, err := resolveSKU(ctx, tx, purchase.Product, purchase.Variant, purchase.Branch)
	if err != nil {
		return nil, err
	}

	if err := adjustQuantity(ctx, tx, productID, variantID, branchID, purchase.Qty); err != nil {
		return nil, err
	}

	purchase.ProductID = productID
	purchase.VariantID = variantID
	purchase.BranchID = branchID
	if purchase.ID == "" {
		purchase.ID = xid.New("purch")
	}
	if purchase.RecordedAt.IsZero() {
		purchase.RecordedAt = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO purchases (id, recorded_at, product_id, variant_id, branch_id, qty, total_cost_cents, supplier, method, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, purchase.ID, purchase.RecordedAt, purchase.ProductID, purchase.VariantID, purchase.BranchID,
		purchase.Qty, purchase.TotalCostCents, purchase.Supplier, purchase.Method, purchase.Note); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := purchase
	return &created, nil
}

// UpdatePurchase applies the quantity delta to the ledger. Shrinking a
// purchase below what is still on hand is refused: the removed units may
// already have been sold.
func (s *Store) UpdatePurchase(ctx context.Context, purchaseID string, qty int, totalCostCents int64, supplier string, method string, note string) (*domain.Purchase, error) {
	if qty < 1 || totalCostCents < 0 || !domain.IsPaymentMethod(method) {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var productID, variantID, branchID string
	var oldQty int
	err = tx.QueryRowContext(ctx, `
		SELECT product_id, variant_id, branch_id, qty
		FROM purchases
		WHERE id = $1
		FOR UPDATE
	`, purchaseID).Scan(&productID, &variantID, &branchID, &oldQty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	delta := qty - oldQty
	if delta != 0 {
		available, err := lockQuantity(ctx, tx, productID, variantID, branchID)
		if err != nil {
			return nil, err
		}
		if delta < 0 && available < -delta {
			return nil, &store.InsufficientStockError{Requested: -delta, Available: available}
		}
		if err := adjustQuantity(ctx, tx, productID, variantID, branchID, delta); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE purchases
		SET qty = $2, total_cost_cents = $3, supplier = $4, method = $5, note = $6
		WHERE id = $1
	`, purchaseID, qty, totalCostCents, supplier, method, note); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetPurchaseByID(ctx, purchaseID)
}

// DeletePurchase removes the purchased units from the ledger. Refused when
// later sales already consumed them.
func (s *Store) DeletePurchase(ctx context.Context, purchaseID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var productID, variantID, branchID string
	var qty int
	err = tx.QueryRowContext(ctx, `
		SELECT product_id, variant_id, branch_id, qty
		FROM purchases
		WHERE id = $1
		FOR UPDATE
	`, purchaseID).Scan(&productID, &variantID, &branchID, &qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	available, err := lockQuantity(ctx, tx, productID, variantID, branchID)
	if err != nil {
		return err
	}
	if available < qty {
		return &store.InsufficientStockError{Requested: qty, Available: available}
	}

	if err := adjustQuantity(ctx, tx, productID, variantID, branchID, -qty); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM purchases WHERE id = $1`, purchaseID); err != nil {
		return err
	}

	return tx.Commit()
}

// --- balances ---

func (s *Store) BalanceSummaries(ctx context.Context) ([]domain.BalanceSummary, error) {
	summaries := make([]domain.BalanceSummary, 0, len(domain.PaymentMethods))
	for _, method := range domain.PaymentMethods {
		summary, err := s.balanceSummary(ctx, s.db, method)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// RecalibrateBalance rewrites the base so the derived current balance equals
// the observed count. The sums and the upsert share one serializable
// transaction so a concurrent sale cannot skew the new base.
func (s *Store) RecalibrateBalance(ctx context.Context, method string, observedCents int64) (*domain.BalanceSummary, error) {
	if !domain.IsPaymentMethod(method) {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.balanceSummary(ctx, tx, method)
	if err != nil {
		return nil, err
	}
	base := observedCents - current.SalesCents + current.PurchasesCents

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO balances (method, base_cents, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (method) DO UPDATE SET base_cents = EXCLUDED.base_cents, updated_at = now()
	`, method, base); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &domain.BalanceSummary{
		Method:         method,
		BaseCents:      base,
		SalesCents:     current.SalesCents,
		PurchasesCents: current.PurchasesCents,
		CurrentCents:   observedCents,
	}, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) balanceSummary(ctx context.Context, q querier, method string) (domain.BalanceSummary, error) {
	summary := domain.BalanceSummary{Method: method}

	err := q.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT base_cents FROM balances WHERE method = $1), 0),
		       COALESCE((SELECT SUM(total_cents) FROM sales WHERE method = $1), 0),
		       COALESCE((SELECT SUM(total_cost_cents) FROM purchases WHERE method = $1), 0)
	`, method).Scan(&summary.BaseCents, &summary.SalesCents, &summary.PurchasesCents)
	if err != nil {
		return domain.BalanceSummary{}, err
	}

	summary.CurrentCents = summary.BaseCents + summary.SalesCents - summary.PurchasesCents
	return summary, nil
}

// --- users ---

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return store.ErrDuplicateName
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if password == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- tx helpers ---

// resolveSKU maps the product, variant and branch names of a movement to ids.
// Inactive products and unknown names fail with ErrNotFound.
func resolveSKU(ctx context.Context, tx *sql.Tx, product string, variant string, branch string) (string, string, string, error) {
	var productID string
	var active bool
	err := tx.QueryRowContext(ctx, `
		SELECT id, active FROM products WHERE name = $1
	`, product).Scan(&productID, &active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", "", store.ErrNotFound
		}
		return "", "", "", err
	}
	if !active {
		return "", "", "", store.ErrNotFound
	}

	var branchID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM branches WHERE name = $1
	`, branch).Scan(&branchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", "", store.ErrNotFound
		}
		return "", "", "", err
	}

	variantID := ""
	if variant != "" {
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM variants WHERE product_id = $1 AND name = $2
		`, productID, variant).Scan(&variantID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", "", "", store.ErrNotFound
			}
			return "", "", "", err
		}
	}

	return productID, variantID, branchID, nil
}

// lockQuantity reads the ledger row under FOR UPDATE. A missing row reads as
// zero without creating it.
func lockQuantity(ctx context.Context, tx *sql.Tx, productID string, variantID string, branchID string) (int, error) {
	var qty int
	err := tx.QueryRowContext(ctx, `
		SELECT qty
		FROM stock_levels
		WHERE product_id = $1 AND variant_id = $2 AND branch_id = $3
		FOR UPDATE
	`, productID, variantID, branchID).Scan(&qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return qty, nil
}

// adjustQuantity applies a signed delta, creating the ledger row on first
// credit. Callers must have verified a negative delta fits.
func adjustQuantity(ctx context.Context, tx *sql.Tx, productID string, variantID string, branchID string, delta int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_levels (product_id, variant_id, branch_id, qty)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (product_id, variant_id, branch_id)
		DO UPDATE SET qty = stock_levels.qty + EXCLUDED.qty
	`, productID, variantID, branchID, delta)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
