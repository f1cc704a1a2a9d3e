package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"checkout-scan-backend/internal/model"
)

var (
	// ErrProductNotFound means the lookup succeeded but no product matches
	// the barcode.
	ErrProductNotFound = errors.New("product not found")
	// ErrBarcodeExists means another product already owns the barcode.
	ErrBarcodeExists = errors.New("product with this barcode already exists")
	// ErrCartNotFound means no cart matches the given code or ID.
	ErrCartNotFound = errors.New("cart not found")
	// ErrCartCodeExists means another cart already owns the code.
	ErrCartCodeExists = errors.New("cart code already exists")
	// ErrItemNotFound means the cart has no such line item.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrAdminNotFound means no admin account matches the username.
	ErrAdminNotFound = errors.New("admin not found")
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	ProductByBarcode(ctx context.Context, code string) (*model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	CreateProduct(ctx context.Context, p *model.Product) error
	UpdateProduct(ctx context.Context, p *model.Product) error
	DeleteProduct(ctx context.Context, id int64) error

	ListCarts(ctx context.Context) ([]model.Cart, error)
	CreateCart(ctx context.Context, c *model.Cart) error
	UpdateCart(ctx context.Context, c *model.Cart) error
	DeleteCart(ctx context.Context, id int64) error
	CartByCode(ctx context.Context, code string) (*model.Cart, error)

	CartItems(ctx context.Context, cartCode string) ([]model.CartItem, error)
	AddItemToCart(ctx context.Context, cartCode string, item model.CartItem) (*model.CartItem, error)
	UpdateCartItem(ctx context.Context, cartCode string, itemID int64, quantity int) (*model.CartItem, error)
	RemoveCartItem(ctx context.Context, cartCode string, itemID int64) error

	AdminByUsername(ctx context.Context, username string) (*model.Admin, error)
	EnsureAdmin(ctx context.Context, username, passwordHash string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// ProductByBarcode resolves a barcode with an exact string match.
func (s *gormStore) ProductByBarcode(ctx context.Context, code string) (*model.Product, error) {
	var p model.Product
	err := s.db.WithContext(ctx).Where("barcode = ?", code).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("product lookup failed: %w", err)
	}
	return &p, nil
}

func (s *gormStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	if err := s.db.WithContext(ctx).Order("name").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (s *gormStore) CreateProduct(ctx context.Context, p *model.Product) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := barcodeTaken(tx, p.Barcode, 0); err != nil {
			return err
		}
		return tx.Create(p).Error
	})
}

func (s *gormStore) UpdateProduct(ctx context.Context, p *model.Product) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := barcodeTaken(tx, p.Barcode, p.ID); err != nil {
			return err
		}
		res := tx.Model(&model.Product{ID: p.ID}).
			Updates(map[string]any{
				"name":        p.Name,
				"price":       p.Price,
				"barcode":     p.Barcode,
				"description": p.Description,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrProductNotFound
		}
		return tx.First(p, p.ID).Error
	})
}

// barcodeTaken rejects a barcode already owned by a different product.
func barcodeTaken(tx *gorm.DB, code string, selfID int64) error {
	if code == "" {
		return nil
	}
	var existing model.Product
	err := tx.Where("barcode = ?", code).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != selfID {
		return ErrBarcodeExists
	}
	return nil
}

func (s *gormStore) DeleteProduct(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&model.Product{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (s *gormStore) ListCarts(ctx context.Context) ([]model.Cart, error) {
	var carts []model.Cart
	if err := s.db.WithContext(ctx).Order("code").Find(&carts).Error; err != nil {
		return nil, err
	}
	return carts, nil
}

func (s *gormStore) CreateCart(ctx context.Context, c *model.Cart) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Cart
		err := tx.Where("code = ?", c.Code).First(&existing).Error
		if err == nil {
			return ErrCartCodeExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(c).Error
	})
}

func (s *gormStore) UpdateCart(ctx context.Context, c *model.Cart) error {
	res := s.db.WithContext(ctx).Model(&model.Cart{ID: c.ID}).
		Updates(map[string]any{"label": c.Label, "active": c.Active})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCartNotFound
	}
	return s.db.WithContext(ctx).First(c, c.ID).Error
}

func (s *gormStore) DeleteCart(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Select("Items").Delete(&model.Cart{ID: id})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (s *gormStore) CartByCode(ctx context.Context, code string) (*model.Cart, error) {
	var c model.Cart
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCartNotFound, code)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *gormStore) CartItems(ctx context.Context, cartCode string) ([]model.CartItem, error) {
	cart, err := s.CartByCode(ctx, cartCode)
	if err != nil {
		return nil, err
	}
	var items []model.CartItem
	if err := s.db.WithContext(ctx).Where("cart_id = ?", cart.ID).Order("created_at").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// AddItemToCart appends a line to the cart with merge-if-exists semantics:
// when the product is already in the cart its quantity is incremented
// instead of creating a duplicate line.
func (s *gormStore) AddItemToCart(ctx context.Context, cartCode string, item model.CartItem) (*model.CartItem, error) {
	var out model.CartItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cart model.Cart
		err := tx.Where("code = ?", cartCode).First(&cart).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrCartNotFound, cartCode)
		}
		if err != nil {
			return err
		}

		var existing model.CartItem
		err = tx.Where("cart_id = ? AND product_id = ?", cart.ID, item.ProductID).First(&existing).Error
		switch {
		case err == nil:
			existing.Quantity += item.Quantity
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			out = existing
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			item.CartID = cart.ID
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			out = item
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *gormStore) UpdateCartItem(ctx context.Context, cartCode string, itemID int64, quantity int) (*model.CartItem, error) {
	if quantity < 1 {
		quantity = 1
	}
	var out model.CartItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := cartByCodeTx(tx, cartCode)
		if err != nil {
			return err
		}
		var item model.CartItem
		err = tx.Where("id = ? AND cart_id = ?", itemID, cart.ID).First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrItemNotFound
		}
		if err != nil {
			return err
		}
		item.Quantity = quantity
		if err := tx.Save(&item).Error; err != nil {
			return err
		}
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *gormStore) RemoveCartItem(ctx context.Context, cartCode string, itemID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := cartByCodeTx(tx, cartCode)
		if err != nil {
			return err
		}
		res := tx.Where("id = ? AND cart_id = ?", itemID, cart.ID).Delete(&model.CartItem{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrItemNotFound
		}
		return nil
	})
}

func cartByCodeTx(tx *gorm.DB, code string) (*model.Cart, error) {
	var cart model.Cart
	err := tx.Where("code = ?", code).First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCartNotFound, code)
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (s *gormStore) AdminByUsername(ctx context.Context, username string) (*model.Admin, error) {
	var admin model.Admin
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAdminNotFound
	}
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

// EnsureAdmin seeds the shared admin credential on first start; an existing
// account is left untouched.
func (s *gormStore) EnsureAdmin(ctx context.Context, username, passwordHash string) error {
	var admin model.Admin
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&admin).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.WithContext(ctx).Create(&model.Admin{
		Username:     username,
		PasswordHash: passwordHash,
	}).Error
}
