package migrate

import (
	"context"
	"fmt"

	"fulfillment-service/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MigrateOptions struct {
	CreateExtensions       bool // pgcrypto
	CreateChecks           bool // CHECK-constraint для целостности остатков и статусов
	CreateIndexes          bool // частичные и составные индексы
	CreateUpdatedAtTrigger bool // триггер обновления updated_at
}

func DefaultMigrateOptions() MigrateOptions {
	return MigrateOptions{
		CreateExtensions:       true,
		CreateChecks:           true,
		CreateIndexes:          true,
		CreateUpdatedAtTrigger: true,
	}
}

var updatedAtTables = []string{
	"products", "product_variants", "perishable_products", "size_categories",
	"inventory_units", "orders", "allocations", "carts", "cart_items",
}

type checkConstraint struct {
	table string
	name  string
	expr  string
}

var checks = []checkConstraint{
	{"products", "chk_products_stock_non_negative", "stock >= 0 AND sold >= 0"},
	{"products", "chk_products_sale_price", "sale_price IS NULL OR sale_price <= price"},
	{"products", "chk_products_status", "status IN ('active','inactive')"},
	{"product_variants", "chk_variants_stock_non_negative", "stock >= 0 AND sold >= 0"},
	{"product_variants", "chk_variants_sale_price", "sale_price IS NULL OR sale_price <= price"},
	{"product_variants", "chk_variants_status", "status IN ('active','out_of_stock','inactive')"},
	{"perishable_products", "chk_perishable_mode", "inventory_mode IN ('count','unit')"},
	{"size_categories", "chk_size_categories_stock_non_negative", "stock >= 0 AND sold >= 0"},
	{"size_categories", "chk_size_categories_status", "status IN ('active','out_of_stock','inactive')"},
	{"inventory_units", "chk_units_status", "status IN ('available','reserved','sold','expired','damaged')"},
	{"inventory_units", "chk_units_weight_positive", "actual_weight_kg > 0"},
	{"inventory_units", "chk_units_reserved_has_order", "status <> 'reserved' OR reserved_order_id IS NOT NULL"},
	{"orders", "chk_orders_status", "status IN ('pending','confirmed','processing','shipped','delivered','cancelled')"},
	{"orders", "chk_orders_payment_status", "payment_status IN ('pending','completed','cancelled')"},
	{"orders", "chk_orders_zone", "zone IN ('inside_hub','outside_hub')"},
	{"orders", "chk_orders_totals_non_negative", "total_price >= 0 AND shipping_fee >= 0 AND total_amount >= 0"},
	{"orders", "chk_orders_buyer_or_guest", "user_id IS NOT NULL OR (guest_name <> '' AND guest_phone <> '')"},
	{"order_items", "chk_order_items_amount", "quantity > 0 OR requested_weight_kg > 0"},
	{"order_items", "chk_order_items_prices_non_negative", "unit_price >= 0 AND line_total >= 0"},
	{"allocations", "chk_allocations_status", "status IN ('reserved','released','finalized')"},
	{"cart_items", "chk_cart_items_quantity", "quantity > 0"},
}

func MigrateDB(ctx context.Context, db *gorm.DB, log *zap.Logger, opt MigrateOptions) error {
	log.Info("Начало миграции базы данных")
	db = db.WithContext(ctx)

	if opt.CreateExtensions {
		log.Info("Создание расширений PostgreSQL")
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
			log.Error("Не удалось включить расширение pgcrypto", zap.Error(err))
			return err
		}
	}

	log.Info("Создание таблиц каталога, заказов и корзин")
	if err := db.AutoMigrate(
		&models.Product{}, &models.Variant{},
		&models.PerishableProduct{}, &models.SizeCategory{}, &models.InventoryUnit{},
		&models.Order{}, &models.OrderItem{}, &models.Allocation{},
		&models.Cart{}, &models.CartItem{},
	); err != nil {
		log.Error("Не удалось создать таблицы", zap.Error(err))
		return err
	}
	log.Info("Таблицы успешно созданы")

	if opt.CreateUpdatedAtTrigger {
		log.Info("Создание триггеров updated_at")
		if err := db.Exec(`
CREATE OR REPLACE FUNCTION set_updated_at() RETURNS trigger AS $$
BEGIN NEW.updated_at = now(); RETURN NEW; END; $$ LANGUAGE plpgsql;
`).Error; err != nil {
			log.Error("Не удалось создать функцию set_updated_at", zap.Error(err))
			return err
		}
		for _, table := range updatedAtTables {
			stmt := fmt.Sprintf(`
DROP TRIGGER IF EXISTS trg_%[1]s_updated ON %[1]s;
CREATE TRIGGER trg_%[1]s_updated
BEFORE UPDATE ON %[1]s
FOR EACH ROW EXECUTE FUNCTION set_updated_at();
`, table)
			if err := db.Exec(stmt).Error; err != nil {
				log.Error("Не удалось создать триггер updated_at", zap.String("table", table), zap.Error(err))
				return err
			}
		}
		log.Info("Триггеры updated_at успешно созданы")
	}

	if opt.CreateChecks {
		log.Info("Создание CHECK-ограничений")
		for _, c := range checks {
			stmt := fmt.Sprintf(`
ALTER TABLE %[1]s
  DROP CONSTRAINT IF EXISTS %[2]s;
ALTER TABLE %[1]s
  ADD CONSTRAINT %[2]s
  CHECK (%[3]s);
`, c.table, c.name, c.expr)
			if err := db.Exec(stmt).Error; err != nil {
				log.Error("Не удалось создать CHECK", zap.String("constraint", c.name), zap.Error(err))
				return err
			}
		}
		log.Info("CHECK-ограничения успешно созданы")
	}

	if opt.CreateIndexes {
		log.Info("Создание индексов")

		// Не больше одного варианта по умолчанию на товар
		if err := db.Exec(`
CREATE UNIQUE INDEX IF NOT EXISTS ux_variants_one_default
ON product_variants (product_id) WHERE is_default;
`).Error; err != nil {
			log.Error("Не удалось создать индекс ux_variants_one_default", zap.Error(err))
			return err
		}

		// Выборка свободных штук по возрастанию веса
		if err := db.Exec(`
CREATE INDEX IF NOT EXISTS ix_units_category_status_weight
ON inventory_units (size_category_id, status, actual_weight_kg, id);
`).Error; err != nil {
			log.Error("Не удалось создать индекс ix_units_category_status_weight", zap.Error(err))
			return err
		}

		if err := db.Exec(`
CREATE INDEX IF NOT EXISTS ix_orders_user_created
ON orders (user_id, created_at DESC);
`).Error; err != nil {
			log.Error("Не удалось создать индекс ix_orders_user_created", zap.Error(err))
			return err
		}

		if err := db.Exec(`
CREATE INDEX IF NOT EXISTS ix_orders_status_created
ON orders (status, created_at DESC);
`).Error; err != nil {
			log.Error("Не удалось создать индекс ix_orders_status_created", zap.Error(err))
			return err
		}

		log.Info("Индексы успешно созданы")
	}

	log.Info("Миграция базы данных успешно завершена")
	return nil
}
