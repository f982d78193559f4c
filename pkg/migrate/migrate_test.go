package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, migrate.ValidateFS(migrate.Embedded()))
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestCatalogMigrationGuardsStock(t *testing.T) {
	content := readMigration(t, "*_create_catalog.sql")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS products",
		"CONSTRAINT chk_products_stock_nonnegative CHECK (stock >= 0)",
		"price numeric(12,2) NOT NULL",
		"CREATE TABLE IF NOT EXISTS shipping_methods",
		"DROP TABLE IF EXISTS products",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestCartMigrationEnforcesUniqueLine(t *testing.T) {
	content := readMigration(t, "*_create_cart_tables.sql")
	for _, sub := range []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_cart_items_user_product ON cart_items (user_id, product_id)",
		"CHECK (quantity >= 1)",
		"CREATE TABLE IF NOT EXISTS pending_carts",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestOrdersMigrationFreezesPrice(t *testing.T) {
	content := readMigration(t, "*_create_orders.sql")
	assert.Contains(t, content, "CREATE TABLE IF NOT EXISTS order_items")
	assert.Contains(t, content, "price numeric(12,2) NOT NULL")
	assert.Contains(t, content, "status IN ('pending', 'shipped', 'completed', 'cancelled')")
}

func TestValidateRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	assert.Error(t, migrate.ValidateDir(dir))
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Product SKU!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_product_sku.sql"))
	require.NoError(t, migrate.ValidateDir(dir))
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := fs.Glob(migrate.Embedded(), pattern)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := fs.ReadFile(migrate.Embedded(), matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "add_order_notes", migrate.Slug("  Add order-notes  "))
	assert.Equal(t, "", migrate.Slug("!!!"))
}

func TestCreateSQLMigrationRejectsEmptySlug(t *testing.T) {
	_, err := migrate.CreateSQLMigration(t.TempDir(), "---")
	assert.Error(t, err)
}
