package cache

import (
	"fmt"
	"strings"
)

// Area groups cache keys that are invalidated together
type Area string

const (
	AreaStock     Area = "stock"
	AreaMenu      Area = "menu"
	AreaDashboard Area = "dashboard"
	AreaRegister  Area = "register"
	AreaWallet    Area = "wallet"
)

const namespace = "ledger"

// Key builds ledger:<tenant>:<outlet>:<area>[:<suffix>...]
func Key(tenantID, outletID uint, area Area, suffix ...string) string {
	parts := append([]string{Prefix(tenantID, outletID, area)}, suffix...)
	return strings.Join(parts, ":")
}

// Prefix is the key prefix shared by every key of an area
func Prefix(tenantID, outletID uint, area Area) string {
	return fmt.Sprintf("%s:%d:%d:%s", namespace, tenantID, outletID, area)
}
