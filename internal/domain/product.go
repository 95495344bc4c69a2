package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ProductPrefix marks product price columns in the wide panel.
const ProductPrefix = "c_"

// ProductColumnPrefix prefixes one-hot product indicator columns.
const ProductColumnPrefix = "product_"

// ProductColumn returns the one-hot column name for a product code:
// "c_beans" -> "product_beans". Training and serving share this naming.
func ProductColumn(code string) string {
	return ProductColumnPrefix + strings.TrimPrefix(code, ProductPrefix)
}

// DisplayName renders a product code for humans: "c_meat_chicken_whole" -> "Meat Chicken Whole".
func DisplayName(code string) string {
	name := strings.ReplaceAll(strings.TrimPrefix(code, ProductPrefix), "_", " ")
	// Casers keep state; one per call is safe for concurrent handlers.
	return cases.Title(language.English).String(name)
}
