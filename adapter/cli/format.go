package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
)

// ResultError converts a non-OK simulator result into an error for cobra.
func ResultError(res domain.Result) error {
	if res.OK() {
		return nil
	}
	return fmt.Errorf("billing: %s", res.String())
}

// ParseOptionalType parses a --type flag. An empty value means every type.
func ParseOptionalType(value string) (domain.ProductType, error) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}
	return domain.ParseProductType(value)
}

// PrintProducts writes products in the listing format shared by commands.
func PrintProducts(w io.Writer, products []domain.Product) {
	if len(products) == 0 {
		fmt.Fprintln(w, "No products found.")
		return
	}

	fmt.Fprintf(w, "Products (%d):\n", len(products))
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, p := range products {
		fmt.Fprintf(w, "%s [%s] %s\n", p.SKU, p.Type, p.Price)
		if p.Title != "" && p.Title != p.SKU {
			fmt.Fprintf(w, "   Title: %s\n", p.Title)
		}
		if p.SubscriptionPeriod != "" {
			fmt.Fprintf(w, "   Period: %s\n", p.SubscriptionPeriod)
		}
		if p.FreeTrialPeriod != "" {
			fmt.Fprintf(w, "   Trial: %s\n", p.FreeTrialPeriod)
		}
	}
}

// PrintPurchases writes purchases in the listing format shared by commands.
func PrintPurchases(w io.Writer, purchases []domain.Purchase) {
	if len(purchases) == 0 {
		fmt.Fprintln(w, "No purchases found.")
		return
	}

	fmt.Fprintf(w, "Purchases (%d):\n", len(purchases))
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, p := range purchases {
		PrintPurchase(w, p)
	}
}

// PrintPurchase writes a single purchase.
func PrintPurchase(w io.Writer, p domain.Purchase) {
	flags := []string{p.State.String()}
	if p.Acknowledged {
		flags = append(flags, "acknowledged")
	}
	if p.IsAutoRenewing() {
		flags = append(flags, "auto-renewing")
	}

	fmt.Fprintf(w, "%s [%s] (%s)\n", strings.Join(p.SKUs, ","), p.Type(), strings.Join(flags, ", "))
	fmt.Fprintf(w, "   Token: %s\n", p.PurchaseToken)
	if p.OrderID != "" {
		fmt.Fprintf(w, "   Order: %s\n", p.OrderID)
	}
	fmt.Fprintf(w, "   Purchased: %s\n", time.UnixMilli(p.PurchaseTime).UTC().Format(time.RFC3339))
}
