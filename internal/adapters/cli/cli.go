package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/DieForGlory/portal-analytics-sub000/internal/app"
	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
)

// Run executes a one-shot CLI command and exits.
// args is os.Args[1:] — the first element is the subcommand name.
func Run(ctx context.Context, svc app.ApplicationService, args []string) {
	switch args[0] {
	case "sync", "s":
		full := len(args) > 1 && args[1] == "--full"
		outcomes, err := svc.RunSync(ctx, full)
		if err != nil {
			log.Fatalf("Sync failed: %v", err)
		}
		printOutcomes(outcomes)

	case "rate", "r":
		rate, err := svc.RefreshCBURate(ctx)
		if err != nil {
			log.Fatalf("Rate refresh failed: %v", err)
		}
		fmt.Printf("CBU rate updated: %s UZS/USD\n", rate.StringFixed(2))

	case "versions":
		versions, err := svc.ListDiscountVersions(ctx)
		if err != nil {
			log.Fatalf("Failed to list versions: %v", err)
		}
		printVersions(versions)

	case "activate":
		if len(args) < 2 {
			log.Fatal("Usage: app activate <version-id> [comment]")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			log.Fatalf("Invalid version id: %s", args[1])
		}
		comment := ""
		if len(args) > 2 {
			comment = args[2]
		}
		if err := svc.ActivateDiscountVersion(ctx, id, comment); err != nil {
			log.Fatalf("Activation failed: %v", err)
		}
		fmt.Println("Version activated.")

	case "summary":
		summary, err := svc.DiscountSummary(ctx)
		if err != nil {
			log.Fatalf("Failed to build summary: %v", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)

	case "offer":
		if len(args) < 2 {
			log.Fatal("Usage: app offer <unit-id>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			log.Fatalf("Invalid unit id: %s", args[1])
		}
		offer, err := svc.UnitOffer(ctx, id)
		if err != nil {
			log.Fatalf("Failed to build offer: %v", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(offer)

	case "template":
		path := "discount_template.xlsx"
		if len(args) > 1 {
			path = args[1]
		}
		data, err := svc.DiscountTemplate(ctx)
		if err != nil {
			log.Fatalf("Failed to render template: %v", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			log.Fatalf("Failed to write %s: %v", path, err)
		}
		fmt.Printf("Template written to %s\n", path)

	case "import":
		if len(args) < 3 {
			log.Fatal("Usage: app import <version-id> <workbook.xlsx>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			log.Fatalf("Invalid version id: %s", args[1])
		}
		f, err := os.Open(args[2])
		if err != nil {
			log.Fatalf("Failed to open workbook: %v", err)
		}
		defer f.Close()
		outcome, err := svc.ImportDiscountWorkbook(ctx, id, f)
		if err != nil {
			log.Fatalf("Import failed: %v", err)
		}
		fmt.Printf("Imported: %d created, %d updated\n", outcome.Created, outcome.Updated)

	case "manual-rate":
		if len(args) < 2 {
			log.Fatal("Usage: app manual-rate <uzs-per-usd>")
		}
		rate, err := decimal.NewFromString(args[1])
		if err != nil {
			log.Fatalf("Invalid rate: %s", args[1])
		}
		if err := svc.SetManualRate(ctx, rate); err != nil {
			log.Fatalf("Failed to set rate: %v", err)
		}
		fmt.Println("Manual rate saved.")

	default:
		log.Fatalf("Unknown command: %s\nAvailable: sync, rate, manual-rate, versions, activate, summary, offer, template, import", args[0])
	}
}

func printOutcomes(outcomes []core.TableOutcome) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 58))
	fmt.Printf("  %-24s %8s %8s %8s\n", "TABLE", "ADDED", "UPDATED", "DELETED")
	fmt.Println(strings.Repeat("-", 58))
	for _, o := range outcomes {
		if o.Err != "" {
			fmt.Printf("  %-24s FAILED: %s\n", o.Table, o.Err)
			continue
		}
		fmt.Printf("  %-24s %8d %8d %8d\n", o.Table, o.Added, o.Updated, o.Deleted)
	}
	fmt.Println(strings.Repeat("=", 58))
}

func printVersions(versions []core.DiscountVersion) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("  %-6s %-6s %-8s %-19s %s\n", "ID", "NUM", "ACTIVE", "CREATED", "COMMENT")
	fmt.Println(strings.Repeat("-", 70))
	for _, v := range versions {
		active := ""
		if v.IsActive {
			active = "yes"
		}
		comment := ""
		if v.Comment != nil {
			comment = *v.Comment
		}
		fmt.Printf("  %-6d %-6d %-8s %-19s %s\n",
			v.ID, v.Number, active, v.CreatedAt.Format("2006-01-02 15:04:05"), comment)
	}
	fmt.Println(strings.Repeat("=", 70))
}
