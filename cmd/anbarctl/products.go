package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hybrid-bistoon/anbar/internal/ingest"
	"github.com/hybrid-bistoon/anbar/internal/services/catalog"
	"github.com/spf13/cobra"
)

var (
	importDebug     bool
	dimensionsLimit int
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "Catalog maintenance",
}

var productsImportCmd = &cobra.Command{
	Use:   "import <file.xlsx|file.csv>",
	Short: "Bulk update existing products from a supplier spreadsheet",
	Long: `Reads an xlsx workbook (Persian headers are detected automatically) or a
csv with code,name,model,box_num,in_stock headers, and updates products that
already exist. Unknown codes are reported, never created.`,
	Args: cobra.ExactArgs(1),
	RunE: runProductsImport,
}

var productsDimensionsCmd = &cobra.Command{
	Use:   "dimensions",
	Short: "List products whose names carry implausibly small sizes",
	RunE:  runProductsDimensions,
}

func init() {
	productsImportCmd.Flags().BoolVar(&importDebug, "debug", false, "include detected header row and column samples")
	productsDimensionsCmd.Flags().IntVarP(&dimensionsLimit, "limit", "l", 50, "maximum number of products to list")
	productsCmd.AddCommand(productsImportCmd, productsDimensionsCmd)
}

func runProductsImport(cmd *cobra.Command, args []string) error {
	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	e, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()
	svc := catalog.NewService(e.store, e.log)

	var report *catalog.BulkReport
	if strings.EqualFold(filepath.Ext(args[0]), ".csv") {
		candidates, err := ingest.ReadCatalogCSV(file)
		if err != nil {
			return fmt.Errorf("failed to parse CSV: %w", err)
		}
		report, err = svc.BulkUpdate(cmd.Context(), candidates)
		if err != nil {
			return err
		}
	} else {
		report, err = svc.ImportWorkbook(cmd.Context(), file, importDebug)
		if err != nil {
			return err
		}
	}
	return printJSON(report)
}

func runProductsDimensions(cmd *cobra.Command, args []string) error {
	e, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	issues, err := catalog.NewService(e.store, e.log).DimensionIssues(cmd.Context(), dimensionsLimit)
	if err != nil {
		return err
	}
	for _, is := range issues {
		fmt.Printf("%s\t%s\t%s → %s\n", is.Code, is.Name, is.Dimensions, is.Suggested)
	}
	fmt.Printf("%d product(s)\n", len(issues))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
