package main

import (
	"fmt"

	"github.com/hybrid-bistoon/anbar/internal/services/catalog"
	"github.com/spf13/cobra"
)

var generateCount int

var barcodeCmd = &cobra.Command{
	Use:   "barcode",
	Short: "Barcode allocation",
}

var barcodeGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Allocate new unique unit barcodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if generateCount < 1 || generateCount > 1000 {
			return fmt.Errorf("-n must be between 1 and 1000")
		}
		e, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		svc := catalog.NewService(e.store, e.log)
		for i := 0; i < generateCount; i++ {
			p, err := svc.Generate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(p.Code)
		}
		return nil
	},
}

func init() {
	barcodeGenerateCmd.Flags().IntVarP(&generateCount, "count", "n", 1, "how many barcodes to generate")
	barcodeCmd.AddCommand(barcodeGenerateCmd)
}
