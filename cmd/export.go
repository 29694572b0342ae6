package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"example.com/backstage/services/procurement/internal/export"
	"example.com/backstage/services/procurement/internal/procurement"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	exportBucket string
	exportOut    string
)

var sheetNames = map[procurement.Bucket]string{
	procurement.BucketRequired: "Required",
	procurement.BucketOrdered:  "Ordered",
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the current requirement trees to an xlsx workbook",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportBucket, "bucket", "", "required, ordered or empty for both")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "requirements.xlsx", "output file, - for stdout")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	var buckets []procurement.Bucket
	switch strings.ToLower(exportBucket) {
	case "":
		buckets = []procurement.Bucket{procurement.BucketRequired, procurement.BucketOrdered}
	case "required":
		buckets = []procurement.Bucket{procurement.BucketRequired}
	case "ordered":
		buckets = []procurement.Bucket{procurement.BucketOrdered}
	default:
		return fmt.Errorf("unknown bucket %q", exportBucket)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	deps, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	if err := deps.service.Refresh(cmd.Context()); err != nil {
		return err
	}

	sheets := make([]export.Sheet, 0, len(buckets))
	for _, b := range buckets {
		sheets = append(sheets, export.Sheet{Name: sheetNames[b], Tree: deps.service.Tree(b)})
	}

	var out io.Writer = os.Stdout
	if exportOut != "-" {
		file, err := os.Create(exportOut)
		if err != nil {
			return errors.Wrap(err, "failed to create output file")
		}
		defer file.Close()
		out = file
	}

	if err := export.WriteWorkbook(out, sheets...); err != nil {
		return err
	}

	log.Info().Str("out", exportOut).Int("sheets", len(sheets)).Msg("Export written")
	return nil
}
