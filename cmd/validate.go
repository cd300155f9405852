package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blackmouse572/skin-doctor/internal/config"
	"github.com/blackmouse572/skin-doctor/internal/facequality"
	"github.com/blackmouse572/skin-doctor/internal/grpcclient"
	"github.com/blackmouse572/skin-doctor/internal/imageio"
	"github.com/blackmouse572/skin-doctor/internal/landmarker"
	"github.com/blackmouse572/skin-doctor/internal/logging"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Check photos the way uploads are checked",
	Long: `Validate one or more photos against the face landmark service and print
the result for each as JSON. Exits non-zero when any photo is invalid.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().String("landmarker", "", "Face landmark service address (overrides LANDMARKER_ADDR)")
}

type fileValidation struct {
	File       string                       `json:"file"`
	Error      string                       `json:"error,omitempty"`
	Validation *facequality.ImageValidation `json:"validation,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("landmarker"); addr != "" {
		cfg.Landmarker.Addr = addr
	}

	logger, err := logging.NewLogger(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	load, conn, err := grpcclient.DialLandmarker(cmd.Context(), cfg.Landmarker.Addr, logger)
	if err != nil {
		return fmt.Errorf("connect to face landmarker: %w", err)
	}
	defer conn.Close()

	images := landmarker.NewManager(load, landmarker.ImageOptions(), logger)
	defer images.Close()

	return validateFiles(cmd.Context(), cmd.OutOrStdout(), facequality.NewValidator(images, logger), logger, args)
}

// validateFiles prints one JSON document per path, in argument order.
func validateFiles(ctx context.Context, out io.Writer, validator *facequality.Validator, logger *zap.Logger, paths []string) error {
	results := make([]fileValidation, len(paths))
	var (
		images  []image.Image
		indexes []int
	)
	for i, path := range paths {
		results[i].File = path
		img, err := decodeFile(path)
		if err != nil {
			logger.Warn("skipping unreadable photo", zap.String("file", path), zap.Error(err))
			results[i].Error = err.Error()
			continue
		}
		images = append(images, imageio.FitWithin(img, imageio.MaxSide))
		indexes = append(indexes, i)
	}

	for j, validation := range validator.ValidateAll(ctx, images) {
		results[indexes[j]].Validation = &validation
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	invalid := 0
	for _, result := range results {
		if result.Validation == nil || !result.Validation.IsValid {
			invalid++
		}
		if err := enc.Encode(result); err != nil {
			return err
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d photos failed validation", invalid, len(paths))
	}
	return nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return imageio.Decode(f)
}
