package main

import (
	"context"
	"fmt"
	"image"
	"image/draw"

	"github.com/Tutortoise/mask-stream/classifier"
	"github.com/Tutortoise/mask-stream/models"
	"github.com/Tutortoise/mask-stream/overlay"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var classifyOutput string

var classifyCmd = &cobra.Command{
	Use:   "classify <image>",
	Short: "Classify a single image file",
	Long: `Run one image through the same preprocessing, model and labelling
as the live stream and print the result. With --output the annotated
image is written to disk.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().StringVarP(&classifyOutput, "output", "o", "", "Write the annotated image to this path")
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	img, err := imaging.Open(args[0], imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}

	clf, _, cleanup, err := buildClassifier(cfg)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	defer cleanup()

	timings := &models.ProcessingTimings{RequestID: uuid.NewString()}
	pred, err := classifier.Predict(context.Background(), clf, img, timings)
	if err != nil {
		return err
	}
	logTimings(timings)

	fmt.Printf("%s (%.3f)\n", pred.Label, pred.Probability)
	fmt.Println(getClassificationMessage(pred.Label))

	if classifyOutput == "" {
		return nil
	}
	return writeAnnotated(img, pred, classifyOutput)
}

func writeAnnotated(img image.Image, pred models.Prediction, path string) error {
	ann, err := overlay.New()
	if err != nil {
		return err
	}
	defer ann.Close()

	canvas := image.NewNRGBA(img.Bounds())
	draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Src)
	ann.Annotate(canvas, string(pred.Label), classifier.LabelColor(pred.Label))

	if err := imaging.Save(canvas, path); err != nil {
		return fmt.Errorf("save annotated image: %w", err)
	}
	fmt.Printf("Annotated image written to %s\n", path)
	return nil
}
