package pipeline

import (
	"fmt"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/narrative/helper"
)

// DefaultSentimentAnalyzer creates a sentiment stage using a text
// classification model fine tuned on SST-2. The winning label's confidence
// is mapped to [-1, 1] with negative labels counting below zero.
func DefaultSentimentAnalyzer() (SentimentFunc, error) {
	// Prepare model (download if needed)
	modelName := "KnightsAnalytics/distilbert-base-uncased-finetuned-sst-2-english"
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, err
	}

	// Initialize hugot session with Go backend
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	// Create text classification pipeline for sentiment
	config := hugot.TextClassificationConfig{
		ModelPath: modelPath,
		Name:      "sentiment-pipeline",
	}
	sentimentPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentiment pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentiment pipeline: %w", err)
	}

	return func(text string) (float64, error) {
		// Classify the text
		result, err := sentimentPipeline.RunPipeline([]string{text})
		if err != nil {
			return 0, fmt.Errorf("failed to classify sentiment: %w", err)
		}

		if len(result.ClassificationOutputs) == 0 || len(result.ClassificationOutputs[0]) == 0 {
			return 0, fmt.Errorf("no sentiment classification generated")
		}

		// Take the winning label and sign the confidence by polarity
		best := result.ClassificationOutputs[0][0]
		score := float64(best.Score)
		if strings.HasPrefix(strings.ToUpper(best.Label), "NEG") {
			return -score, nil
		}
		return score, nil
	}, nil
}
