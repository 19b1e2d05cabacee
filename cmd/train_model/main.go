// Command train_model fits the decision tree artifact served by churnguard
// from a labelled history table (the Prediction column is the label).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"churnguard/customer"
	"churnguard/history"
	"churnguard/ml"
)

func main() {
	dataPath := flag.String("data", "", "labelled CSV with the history table columns")
	modelPath := flag.String("model_path", "./models/churn_model.json", "model output path")
	maxDepth := flag.Int("max_depth", 6, "max tree depth")
	testRatio := flag.Float64("test_ratio", 0.2, "test ratio")
	flag.Parse()

	if *dataPath == "" {
		log.Fatal("data is required")
	}

	records, err := loadRecords(*dataPath)
	if err != nil {
		log.Fatalf("failed to load training data: %v", err)
	}
	features, labels, err := ml.BuildTrainingSet(records)
	if err != nil {
		log.Fatalf("failed to build training data: %v", err)
	}

	trainX, trainY, testX, testY := ml.SplitDataset(features, labels, *testRatio)

	var model ml.Trainable = ml.NewDecisionTree(*maxDepth)
	if err := model.Train(trainX, trainY); err != nil {
		log.Fatalf("failed to train model: %v", err)
	}

	accuracy, precision, recall := ml.Evaluate(model, testX, testY)
	log.Printf("rows=%d train=%d test=%d accuracy=%.2f precision=%.2f recall=%.2f",
		len(features), len(trainX), len(testX), accuracy, precision, recall)

	if err := os.MkdirAll(filepath.Dir(*modelPath), 0o755); err != nil {
		log.Fatalf("failed to create model dir: %v", err)
	}
	if err := model.Save(*modelPath); err != nil {
		log.Fatalf("failed to save model: %v", err)
	}

	fmt.Printf("model saved to %s\n", *modelPath)
}

func loadRecords(path string) ([]customer.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return history.ReadTable(f)
}
