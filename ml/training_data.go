package ml

import (
	"errors"
	"math"

	"churnguard/customer"
)

// BuildTrainingSet turns labelled records into vectors and labels. Records
// without a prediction are skipped.
func BuildTrainingSet(records []customer.Record) (features [][]float64, labels []int, err error) {
	for _, r := range records {
		label, ok := r.Label()
		if !ok {
			continue
		}
		features = append(features, r.Vector())
		labels = append(labels, label)
	}
	if len(features) == 0 {
		return nil, nil, errors.New("no labelled records")
	}
	return features, labels, nil
}

// SplitDataset keeps the first (1-testRatio) share for training.
func SplitDataset(features [][]float64, labels []int, testRatio float64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	split := int(math.Round(float64(len(features)) * (1 - testRatio)))
	for i := range features {
		if i < split {
			trainX = append(trainX, features[i])
			trainY = append(trainY, labels[i])
		} else {
			testX = append(testX, features[i])
			testY = append(testY, labels[i])
		}
	}
	return trainX, trainY, testX, testY
}

// Evaluate scores model on a held-out set. Label 1 is the positive class.
func Evaluate(model Model, testX [][]float64, testY []int) (accuracy, precision, recall float64) {
	if len(testX) == 0 {
		return 0, 0, 0
	}

	var correct, truePositive, predictedPositive, actualPositive int
	for i, feature := range testX {
		label, _, err := model.Predict(feature)
		if err != nil {
			continue
		}
		if label == testY[i] {
			correct++
		}
		if label == 1 {
			predictedPositive++
		}
		if testY[i] == 1 {
			actualPositive++
			if label == 1 {
				truePositive++
			}
		}
	}

	accuracy = float64(correct) / float64(len(testX))
	if predictedPositive > 0 {
		precision = float64(truePositive) / float64(predictedPositive)
	}
	if actualPositive > 0 {
		recall = float64(truePositive) / float64(actualPositive)
	}
	return accuracy, precision, recall
}
