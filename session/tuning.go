package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"lie-detector/calibration"
	"lie-detector/cue"
	"lie-detector/utils"
)

var tuningValidate = validator.New()

// Tuning gathers every empirical constant of the pipeline. None of them is
// principled; they are kept configurable so they can be re-fit.
type Tuning struct {
	Schedule   calibration.Schedule `json:"schedule" yaml:"schedule"`
	SmileGuard bool                 `json:"smile_guard" yaml:"smile_guard"`
	Blush      cue.BlushConfig      `json:"blush" yaml:"blush"`

	K           int     `json:"k" yaml:"k" validate:"gte=1"`
	DatasetPath string  `json:"dataset_path" yaml:"dataset_path" validate:"required"`
	Standardize bool    `json:"standardize" yaml:"standardize"`
	SplitRatio  float64 `json:"split_ratio" yaml:"split_ratio" validate:"gte=0,lte=1"`
}

// DefaultTuning returns the stock constants. DATASET_PATH and KNN_K override
// the classifier defaults.
func DefaultTuning() Tuning {
	return Tuning{
		Schedule:    calibration.DefaultSchedule(),
		SmileGuard:  true,
		Blush:       cue.DefaultBlushConfig(),
		K:           utils.GetEnvInt("KNN_K", 3),
		DatasetPath: utils.GetEnv("DATASET_PATH", "files/dataset.csv"),
		SplitRatio:  0.7,
	}
}

// Validate checks field ranges and the calibration phase ordering.
func (t Tuning) Validate() error {
	if err := tuningValidate.Struct(t); err != nil {
		return err
	}
	return t.Schedule.Validate()
}

// LoadTuning overlays the YAML file at path on DefaultTuning. A missing file
// yields the defaults.
func LoadTuning(path string) (Tuning, error) {
	tuning := DefaultTuning()
	if path == "" {
		return tuning, tuning.Validate()
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return tuning, tuning.Validate()
		}
		return Tuning{}, fmt.Errorf("read tuning %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &tuning); err != nil {
		return Tuning{}, fmt.Errorf("parse tuning %s: %w", path, err)
	}
	if err := tuning.Validate(); err != nil {
		return Tuning{}, fmt.Errorf("invalid tuning %s: %w", path, err)
	}
	return tuning, nil
}
