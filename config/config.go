// Package config loads the YAML configuration shared by every subcommand.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"

	"winequality/ml"
	"winequality/wine"
)

const DefaultPath = "config.yaml"

type Config struct {
	Http struct {
		Port    int           `yaml:"port"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"http"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		JSON       bool   `yaml:"json"`
	} `yaml:"log"`
	Database struct {
		// Empty disables prediction history and the training log.
		Path string `yaml:"path"`
	} `yaml:"database"`
	Artifacts struct {
		ScalerPath string `yaml:"scaler_path"`
		ModelPath  string `yaml:"model_path"`
	} `yaml:"artifacts"`
	Predictor struct {
		CacheSize       int  `yaml:"cache_size"`
		AllowOutOfRange bool `yaml:"allow_out_of_range"`
	} `yaml:"predictor"`
	Training struct {
		Dataset      string  `yaml:"dataset"`
		Scheme       string  `yaml:"scheme"`
		ModelType    string  `yaml:"model_type"`
		TestRatio    float64 `yaml:"test_ratio"`
		Seed         int64   `yaml:"seed"`
		MaxTreeDepth int     `yaml:"max_tree_depth"`
		Iterations   int     `yaml:"iterations"`
		LearningRate float64 `yaml:"learning_rate"`
		L2           float64 `yaml:"l2"`
	} `yaml:"training"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.Http.Port = 8080
	c.Http.Timeout = 10 * time.Second
	c.Log.Level = "info"
	c.Log.MaxSizeMB = 50
	c.Log.MaxBackups = 3
	c.Log.MaxAgeDays = 28
	c.Artifacts.ScalerPath = "artifacts/scaler.json"
	c.Artifacts.ModelPath = "artifacts/model.json"
	c.Predictor.CacheSize = 256
	c.Training.Dataset = "WineQT.csv"
	c.Training.Scheme = wine.DefaultSchemeName
	c.Training.ModelType = ml.TypeSoftmax
	c.Training.TestRatio = ml.DefaultTestRatio
	c.Training.Seed = ml.DefaultSeed
	c.Training.MaxTreeDepth = 8
	soft := ml.DefaultSoftmaxConfig()
	c.Training.Iterations = soft.Iterations
	c.Training.LearningRate = soft.LearningRate
	c.Training.L2 = soft.L2
	return c
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

func (c *Config) Validate() error {
	var err error
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("http.port %d out of range", c.Http.Port))
	}
	if c.Http.Timeout < 0 {
		err = multierr.Append(err, errors.New("http.timeout must not be negative"))
	}
	if _, e := wine.ParseScheme(c.Training.Scheme); e != nil {
		err = multierr.Append(err, fmt.Errorf("training.scheme: %w", e))
	}
	if _, e := ml.NewClassifier(c.Training.ModelType, 2, ml.ClassifierOptions{}); e != nil {
		err = multierr.Append(err, fmt.Errorf("training.model_type: %w", e))
	}
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		err = multierr.Append(err, fmt.Errorf("training.test_ratio %g must be in (0, 1)", c.Training.TestRatio))
	}
	if c.Artifacts.ScalerPath == "" || c.Artifacts.ModelPath == "" {
		err = multierr.Append(err, errors.New("artifacts.scaler_path and artifacts.model_path are required"))
	}
	if c.Predictor.CacheSize < 0 {
		err = multierr.Append(err, errors.New("predictor.cache_size must not be negative"))
	}
	return err
}

func (c *Config) Scheme() wine.Scheme {
	scheme, err := wine.ParseScheme(c.Training.Scheme)
	if err != nil {
		return wine.Ternary
	}
	return scheme
}

func (c *Config) ClassifierOptions() ml.ClassifierOptions {
	return ml.ClassifierOptions{
		MaxTreeDepth: c.Training.MaxTreeDepth,
		Softmax: ml.SoftmaxConfig{
			Iterations:   c.Training.Iterations,
			LearningRate: c.Training.LearningRate,
			L2:           c.Training.L2,
		},
	}
}
