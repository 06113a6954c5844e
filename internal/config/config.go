package config

import "time"

type Config struct {
	StartPath   string
	EndPath     string
	StartPage   int
	EndPage     int
	Instruction string
	OutputDir   string
	ModelID     string
	OllamaURL   string
	Timeout     time.Duration
	Workers     int
	MaxDim      int
	DPI         int
	Verbose     bool
}

func Default() Config {
	return Config{
		OutputDir: "output",
		ModelID:   "llama3.2-vision",
		OllamaURL: "http://localhost",
		Timeout:   60 * time.Second,
		MaxDim:    1024,
		DPI:       150,
	}
}
