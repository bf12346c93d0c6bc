package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jwulff/glucostatus/internal/glucose"
	"github.com/sirupsen/logrus"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: debug <readings.json> [config.yaml]")
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	var readings []glucose.Reading
	if err := json.Unmarshal(data, &readings); err != nil {
		fmt.Printf("Error parsing readings: %v\n", err)
		os.Exit(1)
	}
	if len(readings) == 0 {
		fmt.Println("No readings in file")
		os.Exit(1)
	}
	readings = glucose.SortNewestFirst(readings)

	configPath := ""
	if len(os.Args) > 2 {
		configPath = os.Args[2]
	}
	cfg, err := glucose.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.DebugLevel)

	// evaluate as of the newest reading so old captures are never stale
	now := readings[0].Timestamp
	calc, err := glucose.NewCalculator(cfg, log)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	trace, err := calc.Trace(readings, now, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Readings: %d\n", trace.Readings)
	fmt.Printf("Window: %d\n", trace.Window)
	if _, ok := trace.Smoothing.(glucose.Degraded); ok {
		fmt.Println("Smoothing: degraded")
	} else {
		fmt.Println("Smoothing: ready")
	}
	fmt.Printf("Rounded: %s\n\n", trace.Status.Rounded())

	out, _ := json.MarshalIndent(trace, "", "  ")
	fmt.Println(string(out))
}
