// speed_calibrator guides a manual calibration run and writes the
// calibration JSON the car loads at startup. For each speed step the car
// drives straight for a fixed time; you measure the distance it covered
// with a tape measure and type it in. Optionally it also records
// bounding-box-area-to-distance points for the bbox distance source.
//
// Usage:
//
//	go run ./calibration/speed_calibrator -hat-port /dev/ttyUSB0 -out calibration.json
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ranhaber/car-x/picar"
)

var (
	hatPort     = flag.String("hat-port", "/dev/ttyUSB0", "Robot hat serial port")
	outPath     = flag.String("out", "calibration.json", "Output calibration file")
	driveSec    = flag.Float64("drive-sec", 2.0, "Seconds to drive at each speed step")
	maxSteerDeg = flag.Float64("max-steer", 25, "Measured steering limit in degrees")
	turnRadius  = flag.Float64("turn-radius", 40, "Measured minimum turn radius in cm")
	wheelbase   = flag.Float64("wheelbase", 9.5, "Wheelbase in cm")
)

var speedSteps = []int{10, 20, 40, 60, 80, 100}

// calibrationFile mirrors the schema the calibration package loads.
type calibrationFile struct {
	MaxSteerAngleDeg float64      `json:"max_steer_angle_deg"`
	MinTurnRadiusCm  float64      `json:"min_turn_radius_cm"`
	WheelbaseCm      float64      `json:"wheelbase_cm"`
	TargetDistanceCm float64      `json:"target_distance_cm"`
	DistanceSource   string       `json:"distance_source"`
	SpeedToCmPerSec  [][2]float64 `json:"speed_to_cm_per_sec"`
	BBoxAreaToCm     [][2]float64 `json:"bbox_area_to_cm,omitempty"`
}

func main() {
	flag.Parse()

	hat, err := picar.Open(*hatPort)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening hat: %v\n", err)
		os.Exit(1)
	}
	defer hat.Close()
	defer hat.Halt()

	scanner := bufio.NewScanner(os.Stdin)

	fmt.Printf("📏 CAR-X SPEED CALIBRATION\n")
	fmt.Printf("==========================\n\n")
	fmt.Printf("The car will drive straight for %.1f s at each speed step.\n", *driveSec)
	fmt.Printf("Mark the start position, measure how far it went, type the cm.\n")
	fmt.Printf("Press Enter before each step when the track is clear.\n\n")

	file := calibrationFile{
		MaxSteerAngleDeg: *maxSteerDeg,
		MinTurnRadiusCm:  *turnRadius,
		WheelbaseCm:      *wheelbase,
		TargetDistanceCm: 15,
		DistanceSource:   "range",
	}

	for _, speed := range speedSteps {
		fmt.Printf("▶ Speed %d: press Enter to drive...", speed)
		scanner.Scan()

		hat.SetSteerDeg(0)
		hat.SetSpeed(speed)
		time.Sleep(time.Duration(*driveSec * float64(time.Second)))
		hat.Halt()

		cm, ok := askFloat(scanner, "  Distance traveled (cm, empty to skip): ")
		if !ok {
			fmt.Printf("  skipped\n\n")
			continue
		}
		cmPerSec := cm / *driveSec
		file.SpeedToCmPerSec = append(file.SpeedToCmPerSec, [2]float64{float64(speed), cmPerSec})
		fmt.Printf("  recorded: speed %d → %.1f cm/s\n\n", speed, cmPerSec)
	}

	if len(file.SpeedToCmPerSec) < 2 {
		fmt.Fprintf(os.Stderr, "need at least 2 recorded speed points, got %d\n", len(file.SpeedToCmPerSec))
		os.Exit(1)
	}

	fmt.Printf("📦 Optional: bounding-box distance points (for distance_source=bbox).\n")
	fmt.Printf("Place the target at a known distance, read its box area from\n")
	fmt.Printf("/api/status, and enter both. Empty area ends the list.\n\n")
	for {
		area, ok := askFloat(scanner, "  Box area (px², empty to finish): ")
		if !ok {
			break
		}
		cm, ok := askFloat(scanner, "  Distance (cm): ")
		if !ok {
			break
		}
		file.BBoxAreaToCm = append(file.BBoxAreaToCm, [2]float64{area, cm})
	}

	out, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encoding calibration: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outPath, out, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "writing %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	fmt.Printf("✅ wrote %s (%d speed points, %d bbox points)\n",
		*outPath, len(file.SpeedToCmPerSec), len(file.BBoxAreaToCm))
}

func askFloat(scanner *bufio.Scanner, prompt string) (float64, bool) {
	fmt.Print(prompt)
	if !scanner.Scan() {
		return 0, false
	}
	text := strings.TrimSpace(scanner.Text())
	if text == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		fmt.Printf("  not a number: %q\n", text)
		return askFloat(scanner, prompt)
	}
	return v, true
}
