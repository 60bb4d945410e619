package detection

import (
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// dnnInputSize is the square network input. MobileNet-SSD class models are
// trained at 300×300; the blob letterboxing below assumes a square input.
const dnnInputSize = 300

// DNNProvider runs an OpenCV DNN detection model (e.g. MobileNet-SSD
// trained on COCO) and returns the best box of one target class.
type DNNProvider struct {
	net           gocv.Net
	classNames    []string
	targetClassID int
	minConfidence float64
	mu            sync.Mutex
}

// NewDNNProvider loads the model and resolves the target class (e.g.
// "cat") against the names file.
func NewDNNProvider(modelPath, configPath, namesPath, targetClass string, minConfidence float64) (*DNNProvider, error) {
	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load detection network from %s and %s", modelPath, configPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	namesBytes, err := os.ReadFile(namesPath)
	if err != nil {
		net.Close()
		return nil, fmt.Errorf("could not read class names: %v", err)
	}
	names := strings.Split(strings.TrimSpace(string(namesBytes)), "\n")

	targetID := -1
	for i, n := range names {
		if strings.TrimSpace(n) == targetClass {
			targetID = i
			break
		}
	}
	if targetID < 0 {
		net.Close()
		return nil, fmt.Errorf("target class %q not in %s", targetClass, namesPath)
	}

	debugMsg("DETECT", fmt.Sprintf("loaded model %s, target class %q (id %d)", modelPath, targetClass, targetID))
	return &DNNProvider{
		net:           net,
		classNames:    names,
		targetClassID: targetID,
		minConfidence: minConfidence,
	}, nil
}

// Detect runs one forward pass and returns the best-scoring target box.
// SSD output rows are [batchID, classID, confidence, left, top, right,
// bottom] with coordinates normalized to [0,1].
func (p *DNNProvider) Detect(frame gocv.Mat) (Candidate, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	blob := gocv.BlobFromImage(frame, 1.0/127.5, image.Pt(dnnInputSize, dnnInputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	p.net.SetInput(blob, "")
	output := p.net.Forward("")
	defer output.Close()

	flat := output.Reshape(1, output.Total()/7)
	defer flat.Close()

	w := float64(frame.Cols())
	h := float64(frame.Rows())

	best := Candidate{}
	found := false
	for i := 0; i < flat.Rows(); i++ {
		classID := int(flat.GetFloatAt(i, 1))
		confidence := float64(flat.GetFloatAt(i, 2))
		if classID != p.targetClassID || confidence < p.minConfidence {
			continue
		}
		left := int(float64(flat.GetFloatAt(i, 3)) * w)
		top := int(float64(flat.GetFloatAt(i, 4)) * h)
		right := int(float64(flat.GetFloatAt(i, 5)) * w)
		bottom := int(float64(flat.GetFloatAt(i, 6)) * h)

		rect := image.Rect(left, top, right, bottom).Intersect(image.Rect(0, 0, int(w), int(h)))
		if rect.Empty() {
			continue
		}
		if !found || confidence > best.Confidence {
			best = Candidate{Rect: rect, Confidence: confidence}
			found = true
		}
	}
	return best, found, nil
}

// Close releases the network.
func (p *DNNProvider) Close() error {
	return p.net.Close()
}
