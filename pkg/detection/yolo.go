package detection

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// YOLOConfig holds YOLO detector configuration.
type YOLOConfig struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
	Classes          []string // defaults to COCOClasses
}

// DefaultYOLOConfig returns production defaults for YOLOv8n.
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// YOLOProvider loads a YOLOv8 ONNX network through OpenCV's DNN module.
type YOLOProvider struct {
	Config YOLOConfig
}

// Name implements Provider.
func (p *YOLOProvider) Name() string { return "yolo" }

// Load implements Provider.
func (p *YOLOProvider) Load(ctx context.Context) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, LoadError(p.Name(), err)
	}
	m, err := NewYOLO(p.Config)
	if err != nil {
		return nil, LoadError(p.Name(), err)
	}
	return m, nil
}

// YOLODetector uses YOLOv8 for general object detection.
type YOLODetector struct {
	net       gocv.Net
	config    YOLOConfig
	mu        sync.Mutex // gocv.Net is not safe for concurrent Forward
	inputSize image.Point
}

// NewYOLO creates a new YOLO object detector.
func NewYOLO(cfg YOLOConfig) (*YOLODetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s: %w", cfg.ModelPath, err)
	}
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		return nil, fmt.Errorf("invalid input size %dx%d", cfg.InputWidth, cfg.InputHeight)
	}
	if len(cfg.Classes) == 0 {
		cfg.Classes = COCOClasses
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLODetector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect implements Model.
func (d *YOLODetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, DetectError("yolo", ErrEmptyImage)
	}
	if err := ctx.Err(); err != nil {
		return nil, DetectError("yolo", err)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, DetectError("yolo", fmt.Errorf("convert image: %w", err))
	}
	defer mat.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	imgW := float32(mat.Cols())
	imgH := float32(mat.Rows())

	blob := gocv.BlobFromImage(mat, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	return d.parseOutput(output, imgW, imgH)
}

// parseOutput decodes the YOLOv8 output tensor.
// Shape is [1, 4+classes, anchors]: cx, cy, w, h followed by class scores.
func (d *YOLODetector) parseOutput(output gocv.Mat, imgW, imgH float32) ([]Detection, error) {
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil, DetectError("yolo", fmt.Errorf("unexpected output shape %v", sizes))
	}
	cols := sizes[1] // 4 + classes
	rows := sizes[2] // anchors

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, DetectError("yolo", fmt.Errorf("read output: %w", err))
	}

	var boxes []image.Rectangle
	var confidences []float32
	var classIDs []int

	scaleX := imgW / float32(d.config.InputWidth)
	scaleY := imgH / float32(d.config.InputHeight)

	for i := 0; i < rows; i++ {
		maxScore := float32(0)
		maxClassID := 0
		for c := 4; c < cols; c++ {
			if score := data[c*rows+i]; score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}
		if maxScore < d.config.ConfidenceThresh {
			continue
		}

		cx := data[0*rows+i]
		cy := data[1*rows+i]
		w := data[2*rows+i]
		h := data[3*rows+i]

		x1 := int((cx - w/2) * scaleX)
		y1 := int((cy - h/2) * scaleY)
		x2 := int((cx + w/2) * scaleX)
		y2 := int((cy + h/2) * scaleY)

		boxes = append(boxes, image.Rect(x1, y1, x2, y2))
		confidences = append(confidences, maxScore)
		classIDs = append(classIDs, maxClassID)
	}

	detections := make([]Detection, 0, len(boxes))
	if len(boxes) == 0 {
		return detections, nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, d.config.ConfidenceThresh, d.config.NMSThresh)
	for _, idx := range indices {
		detections = append(detections, Detection{
			Label:      d.className(classIDs[idx]),
			Confidence: float64(confidences[idx]),
			Box:        BoxFromRect(boxes[idx]),
		})
	}
	return detections, nil
}

func (d *YOLODetector) className(id int) string {
	if id >= 0 && id < len(d.config.Classes) {
		return d.config.Classes[id]
	}
	return fmt.Sprintf("class_%d", id)
}

// Close releases the detector resources.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// COCOClasses contains the 80 COCO class names.
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
