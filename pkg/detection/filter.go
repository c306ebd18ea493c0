package detection

// Postprocessor filters or modifies a list of detections.
type Postprocessor func([]Detection) []Detection

// NewScoreFilter drops detections below a confidence threshold.
// A threshold of zero or less keeps everything.
func NewScoreFilter(minConfidence float64) Postprocessor {
	return func(in []Detection) []Detection {
		if minConfidence <= 0 {
			return in
		}
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if d.Confidence >= minConfidence {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewAreaFilter drops detections whose box is smaller than area square pixels.
func NewAreaFilter(area float64) Postprocessor {
	return func(in []Detection) []Detection {
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if d.Box.Area() >= area {
				out = append(out, d)
			}
		}
		return out
	}
}

// Compose runs postprocessors left to right.
func Compose(ps ...Postprocessor) Postprocessor {
	return func(in []Detection) []Detection {
		for _, p := range ps {
			if p != nil {
				in = p(in)
			}
		}
		return in
	}
}
