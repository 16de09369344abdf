package models

import "time"

// BaselineReport is the subject's calibrated resting profile, written once
// with the first checkpoint of a session.
type BaselineReport struct {
	EyeRatio       float64    `json:"eyeRatio" bson:"eye_ratio"`
	LipsRatio      float64    `json:"lipsRatio" bson:"lips_ratio"`
	CheekColor     [3]float64 `json:"cheekColor" bson:"cheek_color"` // B, G, R
	BlinkRate      float64    `json:"blinkRate" bson:"blink_rate"`
	LipPursing     int        `json:"lipPursing" bson:"lip_pursing"`
	CalibrationEnd int        `json:"calibrationFrame" bson:"calibration_frame"`
}

// CheckpointReport is the outcome of one question/answer checkpoint.
type CheckpointReport struct {
	ID              int64           `json:"id" bson:"id"`
	SessionID       string          `json:"sessionId" bson:"session_id"`
	Question        int             `json:"question" bson:"question"`
	Blinks          int             `json:"blinks" bson:"blinks"`
	BlinkRate       float64         `json:"blinkRate" bson:"blink_rate"`
	BlushingCount   int             `json:"blushingCount" bson:"blushing_count"`
	LipPursingCount int             `json:"lipPursingCount" bson:"lip_pursing_count"`
	ElapsedSeconds  float64         `json:"elapsedSeconds" bson:"elapsed_seconds"`
	Features        []float64       `json:"features" bson:"features"`
	PredictedLabel  string          `json:"predictedLabel" bson:"predicted_label"`
	Confidence      float64         `json:"confidence" bson:"confidence"`
	Calibrated      bool            `json:"calibrated" bson:"calibrated"`
	Final           bool            `json:"final" bson:"final"`
	Baseline        *BaselineReport `json:"baseline,omitempty" bson:"baseline,omitempty"`
	CreatedAt       time.Time       `json:"createdAt" bson:"created_at"`
}

// SessionReport groups a session's checkpoints in question order.
type SessionReport struct {
	SessionID   string             `json:"sessionId"`
	Baseline    *BaselineReport    `json:"baseline,omitempty"`
	Checkpoints []CheckpointReport `json:"checkpoints"`
}

// BuildSessionReport assembles a SessionReport from stored checkpoints. The
// baseline comes from the first checkpoint that carries one.
func BuildSessionReport(sessionID string, checkpoints []CheckpointReport) SessionReport {
	report := SessionReport{SessionID: sessionID, Checkpoints: checkpoints}
	for _, cp := range checkpoints {
		if cp.Baseline != nil {
			report.Baseline = cp.Baseline
			break
		}
	}
	if report.Checkpoints == nil {
		report.Checkpoints = []CheckpointReport{}
	}
	return report
}

// RecordData is a frame pushed over the socket: an encoded image, landmarks,
// or both.
type RecordData struct {
	Index  int          `json:"index"`
	Image  string       `json:"image,omitempty"` // base64 JPEG/PNG
	Points [][2]float64 `json:"points,omitempty"`
}
