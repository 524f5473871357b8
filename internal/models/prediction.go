package models

// Prediction is the classifier output returned to clients
type Prediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	// Mock is set when the result was sampled in degraded mode
	Mock bool `json:"-"`
}

// PesticideDosage is one pesticide recommendation in the pest info tables
type PesticideDosage struct {
	Name              string `json:"name"`
	Dosage            string `json:"dosage"`
	SafetyPrecautions string `json:"safety_precautions"`
}

// PestInfo is the response of GET /pest-info/:name
type PestInfo struct {
	PestName    string            `json:"pest_name"`
	Description string            `json:"description"`
	Pesticides  []PesticideDosage `json:"pesticides"`
	Found       bool              `json:"-"`
}

// DashboardStats are the admin dashboard counters
type DashboardStats struct {
	TotalUsers       int   `json:"total_users"`
	TotalReports     int   `json:"total_reports"`
	TotalFeedback    int   `json:"total_feedback"`
	TotalPredictions int64 `json:"total_predictions"`
}

// Dashboard is the response of GET /admin/dashboard
type Dashboard struct {
	Stats            DashboardStats `json:"stats"`
	RecentDetections []*Report      `json:"recent_detections"`
	Classifier       string         `json:"classifier_state"`
}
